package producer

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"sleeve/internal/artifact"
)

type coverer struct{}

// produce renders a cover whose geometry is derived from the track
// fingerprints alone, so identical tracklists give identical bytes.
func (c *coverer) produce(ctx context.Context, req *artifact.Request, workDir string) (Output, error) {
	params := *req.Cover
	bg, err := parseHexColor(params.Background)
	if err != nil {
		return Output{}, err
	}
	fg, err := parseHexColor(params.Foreground)
	if err != nil {
		return Output{}, err
	}

	tracks := make([]artifact.Fingerprint, 0, len(req.Sources))
	for _, src := range req.Sources {
		tracks = append(tracks, src.Fingerprint)
	}
	if len(tracks) > params.MaxTracks {
		tracks = tracks[:params.MaxTracks]
	}

	edge := params.Edge
	canvas := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	raster := vector.NewRasterizer(edge, edge)
	switch params.Style {
	case artifact.CoverStyleStripes:
		traceStripes(raster, edge, tracks)
	default:
		traceRings(raster, edge, params.MaxTracks, tracks)
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	raster.Draw(canvas, canvas.Bounds(), image.NewUniform(fg), image.Point{})

	path, err := writeOutput(workDir, ".png", func(f *os.File) error {
		w := bufio.NewWriter(f)
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(w, canvas); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		return w.Flush()
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Path: path, Detail: fmt.Sprintf("%s %dpx", params.Style, edge)}, nil
}

// traceRings draws one concentric ring segment per track. The segment's
// start angle and sweep come from the track fingerprint; ring width scales
// with the release's track budget so covers of one site share a rhythm.
func traceRings(r *vector.Rasterizer, edge, maxTracks int, tracks []artifact.Fingerprint) {
	center := float64(edge) / 2
	outer := float64(edge) * 0.45
	inner := float64(edge) * 0.08
	band := (outer - inner) / float64(max(maxTracks, 1))
	gap := band * 0.25

	for i, fp := range tracks {
		start := float64(fp[0]) / 256 * 2 * math.Pi
		sweep := (0.35 + 0.6*float64(fp[1])/255) * 2 * math.Pi
		rOuter := outer - float64(i)*band
		rInner := rOuter - band + gap
		traceArc(r, center, rOuter, rInner, start, sweep, edge)
	}
}

func traceArc(r *vector.Rasterizer, center, rOuter, rInner, start, sweep float64, edge int) {
	steps := max(16, int(sweep*float64(edge)/40))
	point := func(radius, angle float64) (float32, float32) {
		return float32(center + radius*math.Cos(angle)), float32(center + radius*math.Sin(angle))
	}
	x, y := point(rOuter, start)
	r.MoveTo(x, y)
	for s := 1; s <= steps; s++ {
		x, y = point(rOuter, start+sweep*float64(s)/float64(steps))
		r.LineTo(x, y)
	}
	for s := steps; s >= 0; s-- {
		x, y = point(rInner, start+sweep*float64(s)/float64(steps))
		r.LineTo(x, y)
	}
	r.ClosePath()
}

// traceStripes draws one horizontal bar per track whose length and offset
// come from the fingerprint.
func traceStripes(r *vector.Rasterizer, edge int, tracks []artifact.Fingerprint) {
	if len(tracks) == 0 {
		return
	}
	size := float32(edge)
	margin := size * 0.08
	band := (size - 2*margin) / float32(len(tracks))
	for i, fp := range tracks {
		top := margin + float32(i)*band
		bottom := top + band*0.7
		length := (0.3 + 0.7*float32(fp[2])/255) * (size - 2*margin)
		left := margin + float32(fp[3])/255*(size-2*margin-length)
		r.MoveTo(left, top)
		r.LineTo(left+length, top)
		r.LineTo(left+length, bottom)
		r.LineTo(left, bottom)
		r.ClosePath()
	}
}

func parseHexColor(value string) (color.RGBA, error) {
	if len(value) != 7 || value[0] != '#' {
		return color.RGBA{}, fmt.Errorf("colour %q is not #rrggbb", value)
	}
	raw, err := hex.DecodeString(value[1:])
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colour %q: %w", value, err)
	}
	return color.RGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xff}, nil
}
