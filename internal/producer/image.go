package producer

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

type imager struct{}

func (m *imager) produce(ctx context.Context, req *artifact.Request, workDir string) (Output, error) {
	params := *req.Image
	src, err := decodeOpaque(req.Sources[0].Path)
	if err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	resized := resize(src, params)
	bounds := resized.Bounds()
	path, err := writeOutput(workDir, ".jpg", func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := jpeg.Encode(w, resized, &jpeg.Options{Quality: params.Quality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
		return w.Flush()
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Path: path, Detail: fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy())}, nil
}

// decodeOpaque decodes an image and flattens any transparency onto white so
// the JPEG output never shows undefined colours.
func decodeOpaque(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrInput, "image", "open", path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, services.Wrap(services.ErrInput, "image", "decode", path, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, services.Wrap(services.ErrInput, "image", "decode", fmt.Sprintf("%s: empty %s image", path, format), nil)
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out, nil
}

// resize applies the geometry of params to src. Images are never upscaled.
func resize(src *image.RGBA, params artifact.ImageParams) image.Image {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	switch params.Mode {
	case artifact.ContainInSquare:
		longer := max(w, h)
		if longer <= params.MaxEdge {
			return src
		}
		factor := float64(params.MaxEdge) / float64(longer)
		return scale(src, src.Bounds(), int(float64(w)*factor), int(float64(h)*factor))

	case artifact.CoverSquare:
		edge := min(w, h)
		crop := image.Rect((w-edge)/2, (h-edge)/2, (w-edge)/2+edge, (h-edge)/2+edge)
		if edge <= params.Edge {
			return src.SubImage(crop)
		}
		return scale(src, crop, params.Edge, params.Edge)

	case artifact.CoverRectangle:
		crop := src.Bounds()
		aspect := float64(w) / float64(h)
		switch {
		case aspect < params.MinAspect:
			newH := max(int(float64(w)/params.MinAspect), 1)
			y := (h - newH) / 2
			crop = image.Rect(0, y, w, y+newH)
		case aspect > params.MaxAspect:
			newW := max(int(params.MaxAspect*float64(h)), 1)
			x := (w - newW) / 2
			crop = image.Rect(x, 0, x+newW, h)
		}
		cw, ch := crop.Dx(), crop.Dy()
		if cw <= params.MaxWidth {
			return src.SubImage(crop)
		}
		factor := float64(params.MaxWidth) / float64(cw)
		return scale(src, crop, params.MaxWidth, int(float64(ch)*factor))
	}
	return src
}

func scale(src *image.RGBA, from image.Rectangle, w, h int) image.Image {
	w, h = max(w, 1), max(h, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, from, draw.Src, nil)
	return dst
}
