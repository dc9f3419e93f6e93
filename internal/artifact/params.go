package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// TagMode controls how source metadata is carried into a transcode.
type TagMode string

const (
	TagsCopy   TagMode = "copy"
	TagsRemove TagMode = "remove"
	TagsCustom TagMode = "custom"
)

// TagMapping is the tag-rewrite rule resolved for a track. Fields is only
// consulted in custom mode; encoders sort map keys so field order never
// affects the content key.
type TagMapping struct {
	Mode   TagMode           `cbor:"mode"`
	Fields map[string]string `cbor:"fields,omitempty"`
}

// TranscodeParams configures an audio transcode. SourceFamily changes the
// ffmpeg arguments, so it is part of the params; Request.Params fills it from
// the source extension when left empty.
type TranscodeParams struct {
	Format       AudioFormat `cbor:"format"`
	Tags         TagMapping  `cbor:"tags"`
	SourceFamily string      `cbor:"source_family"`
}

// ResizeMode selects the image variant geometry.
type ResizeMode string

const (
	ContainInSquare ResizeMode = "contain_in_square"
	CoverSquare     ResizeMode = "cover_square"
	CoverRectangle  ResizeMode = "cover_rectangle"
)

// Standard image edges used by the site templates.
const (
	BackgroundMaxEdge  = 1280
	FeedMaxEdge        = 920
	DefaultJPEGQuality = 80
)

// ImageParams configures an image variant. Only the fields relevant to Mode
// are set; the others stay zero so they encode identically.
type ImageParams struct {
	Mode      ResizeMode `cbor:"mode"`
	MaxEdge   int        `cbor:"max_edge,omitempty"`
	Edge      int        `cbor:"edge,omitempty"`
	MinAspect float64    `cbor:"min_aspect,omitempty"`
	MaxAspect float64    `cbor:"max_aspect,omitempty"`
	MaxWidth  int        `cbor:"max_width,omitempty"`
	Quality   int        `cbor:"quality"`
}

// CoverParams configures a procedurally generated cover.
type CoverParams struct {
	Style      string `cbor:"style"`
	Edge       int    `cbor:"edge"`
	MaxTracks  int    `cbor:"max_tracks"`
	Background string `cbor:"background"`
	Foreground string `cbor:"foreground"`
}

// Procedural cover styles.
const (
	CoverStyleRings   = "rings"
	CoverStyleStripes = "stripes"
)

// CoverEdges lists the sizes a release cover is rendered at.
var CoverEdges = []int{120, 240, 480, 720}

// ArchiveParams configures a download archive. TrackNames holds the in-archive
// name for each dependency in order; ExtraNames the name for each extra
// source file.
type ArchiveParams struct {
	Format     AudioFormat `cbor:"format"`
	TrackNames []string    `cbor:"track_names"`
	ExtraNames []string    `cbor:"extra_names,omitempty"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate checks the mapping for unusable values.
func (m TagMapping) Validate() error {
	switch m.Mode {
	case TagsCopy, TagsRemove:
		return nil
	case TagsCustom:
		for key := range m.Fields {
			if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "=\n") {
				return fmt.Errorf("invalid tag field name %q", key)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown tag mode %q", m.Mode)
	}
}

// Validate checks transcode parameters.
func (p TranscodeParams) Validate() error {
	if !p.Format.Valid() {
		return fmt.Errorf("unknown audio format %q", p.Format)
	}
	return p.Tags.Validate()
}

// Validate checks image parameters for the selected mode.
func (p ImageParams) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("jpeg quality %d out of range 1-100", p.Quality)
	}
	switch p.Mode {
	case ContainInSquare:
		if p.MaxEdge <= 0 {
			return errors.New("contain_in_square requires max_edge > 0")
		}
	case CoverSquare:
		if p.Edge <= 0 {
			return errors.New("cover_square requires edge > 0")
		}
	case CoverRectangle:
		if p.MaxWidth <= 0 {
			return errors.New("cover_rectangle requires max_width > 0")
		}
		if p.MinAspect <= 0 || p.MaxAspect < p.MinAspect {
			return fmt.Errorf("cover_rectangle aspect range %.3f-%.3f is invalid", p.MinAspect, p.MaxAspect)
		}
	default:
		return fmt.Errorf("unknown resize mode %q", p.Mode)
	}
	return nil
}

// Validate checks cover parameters.
func (p CoverParams) Validate() error {
	switch p.Style {
	case CoverStyleRings, CoverStyleStripes:
	default:
		return fmt.Errorf("unknown cover style %q", p.Style)
	}
	if p.Edge <= 0 {
		return errors.New("cover edge must be > 0")
	}
	if p.MaxTracks <= 0 {
		return errors.New("cover max_tracks must be > 0")
	}
	if !hexColor.MatchString(p.Background) || !hexColor.MatchString(p.Foreground) {
		return fmt.Errorf("cover colours must be #rrggbb, got %q and %q", p.Background, p.Foreground)
	}
	return nil
}

// Validate checks archive parameters.
func (p ArchiveParams) Validate() error {
	if !p.Format.Valid() {
		return fmt.Errorf("unknown archive format %q", p.Format)
	}
	seen := make(map[string]struct{}, len(p.TrackNames)+len(p.ExtraNames))
	for _, name := range append(append([]string{}, p.TrackNames...), p.ExtraNames...) {
		clean := strings.TrimSpace(name)
		if clean == "" || strings.HasPrefix(clean, "/") || slices.Contains(strings.Split(clean, "/"), "..") {
			return fmt.Errorf("invalid archive member name %q", name)
		}
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("duplicate archive member name %q", name)
		}
		seen[clean] = struct{}{}
	}
	return nil
}
