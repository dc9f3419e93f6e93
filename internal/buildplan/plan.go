package buildplan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

// Plan is a parsed build plan.
type Plan struct {
	CatalogRoot string    `toml:"catalog_root"`
	Releases    []Release `toml:"release"`
	Images      []Image   `toml:"image"`

	path string
}

// Release describes one release and its downloads.
type Release struct {
	Title            string   `toml:"title"`
	Artist           string   `toml:"artist"`
	Slug             string   `toml:"slug"`
	DownloadFormats  []string `toml:"download_formats"`
	StreamingQuality string   `toml:"streaming_quality"`
	// Tags is copy, remove or normalize.
	Tags       string   `toml:"tags"`
	CoverImage string   `toml:"cover_image"`
	CoverStyle string   `toml:"cover_style"`
	Extras     []string `toml:"extras"`
	Tracks     []Track  `toml:"track"`
}

// Track is one audio file of a release.
type Track struct {
	Path   string `toml:"path"`
	Title  string `toml:"title"`
	Artist string `toml:"artist"`
}

// Image is a standalone image variant, such as an artist portrait or a site
// background.
type Image struct {
	Path      string  `toml:"path"`
	Label     string  `toml:"label"`
	Mode      string  `toml:"mode"`
	MaxEdge   int     `toml:"max_edge"`
	Edge      int     `toml:"edge"`
	MinAspect float64 `toml:"min_aspect"`
	MaxAspect float64 `toml:"max_aspect"`
	MaxWidth  int     `toml:"max_width"`
}

// Load reads and checks the plan at path.
func Load(path string) (*Plan, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve plan path: %w", err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "buildplan", "open", abs, err)
	}
	defer file.Close()

	var plan Plan
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, services.Wrap(services.ErrConfiguration, "buildplan", "parse", abs, errors.New(strict.String()))
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, services.Wrap(services.ErrConfiguration, "buildplan", "parse", fmt.Sprintf("%s:%d:%d", abs, row, col), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "buildplan", "parse", abs, err)
	}
	plan.path = abs
	if err := plan.normalize(); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) normalize() error {
	root := strings.TrimSpace(p.CatalogRoot)
	switch {
	case root == "" && p.path != "":
		root = filepath.Dir(p.path)
	case root == "":
		root = "."
	case !filepath.IsAbs(root) && p.path != "":
		root = filepath.Join(filepath.Dir(p.path), root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve catalog root: %w", err)
	}
	p.CatalogRoot = abs
	return nil
}

// Validate reports every structural problem in the plan at once.
func (p *Plan) Validate() error {
	var problems []error
	slugs := make(map[string]int)
	for i, rel := range p.Releases {
		where := fmt.Sprintf("release %d (%s)", i+1, rel.displayName())
		if strings.TrimSpace(rel.Title) == "" {
			problems = append(problems, fmt.Errorf("%s: title is required", where))
		}
		if len(rel.Tracks) == 0 {
			problems = append(problems, fmt.Errorf("%s: at least one track is required", where))
		}
		for j, track := range rel.Tracks {
			if strings.TrimSpace(track.Path) == "" {
				problems = append(problems, fmt.Errorf("%s: track %d has no path", where, j+1))
			}
		}
		for _, name := range rel.DownloadFormats {
			if _, err := artifact.ParseAudioFormat(name); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", where, err))
			}
		}
		if _, err := artifact.ParseStreamingQuality(rel.StreamingQuality); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", where, err))
		}
		if _, err := tagPolicy(rel.Tags); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", where, err))
		}
		switch strings.TrimSpace(rel.CoverStyle) {
		case "", artifact.CoverStyleRings, artifact.CoverStyleStripes:
		default:
			problems = append(problems, fmt.Errorf("%s: unknown cover style %q", where, rel.CoverStyle))
		}
		slug := rel.slug()
		if prev, dup := slugs[slug]; dup {
			problems = append(problems, fmt.Errorf("%s: slug %q already used by release %d", where, slug, prev))
		}
		slugs[slug] = i + 1
	}
	for i, img := range p.Images {
		if strings.TrimSpace(img.Path) == "" {
			problems = append(problems, fmt.Errorf("image %d has no path", i+1))
		}
		if _, err := img.params(artifact.DefaultJPEGQuality); err != nil {
			problems = append(problems, fmt.Errorf("image %d (%s): %w", i+1, img.Path, err))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "buildplan", "validate", p.path, errors.Join(problems...))
	}
	return nil
}

// Path returns the file the plan was loaded from.
func (p *Plan) Path() string { return p.path }

func (p *Plan) resolve(path string) string {
	path = strings.TrimSpace(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.CatalogRoot, path)
}

func (r Release) displayName() string {
	if title := strings.TrimSpace(r.Title); title != "" {
		return title
	}
	return "untitled"
}

func (r Release) slug() string {
	if slug := strings.TrimSpace(r.Slug); slug != "" {
		return slug
	}
	return tokenFor(r.Title)
}

func (img Image) params(quality int) (artifact.ImageParams, error) {
	mode := artifact.ResizeMode(strings.ToLower(strings.TrimSpace(img.Mode)))
	if mode == "" {
		mode = artifact.ContainInSquare
	}
	params := artifact.ImageParams{Mode: mode, Quality: quality}
	switch mode {
	case artifact.ContainInSquare:
		params.MaxEdge = img.MaxEdge
		if params.MaxEdge == 0 {
			params.MaxEdge = artifact.BackgroundMaxEdge
		}
	case artifact.CoverSquare:
		params.Edge = img.Edge
	case artifact.CoverRectangle:
		params.MinAspect = img.MinAspect
		params.MaxAspect = img.MaxAspect
		params.MaxWidth = img.MaxWidth
		if params.MaxWidth == 0 {
			params.MaxWidth = artifact.FeedMaxEdge
		}
	}
	return params, params.Validate()
}
