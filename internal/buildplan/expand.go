package buildplan

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"sleeve/internal/artifact"
	"sleeve/internal/textutil"
)

// Role says what an expanded request is for on the site.
type Role string

const (
	RoleStream   Role = "stream"
	RoleDownload Role = "download"
	RoleArchive  Role = "archive"
	RoleCover    Role = "cover"
	RoleImage    Role = "image"
)

// procedural cover palette and track cap
const (
	coverBackground = "#101010"
	coverForeground = "#f2f2f2"
	coverMaxTracks  = 32
)

// Item is one expanded request plus where its payload belongs in the site.
type Item struct {
	Release string
	Role    Role
	// Output is a slash-separated path relative to the site root.
	Output  string
	Request *artifact.Request
}

// Fingerprinter resolves source files; contentkey.Fingerprinter satisfies it.
type Fingerprinter interface {
	Source(ctx context.Context, path string) (artifact.Source, error)
}

// Options control expansion.
type Options struct {
	Fingerprinter Fingerprinter
	// StreamingQuality applies to releases that do not set their own.
	StreamingQuality string
	JPEGQuality      int
}

// Expand fingerprints every source and returns the requests the plan needs,
// releases first and in plan order. Every unreadable source is reported.
func (p *Plan) Expand(ctx context.Context, opts Options) ([]Item, error) {
	if opts.Fingerprinter == nil {
		return nil, errors.New("buildplan: fingerprinter is required")
	}
	quality := opts.JPEGQuality
	if quality == 0 {
		quality = artifact.DefaultJPEGQuality
	}
	e := &expander{plan: p, opts: opts, quality: quality, sources: make(map[string]artifact.Source)}

	var items []Item
	for _, rel := range p.Releases {
		items = append(items, e.release(ctx, rel)...)
	}
	for _, img := range p.Images {
		items = append(items, e.image(ctx, img)...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(e.problems) > 0 {
		return nil, errors.Join(e.problems...)
	}
	return items, nil
}

// Requests returns the request of every item.
func Requests(items []Item) []*artifact.Request {
	out := make([]*artifact.Request, len(items))
	for i, item := range items {
		out[i] = item.Request
	}
	return out
}

type expander struct {
	plan     *Plan
	opts     Options
	quality  int
	sources  map[string]artifact.Source
	problems []error
}

func (e *expander) source(ctx context.Context, rel string) (artifact.Source, bool) {
	abs := e.plan.resolve(rel)
	if src, ok := e.sources[abs]; ok {
		return src, true
	}
	src, err := e.opts.Fingerprinter.Source(ctx, abs)
	if err != nil {
		e.problems = append(e.problems, err)
		return artifact.Source{}, false
	}
	e.sources[abs] = src
	return src, true
}

func (e *expander) release(ctx context.Context, rel Release) []Item {
	slug := rel.slug()
	tags, _ := tagPolicy(rel.Tags)
	streamQuality := rel.StreamingQuality
	if strings.TrimSpace(streamQuality) == "" {
		streamQuality = e.opts.StreamingQuality
	}
	streaming, err := artifact.ParseStreamingQuality(streamQuality)
	if err != nil {
		e.problems = append(e.problems, fmt.Errorf("release %s: %w", rel.displayName(), err))
		return nil
	}

	tracks := make([]artifact.Source, 0, len(rel.Tracks))
	for _, track := range rel.Tracks {
		src, ok := e.source(ctx, track.Path)
		if !ok {
			continue
		}
		tracks = append(tracks, src)
	}
	if len(tracks) != len(rel.Tracks) {
		return nil
	}

	var items []Item
	transcode := func(i int, format artifact.AudioFormat) *artifact.Request {
		return &artifact.Request{
			Kind:      artifact.KindTranscode,
			Label:     fmt.Sprintf("%s/%s (%s)", slug, trackTitle(rel.Tracks[i]), format),
			Sources:   []artifact.Source{tracks[i]},
			Transcode: &artifact.TranscodeParams{Format: format, Tags: tags.mapping(rel, i)},
		}
	}

	for i := range rel.Tracks {
		for _, format := range artifact.StreamingFormats(streaming) {
			items = append(items, Item{
				Release: slug,
				Role:    RoleStream,
				Output:  path.Join(slug, "stream", fmt.Sprintf("%02d%s", i+1, format.Extension())),
				Request: transcode(i, format),
			})
		}
	}

	var extras []artifact.Source
	var extraNames []string
	attach := func(file string) {
		src, ok := e.source(ctx, file)
		if !ok {
			return
		}
		extras = append(extras, src)
		extraNames = append(extraNames, textutil.SanitizeFileName(filepath.Base(src.Path)))
	}
	if strings.TrimSpace(rel.CoverImage) != "" {
		attach(rel.CoverImage)
	}
	for _, extra := range rel.Extras {
		attach(extra)
	}

	seen := make(map[artifact.AudioFormat]struct{})
	for _, name := range rel.DownloadFormats {
		format, err := artifact.ParseAudioFormat(name)
		if err != nil {
			e.problems = append(e.problems, fmt.Errorf("release %s: %w", rel.displayName(), err))
			continue
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}

		deps := make([]*artifact.Request, len(rel.Tracks))
		names := make([]string, len(rel.Tracks))
		for i, track := range rel.Tracks {
			deps[i] = transcode(i, format)
			names[i] = fmt.Sprintf("%02d %s%s", i+1, textutil.SanitizeFileName(trackTitle(track)), format.Extension())
			items = append(items, Item{
				Release: slug,
				Role:    RoleDownload,
				Output:  path.Join(slug, "download", string(format), names[i]),
				Request: deps[i],
			})
		}
		archiveName := textutil.SanitizeFileName(rel.displayName()) + ".zip"
		items = append(items, Item{
			Release: slug,
			Role:    RoleArchive,
			Output:  path.Join(slug, "download", string(format), archiveName),
			Request: &artifact.Request{
				Kind:    artifact.KindArchive,
				Label:   fmt.Sprintf("%s/%s (%s)", slug, archiveName, format),
				Sources: extras,
				Archive: &artifact.ArchiveParams{
					Format:     format,
					TrackNames: names,
					ExtraNames: extraNames,
				},
				Dependencies: deps,
			},
		})
	}

	items = append(items, e.covers(ctx, rel, slug, tracks)...)
	return items
}

func (e *expander) covers(ctx context.Context, rel Release, slug string, tracks []artifact.Source) []Item {
	var items []Item
	if strings.TrimSpace(rel.CoverImage) != "" {
		src, ok := e.source(ctx, rel.CoverImage)
		if !ok {
			return nil
		}
		for _, edge := range artifact.CoverEdges {
			items = append(items, Item{
				Release: slug,
				Role:    RoleCover,
				Output:  path.Join(slug, "cover", fmt.Sprintf("%d.jpg", edge)),
				Request: &artifact.Request{
					Kind:    artifact.KindImage,
					Label:   fmt.Sprintf("%s/cover %d", slug, edge),
					Sources: []artifact.Source{src},
					Image:   &artifact.ImageParams{Mode: artifact.CoverSquare, Edge: edge, Quality: e.quality},
				},
			})
		}
		return items
	}

	style := strings.TrimSpace(rel.CoverStyle)
	if style == "" {
		style = artifact.CoverStyleRings
	}
	for _, edge := range artifact.CoverEdges {
		items = append(items, Item{
			Release: slug,
			Role:    RoleCover,
			Output:  path.Join(slug, "cover", fmt.Sprintf("%d.png", edge)),
			Request: &artifact.Request{
				Kind:    artifact.KindCover,
				Label:   fmt.Sprintf("%s/procedural cover %d", slug, edge),
				Sources: tracks,
				Cover: &artifact.CoverParams{
					Style:      style,
					Edge:       edge,
					MaxTracks:  coverMaxTracks,
					Background: coverBackground,
					Foreground: coverForeground,
				},
			},
		})
	}
	return items
}

func (e *expander) image(ctx context.Context, img Image) []Item {
	params, err := img.params(e.quality)
	if err != nil {
		e.problems = append(e.problems, fmt.Errorf("image %s: %w", img.Path, err))
		return nil
	}
	src, ok := e.source(ctx, img.Path)
	if !ok {
		return nil
	}
	label := strings.TrimSpace(img.Label)
	if label == "" {
		label = strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	}
	token := tokenFor(label)
	return []Item{{
		Role:   RoleImage,
		Output: path.Join("images", token+".jpg"),
		Request: &artifact.Request{
			Kind:    artifact.KindImage,
			Label:   label,
			Sources: []artifact.Source{src},
			Image:   &params,
		},
	}}
}

func trackTitle(t Track) string {
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func tokenFor(value string) string {
	return textutil.Slug(value)
}

type tagRule string

const (
	tagsCopy      tagRule = "copy"
	tagsRemove    tagRule = "remove"
	tagsNormalize tagRule = "normalize"
)

func tagPolicy(value string) (tagRule, error) {
	switch rule := tagRule(strings.ToLower(strings.TrimSpace(value))); rule {
	case "", tagsCopy:
		return tagsCopy, nil
	case tagsRemove, tagsNormalize:
		return rule, nil
	default:
		return "", fmt.Errorf("unknown tags value %q (want copy, remove or normalize)", value)
	}
}

// mapping resolves the tag rule for track i of rel. Normalize rewrites the
// catalog fields from the plan and drops embedded artwork.
func (r tagRule) mapping(rel Release, i int) artifact.TagMapping {
	switch r {
	case tagsRemove:
		return artifact.TagMapping{Mode: artifact.TagsRemove}
	case tagsNormalize:
		track := rel.Tracks[i]
		fields := map[string]string{
			"album": strings.TrimSpace(rel.Title),
			"title": trackTitle(track),
			"track": strconv.Itoa(i + 1),
		}
		if artist := strings.TrimSpace(rel.Artist); artist != "" {
			fields["album_artist"] = artist
			fields["artist"] = artist
		}
		if artist := strings.TrimSpace(track.Artist); artist != "" {
			fields["artist"] = artist
		}
		for k, v := range fields {
			if v == "" {
				delete(fields, k)
			}
		}
		return artifact.TagMapping{Mode: artifact.TagsCustom, Fields: fields}
	default:
		return artifact.TagMapping{Mode: artifact.TagsCopy}
	}
}
