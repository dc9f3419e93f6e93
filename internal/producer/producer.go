package producer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"sleeve/internal/artifact"
	"sleeve/internal/logging"
	"sleeve/internal/services"
)

// Output is a produced payload waiting to be inserted into the cache.
type Output struct {
	Path string
	// Probe holds inspection JSON for transcodes when validation ran.
	Probe []byte
	// Detail is a short human-readable description such as "480x480".
	Detail string
}

// Options configures the registry.
type Options struct {
	FFmpeg         string
	FFprobe        string
	ValidateOutput bool
	Logger         *slog.Logger
}

// Registry owns one producer per artifact kind.
type Registry struct {
	transcode *transcoder
	image     *imager
	cover     *coverer
	archive   *archiver
	logger    *slog.Logger
}

// NewRegistry builds the producer set.
func NewRegistry(opts Options) *Registry {
	logger := logging.NewComponentLogger(opts.Logger, "producer")
	ffmpeg := strings.TrimSpace(opts.FFmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(opts.FFprobe)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Registry{
		transcode: &transcoder{ffmpeg: ffmpeg, ffprobe: ffprobe, validate: opts.ValidateOutput, logger: logger},
		image:     &imager{},
		cover:     &coverer{},
		archive:   &archiver{},
		logger:    logger,
	}
}

// Produce builds the payload for req inside workDir. deps holds the payload
// paths of req's dependencies in declaration order.
func (r *Registry) Produce(ctx context.Context, req *artifact.Request, deps []string, workDir string) (Output, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrResource, "producer", "work dir", workDir, err)
	}
	if len(deps) != len(req.Dependencies) {
		return Output{}, fmt.Errorf("%s %q: %d dependency payloads for %d dependencies", req.Kind, req.Name(), len(deps), len(req.Dependencies))
	}

	var (
		out Output
		err error
	)
	switch req.Kind {
	case artifact.KindTranscode:
		out, err = r.transcode.produce(ctx, req, workDir)
	case artifact.KindImage:
		out, err = r.image.produce(ctx, req, workDir)
	case artifact.KindCover:
		out, err = r.cover.produce(ctx, req, workDir)
	case artifact.KindArchive:
		out, err = r.archive.produce(ctx, req, deps, workDir)
	default:
		return Output{}, fmt.Errorf("no producer for kind %q", req.Kind)
	}
	if err != nil {
		if out.Path != "" {
			_ = os.Remove(out.Path)
		}
		return Output{}, newToolError(req, err)
	}
	return out, nil
}

// tempOutput reserves a unique file in workDir for a producer to write.
func tempOutput(workDir, ext string) (string, error) {
	f, err := os.CreateTemp(workDir, "produce-*"+ext)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "producer", "create output", workDir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// writeOutput creates a unique file in workDir and hands it to write.
func writeOutput(workDir, ext string, write func(f *os.File) error) (string, error) {
	f, err := os.CreateTemp(workDir, "produce-*"+ext)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "producer", "create output", workDir, err)
	}
	name := f.Name()
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", services.Wrap(services.ErrResource, "producer", "close output", name, err)
	}
	return name, nil
}
