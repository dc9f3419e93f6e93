package producer

import (
	"context"
	"log/slog"
	"os"

	"sleeve/internal/artifact"
	"sleeve/internal/logging"
	"sleeve/internal/media/ffmpeg"
	"sleeve/internal/media/ffprobe"
	"sleeve/internal/services"
)

type transcoder struct {
	ffmpeg   string
	ffprobe  string
	validate bool
	logger   *slog.Logger
}

func (t *transcoder) produce(ctx context.Context, req *artifact.Request, workDir string) (Output, error) {
	params := req.TranscodeParams()
	src := req.Sources[0]
	if _, err := os.Stat(src.Path); err != nil {
		return Output{}, services.Wrap(services.ErrInput, "transcode", "stat source", src.Path, err)
	}

	out, err := tempOutput(workDir, params.Format.Extension())
	if err != nil {
		return Output{}, err
	}
	args := ffmpeg.TranscodeArgs(src.Path, out, params.SourceFamily, params.Format, params.Tags)
	t.logger.DebugContext(ctx, "running ffmpeg",
		logging.String(logging.FieldSource, src.Path),
		logging.String("format", string(params.Format)),
		logging.Any("args", args),
	)
	if err := ffmpeg.Run(ctx, t.ffmpeg, args); err != nil {
		return Output{Path: out}, err
	}

	info, err := os.Stat(out)
	if err != nil {
		return Output{Path: out}, services.Wrap(services.ErrExternalTool, "transcode", "stat output", out, err)
	}
	if info.Size() == 0 {
		return Output{Path: out}, services.Wrap(services.ErrExternalTool, "transcode", "validate", "ffmpeg wrote an empty file", nil)
	}

	result := Output{Path: out}
	if !t.validate {
		return result, nil
	}
	probe, err := ffprobe.Inspect(ctx, t.ffprobe, out)
	if err != nil {
		return result, err
	}
	if err := probe.ValidateAudio(); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcode", "validate", out, err)
	}
	result.Probe = probe.RawJSON()
	result.Detail = probe.Describe()
	return result, nil
}
