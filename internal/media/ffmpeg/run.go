package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"sleeve/internal/services"
)

// stderrTail bounds how much ffmpeg output is carried in an error.
const stderrTail = 2048

var inputFailureMarkers = []string{
	"Invalid data found when processing input",
	"could not find codec parameters",
	"does not contain any stream",
}

// Run executes binary with args. A source ffmpeg cannot decode yields an
// error marked services.ErrInput; a missing binary services.ErrMissingTool;
// anything else services.ErrExternalTool with the tail of stderr.
func Run(ctx context.Context, binary string, args []string) error {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrMissingTool, "ffmpeg", "run", binary, err)
	}
	detail := tail(stderr.String())
	for _, marker := range inputFailureMarkers {
		if strings.Contains(detail, marker) {
			return services.Wrap(services.ErrInput, "ffmpeg", "decode", detail, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "ffmpeg", "transcode", detail, err)
}

// Encoders lists the encoder names compiled into binary.
func Encoders(ctx context.Context, binary string) (map[string]struct{}, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, services.Wrap(services.ErrMissingTool, "ffmpeg", "encoders", binary, err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "ffmpeg", "encoders", binary, err)
	}
	return parseEncoders(string(out)), nil
}

// parseEncoders reads `ffmpeg -encoders` output: a legend, a "------"
// separator, then one " A..... name  description" line per encoder.
func parseEncoders(output string) map[string]struct{} {
	encoders := make(map[string]struct{})
	listing := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "------") {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = struct{}{}
	}
	return encoders
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
