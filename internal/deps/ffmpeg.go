package deps

import (
	"context"
	"fmt"

	"sleeve/internal/artifact"
	"sleeve/internal/media/ffmpeg"
)

// CheckEncoders reports, per encoder the formats need, whether the ffmpeg
// build at binary provides it. A failure to query ffmpeg marks every encoder
// unavailable with the same detail.
func CheckEncoders(ctx context.Context, binary string, formats ...artifact.AudioFormat) []Status {
	required := ffmpeg.RequiredEncoders(formats...)
	results := make([]Status, 0, len(required))
	available, err := ffmpeg.Encoders(ctx, binary)
	for _, name := range required {
		status := Status{
			Name:        name,
			Command:     binary,
			Description: "ffmpeg encoder",
		}
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("could not list encoders: %v", err)
		default:
			if _, ok := available[name]; ok {
				status.Available = true
			} else {
				status.Detail = fmt.Sprintf("ffmpeg was built without %s", name)
			}
		}
		results = append(results, status)
	}
	return results
}

// AllFormats lists every transcode target, for a full encoder check.
func AllFormats() []artifact.AudioFormat {
	return []artifact.AudioFormat{
		artifact.FormatAAC, artifact.FormatAIFF, artifact.FormatALAC, artifact.FormatFLAC,
		artifact.FormatMP3V0, artifact.FormatMP3V5, artifact.FormatMP3V7, artifact.FormatOggVorbis,
		artifact.FormatOpus48, artifact.FormatOpus96, artifact.FormatOpus128, artifact.FormatWAV,
	}
}
