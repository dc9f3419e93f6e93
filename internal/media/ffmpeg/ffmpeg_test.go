package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

func TestTranscodeArgs(t *testing.T) {
	copyTags := artifact.TagMapping{Mode: artifact.TagsCopy}
	tests := []struct {
		name   string
		source string
		format artifact.AudioFormat
		tags   artifact.TagMapping
		want   []string
	}{
		{
			name:   "mp3 v0 copy from flac",
			source: "flac",
			format: artifact.FormatMP3V0,
			tags:   copyTags,
			want:   []string{"-y", "-i", "in", "-codec:a", "libmp3lame", "-qscale:a", "0", "out"},
		},
		{
			name:   "opus from ogg keeps ogg-family tags",
			source: "ogg_vorbis",
			format: artifact.FormatOpus96,
			tags:   copyTags,
			want:   []string{"-y", "-i", "in", "-codec:a", "libopus", "-b:a", "96k", "out"},
		},
		{
			name:   "flac from opus maps stream tags",
			source: "opus",
			format: artifact.FormatFLAC,
			tags:   copyTags,
			want:   []string{"-y", "-i", "in", "-map_metadata", "0:s:a:0", "out"},
		},
		{
			name:   "aac copy writes id3",
			source: "wav",
			format: artifact.FormatAAC,
			tags:   copyTags,
			want:   []string{"-y", "-i", "in", "-write_id3v2", "1", "out"},
		},
		{
			name:   "remove tags",
			source: "flac",
			format: artifact.FormatALAC,
			tags:   artifact.TagMapping{Mode: artifact.TagsRemove},
			want:   []string{"-y", "-i", "in", "-map_metadata", "-1", "-vn", "-vn", "-codec:a", "alac", "out"},
		},
		{
			name:   "custom tags sorted",
			source: "flac",
			format: artifact.FormatAIFF,
			tags: artifact.TagMapping{Mode: artifact.TagsCustom, Fields: map[string]string{
				"title": "Song", "artist": "Band", "album": "Record",
			}},
			want: []string{"-y", "-i", "in", "-map_metadata", "-1",
				"-metadata", "album=Record", "-metadata", "artist=Band", "-metadata", "title=Song",
				"-vn", "-write_id3v2", "1", "out"},
		},
		{
			name:   "opus 48 streaming",
			source: "mp3",
			format: artifact.FormatOpus48,
			tags:   copyTags,
			want:   []string{"-y", "-i", "in", "-codec:a", "libopus", "-b:a", "48k", "out"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranscodeArgs("in", "out", tt.source, tt.format, tt.tags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("args mismatch\n got: %q\nwant: %q", got, tt.want)
			}
		})
	}
}

func TestRequiredEncoders(t *testing.T) {
	got := RequiredEncoders(artifact.FormatOpus48, artifact.FormatMP3V7, artifact.FormatOpus96, artifact.FormatWAV)
	want := []string{"libmp3lame", "libopus"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RequiredEncoders = %v, want %v", got, want)
	}
}

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunClassifiesFailures(t *testing.T) {
	ctx := context.Background()

	ok := writeStub(t, "exit 0\n")
	if err := Run(ctx, ok, []string{"-y"}); err != nil {
		t.Fatalf("Run success: %v", err)
	}

	corrupt := writeStub(t, "echo 'in.flac: Invalid data found when processing input' >&2\nexit 1\n")
	if err := Run(ctx, corrupt, nil); !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}

	broken := writeStub(t, "echo 'Unknown encoder libfoo' >&2\nexit 1\n")
	err := Run(ctx, broken, nil)
	if !errors.Is(err, services.ErrExternalTool) || errors.Is(err, services.ErrInput) {
		t.Fatalf("expected tool error, got %v", err)
	}

	if err := Run(ctx, "sleeve-no-such-ffmpeg", nil); !errors.Is(err, services.ErrMissingTool) {
		t.Fatalf("expected missing tool, got %v", err)
	}
}

func TestParseEncoders(t *testing.T) {
	output := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 A....D aac                  AAC (Advanced Audio Coding)
 A..... libmp3lame           libmp3lame MP3 (MPEG audio layer 3)
 A..... libopus              libopus Opus
`
	got := parseEncoders(output)
	for _, name := range []string{"aac", "libmp3lame", "libopus"} {
		if _, ok := got[name]; !ok {
			t.Fatalf("missing encoder %s in %v", name, got)
		}
	}
	if _, ok := got["="]; ok {
		t.Fatal("legend lines must be skipped")
	}
}
