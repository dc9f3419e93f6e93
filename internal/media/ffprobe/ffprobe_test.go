package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"sleeve/internal/services"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "mjpeg"},
			{CodecType: "audio", CodecName: "opus"},
			{CodecType: "audio", CodecName: "opus"},
		},
		Format: Format{
			Duration: "123.45",
		},
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.AudioCodec() != "opus" {
		t.Fatalf("unexpected codec %q", result.AudioCodec())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if err := result.ValidateAudio(); err != nil {
		t.Fatalf("ValidateAudio: %v", err)
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if got := result.Describe(); got != "" {
		t.Fatalf("expected empty description, got %q", got)
	}
}

func TestDescribe(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "mjpeg"},
			{CodecType: "audio", CodecName: "opus", SampleRate: "48000", Channels: 2},
		},
		Format: Format{Duration: "185.4"},
	}
	if got, want := result.Describe(), "opus, 48 kHz, 2 ch, 3:05"; got != want {
		t.Fatalf("Describe() = %q, want %q", got, want)
	}
	result.Streams[1].SampleRate = "44100"
	if got, want := result.Describe(), "opus, 44.1 kHz, 2 ch, 3:05"; got != want {
		t.Fatalf("Describe() = %q, want %q", got, want)
	}
}

func TestValidateAudioRejects(t *testing.T) {
	cases := map[string]Result{
		"no audio":      {Streams: []Stream{{CodecType: "video"}}, Format: Format{Duration: "3"}},
		"zero duration": {Streams: []Stream{{CodecType: "audio"}}, Format: Format{Duration: "0.000"}},
		"no duration":   {Streams: []Stream{{CodecType: "audio"}}},
	}
	for name, result := range cases {
		if err := result.ValidateAudio(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestInspectParsesOutput(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat <<'JSON'\n{\"streams\":[{\"index\":0,\"codec_type\":\"audio\",\"codec_name\":\"mp3\"}],\"format\":{\"duration\":\"4.2\",\"format_name\":\"mp3\"}}\nJSON\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := Inspect(context.Background(), script, "/tmp/any.mp3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.AudioCodec() != "mp3" || result.DurationSeconds() != 4.2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.RawJSON()) == 0 {
		t.Fatal("expected raw JSON to be retained")
	}
}

func TestInspectMissingBinary(t *testing.T) {
	_, err := Inspect(context.Background(), "sleeve-definitely-missing-ffprobe", "/tmp/x.mp3")
	if !errors.Is(err, services.ErrMissingTool) {
		t.Fatalf("expected ErrMissingTool, got %v", err)
	}
}
