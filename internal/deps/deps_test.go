package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sleeve/internal/artifact"
	"sleeve/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[0].Path != present {
		t.Fatalf("expected resolved path %s, got %s", present, results[0].Path)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.FFmpeg = "/opt/ffmpeg/bin/ffmpeg"
	cfg.Tools.ValidateOutput = false

	reqs := Requirements(&cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" || reqs[0].Optional {
		t.Fatalf("unexpected ffmpeg requirement %+v", reqs[0])
	}
	if !reqs[1].Optional {
		t.Fatal("ffprobe should be optional when output validation is off")
	}
}

func TestCheckEncoders(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\ncat <<'OUT'\nEncoders:\n A..... = Audio\n ------\n A..... libopus              libopus Opus\n A..... flac                 FLAC\nOUT\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckEncoders(context.Background(), stub, artifact.FormatOpus96, artifact.FormatMP3V0, artifact.FormatFLAC)
	got := map[string]bool{}
	for _, status := range results {
		got[status.Name] = status.Available
	}
	want := map[string]bool{"flac": true, "libmp3lame": false, "libopus": true}
	if len(got) != len(want) {
		t.Fatalf("unexpected encoders %v", got)
	}
	for name, available := range want {
		if got[name] != available {
			t.Fatalf("encoder %s available=%v, want %v", name, got[name], available)
		}
	}
}

func TestCheckEncodersMissingBinary(t *testing.T) {
	results := CheckEncoders(context.Background(), filepath.Join(t.TempDir(), "ffmpeg"), AllFormats()...)
	if len(results) == 0 {
		t.Fatal("expected encoder statuses")
	}
	for _, status := range results {
		if status.Available || status.Detail == "" {
			t.Fatalf("expected unavailable encoder with detail, got %+v", status)
		}
	}
}
