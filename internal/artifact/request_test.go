package artifact_test

import (
	"strings"
	"testing"

	"sleeve/internal/artifact"
)

func fp(b byte) artifact.Fingerprint {
	var f artifact.Fingerprint
	f[0] = b
	return f
}

func TestParseAudioFormatAliases(t *testing.T) {
	cases := map[string]artifact.AudioFormat{
		"mp3":        artifact.FormatMP3V0,
		"MP3-V7":     artifact.FormatMP3V7,
		"opus":       artifact.FormatOpus128,
		"opus_48":    artifact.FormatOpus48,
		"ogg_vorbis": artifact.FormatOggVorbis,
	}
	for input, want := range cases {
		got, err := artifact.ParseAudioFormat(input)
		if err != nil {
			t.Fatalf("ParseAudioFormat(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseAudioFormat(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := artifact.ParseAudioFormat("mp4"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestStreamingFormatsAreFixed(t *testing.T) {
	frugal := artifact.StreamingFormats(artifact.StreamingFrugal)
	if len(frugal) != 2 || frugal[0] != artifact.FormatOpus48 || frugal[1] != artifact.FormatMP3V7 {
		t.Fatalf("unexpected frugal set %v", frugal)
	}
	standard := artifact.StreamingFormats(artifact.StreamingStandard)
	if len(standard) != 2 || standard[0] != artifact.FormatOpus96 || standard[1] != artifact.FormatMP3V5 {
		t.Fatalf("unexpected standard set %v", standard)
	}
}

func TestValidateRejectsMismatchedParams(t *testing.T) {
	req := &artifact.Request{
		Kind:    artifact.KindTranscode,
		Sources: []artifact.Source{{Path: "a.flac", Fingerprint: fp(1)}},
		Image:   &artifact.ImageParams{Mode: artifact.CoverSquare, Edge: 10, Quality: 80},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected transcode request with image params to fail")
	}
}

func TestValidateRequiresFingerprints(t *testing.T) {
	req := &artifact.Request{
		Kind:      artifact.KindTranscode,
		Sources:   []artifact.Source{{Path: "a.flac"}},
		Transcode: &artifact.TranscodeParams{Format: artifact.FormatFLAC, Tags: artifact.TagMapping{Mode: artifact.TagsCopy}},
	}
	err := req.Validate()
	if err == nil || !strings.Contains(err.Error(), "fingerprint") {
		t.Fatalf("expected fingerprint error, got %v", err)
	}
}

func TestValidateArchiveShape(t *testing.T) {
	track := &artifact.Request{
		Kind:      artifact.KindTranscode,
		Sources:   []artifact.Source{{Path: "a.flac", Fingerprint: fp(1)}},
		Transcode: &artifact.TranscodeParams{Format: artifact.FormatMP3V0, Tags: artifact.TagMapping{Mode: artifact.TagsCopy}},
	}
	archive := &artifact.Request{
		Kind:         artifact.KindArchive,
		Dependencies: []*artifact.Request{track},
		Archive:      &artifact.ArchiveParams{Format: artifact.FormatMP3V0, TrackNames: []string{"01 a.mp3"}},
	}
	if err := archive.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	archive.Archive.TrackNames = []string{"../escape.mp3"}
	if err := archive.Validate(); err == nil {
		t.Fatal("expected traversal name to be rejected")
	}

	nested := &artifact.Request{
		Kind:         artifact.KindArchive,
		Dependencies: []*artifact.Request{archive},
		Archive:      &artifact.ArchiveParams{Format: artifact.FormatMP3V0, TrackNames: []string{"x.zip"}},
	}
	if err := nested.Validate(); err == nil {
		t.Fatal("expected composite dependency to be rejected")
	}
}

func TestImageParamsValidate(t *testing.T) {
	valid := artifact.ImageParams{Mode: artifact.CoverRectangle, MinAspect: 1.5, MaxAspect: 3, MaxWidth: 1280, Quality: 80}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := valid
	bad.MaxAspect = 1
	if err := bad.Validate(); err == nil {
		t.Fatal("expected inverted aspect range to fail")
	}
}
