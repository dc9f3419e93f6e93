package buildplan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sleeve/internal/artifact"
	"sleeve/internal/buildplan"
	"sleeve/internal/contentkey"
	"sleeve/internal/services"
	"sleeve/internal/testsupport"
)

const samplePlan = `
[[release]]
title = "Night Drive"
artist = "Tape Loop"
download_formats = ["mp3", "flac", "mp3_v0"]
tags = "normalize"
extras = ["liner notes.txt"]

  [[release.track]]
  path = "night/01.flac"
  title = "Ignition"

  [[release.track]]
  path = "night/02.flac"

[[release]]
title = "Small Hours"
slug = "small"
streaming_quality = "frugal"
cover_image = "small/cover.png"

  [[release.track]]
  path = "small/a.wav"

[[image]]
path = "artist.png"
label = "Tape Loop Portrait"
mode = "cover_square"
edge = 320
`

func writePlan(t *testing.T, body string) (string, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"night/01.flac", "night/02.flac", "small/a.wav"} {
		testsupport.WriteText(t, filepath.Join(root, name), "audio "+name)
	}
	testsupport.WriteText(t, filepath.Join(root, "liner notes.txt"), "thanks")
	testsupport.WritePNG(t, filepath.Join(root, "small/cover.png"), 40, 40)
	testsupport.WritePNG(t, filepath.Join(root, "artist.png"), 60, 30)
	path := filepath.Join(root, "plan.toml")
	testsupport.WriteText(t, path, body)
	return root, path
}

func expand(t *testing.T, path string) []buildplan.Item {
	t.Helper()
	plan, err := buildplan.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	items, err := plan.Expand(context.Background(), buildplan.Options{
		Fingerprinter:    contentkey.NewFingerprinter(nil, nil),
		StreamingQuality: "standard",
		JPEGQuality:      85,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	return items
}

func byRole(items []buildplan.Item, release string, role buildplan.Role) []buildplan.Item {
	var out []buildplan.Item
	for _, item := range items {
		if item.Release == release && item.Role == role {
			out = append(out, item)
		}
	}
	return out
}

func TestLoadResolvesCatalogRoot(t *testing.T) {
	root, path := writePlan(t, samplePlan)
	plan, err := buildplan.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if plan.CatalogRoot != root {
		t.Fatalf("CatalogRoot = %q, want %q", plan.CatalogRoot, root)
	}
	if plan.Path() != path {
		t.Fatalf("Path = %q", plan.Path())
	}
}

func TestExpandRelease(t *testing.T) {
	_, path := writePlan(t, samplePlan)
	items := expand(t, path)

	stream := byRole(items, "night-drive", buildplan.RoleStream)
	if len(stream) != 4 {
		t.Fatalf("expected 2 tracks x 2 streaming formats, got %d", len(stream))
	}
	if got := stream[0].Request.Transcode.Format; got != artifact.FormatOpus96 {
		t.Fatalf("standard streaming should start with opus 96, got %s", got)
	}

	// mp3 and mp3_v0 are the same format and collapse to one archive.
	archives := byRole(items, "night-drive", buildplan.RoleArchive)
	if len(archives) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(archives))
	}
	zip := archives[0].Request
	if zip.Archive.Format != artifact.FormatMP3V0 || len(zip.Dependencies) != 2 {
		t.Fatalf("unexpected archive %+v", zip.Archive)
	}
	if got := zip.Archive.TrackNames; got[0] != "01 Ignition.mp3" || got[1] != "02 02.mp3" {
		t.Fatalf("track names %v", got)
	}
	if got := zip.Archive.ExtraNames; len(got) != 1 || got[0] != "liner notes.txt" {
		t.Fatalf("extra names %v", got)
	}
	if archives[0].Output != "night-drive/download/mp3_v0/Night Drive.zip" {
		t.Fatalf("archive output %q", archives[0].Output)
	}

	tags := zip.Dependencies[0].Transcode.Tags
	if tags.Mode != artifact.TagsCustom || tags.Fields["title"] != "Ignition" || tags.Fields["artist"] != "Tape Loop" || tags.Fields["track"] != "1" {
		t.Fatalf("normalized tags %+v", tags)
	}

	covers := byRole(items, "night-drive", buildplan.RoleCover)
	if len(covers) != len(artifact.CoverEdges) || covers[0].Request.Kind != artifact.KindCover {
		t.Fatalf("expected procedural covers, got %d", len(covers))
	}

	for _, item := range items {
		if _, err := contentkey.Compute(item.Request); err != nil {
			t.Fatalf("request %s does not key: %v", item.Request.Name(), err)
		}
	}
}

func TestExpandSecondReleaseAndImages(t *testing.T) {
	_, path := writePlan(t, samplePlan)
	items := expand(t, path)

	stream := byRole(items, "small", buildplan.RoleStream)
	if len(stream) != 2 || stream[0].Request.Transcode.Format != artifact.FormatOpus48 {
		t.Fatalf("frugal streaming set not used: %+v", stream)
	}
	if len(byRole(items, "small", buildplan.RoleArchive)) != 0 {
		t.Fatal("release without download formats should have no archive")
	}
	covers := byRole(items, "small", buildplan.RoleCover)
	if len(covers) != len(artifact.CoverEdges) || covers[0].Request.Kind != artifact.KindImage {
		t.Fatalf("expected resized cover images, got %+v", covers)
	}
	if covers[0].Request.Image.Quality != 85 {
		t.Fatalf("JPEG quality not applied: %d", covers[0].Request.Image.Quality)
	}

	images := byRole(items, "", buildplan.RoleImage)
	if len(images) != 1 || images[0].Output != "images/tape-loop-portrait.jpg" {
		t.Fatalf("unexpected images %+v", images)
	}
	if images[0].Request.Image.Mode != artifact.CoverSquare || images[0].Request.Image.Edge != 320 {
		t.Fatalf("image params %+v", images[0].Request.Image)
	}
}

func TestExpandSharesFingerprints(t *testing.T) {
	_, path := writePlan(t, samplePlan)
	items := expand(t, path)
	streams := byRole(items, "night-drive", buildplan.RoleStream)
	downloads := byRole(items, "night-drive", buildplan.RoleDownload)
	if streams[0].Request.Sources[0] != downloads[0].Request.Sources[0] {
		t.Fatal("same track fingerprinted differently")
	}
}

func TestLoadRejectsInvalidPlan(t *testing.T) {
	_, path := writePlan(t, `
[[release]]
title = ""
download_formats = ["mp4"]
tags = "rewrite"

[[image]]
path = "x.png"
mode = "cover_rectangle"
max_width = 100
`)
	_, err := buildplan.Load(path)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []string{"title is required", "at least one track", "mp4", "rewrite", "aspect range"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, path := writePlan(t, "[[release]]\ntitle = \"x\"\nflavour = \"mint\"\n")
	_, err := buildplan.Load(path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExpandReportsEveryMissingSource(t *testing.T) {
	root, path := writePlan(t, samplePlan)
	for _, name := range []string{"night/02.flac", "small/a.wav"} {
		if err := os.Remove(filepath.Join(root, name)); err != nil {
			t.Fatal(err)
		}
	}
	plan, err := buildplan.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = plan.Expand(context.Background(), buildplan.Options{Fingerprinter: contentkey.NewFingerprinter(nil, nil)})
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	for _, name := range []string{"02.flac", "a.wav"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}
