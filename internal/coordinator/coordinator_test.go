package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sleeve/internal/artifact"
	"sleeve/internal/cachestore"
	"sleeve/internal/config"
	"sleeve/internal/contentkey"
	"sleeve/internal/coordinator"
	"sleeve/internal/lifecycle"
	"sleeve/internal/logging"
	"sleeve/internal/producer"
	"sleeve/internal/services"
	"sleeve/internal/testsupport"
)

type fixture struct {
	cfg   *config.Config
	store *cachestore.Store
	music string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithCodecStubs()}, opts...)...)
	return &fixture{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
		music: filepath.Join(testsupport.BaseDir(cfg), "music"),
	}
}

func (f *fixture) coordinator(workers int) *coordinator.Coordinator {
	registry := producer.NewRegistry(producer.Options{
		FFmpeg:         f.cfg.Tools.FFmpeg,
		FFprobe:        f.cfg.Tools.FFprobe,
		ValidateOutput: true,
	})
	return coordinator.New(f.store, registry, coordinator.Options{
		Workers:         workers,
		ContinueOnError: f.cfg.Cache.ContinueOnError,
	})
}

func (f *fixture) track(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.music, name)
	testsupport.WriteText(t, path, content)
	return path
}

func transcode(t *testing.T, path string, format artifact.AudioFormat) *artifact.Request {
	t.Helper()
	return &artifact.Request{
		Kind:      artifact.KindTranscode,
		Sources:   []artifact.Source{testsupport.Source(t, path)},
		Transcode: &artifact.TranscodeParams{Format: format, Tags: artifact.TagMapping{Mode: artifact.TagsCopy}},
	}
}

func archive(deps ...*artifact.Request) *artifact.Request {
	names := make([]string, len(deps))
	for i := range deps {
		names[i] = fmt.Sprintf("%02d.mp3", i+1)
	}
	return &artifact.Request{
		Kind:         artifact.KindArchive,
		Label:        "release.zip",
		Archive:      &artifact.ArchiveParams{Format: artifact.FormatMP3V0, TrackNames: names},
		Dependencies: deps,
	}
}

func (f *fixture) release(t *testing.T) []*artifact.Request {
	t.Helper()
	one := f.track(t, "01.flac", "first")
	two := f.track(t, "02.flac", "second")
	art := filepath.Join(f.music, "cover.png")
	testsupport.WritePNG(t, art, 64, 48)

	mp3One := transcode(t, one, artifact.FormatMP3V0)
	mp3Two := transcode(t, two, artifact.FormatMP3V0)
	return []*artifact.Request{
		transcode(t, one, artifact.FormatOpus96),
		transcode(t, two, artifact.FormatOpus96),
		mp3One,
		mp3Two,
		{
			Kind:    artifact.KindImage,
			Sources: []artifact.Source{testsupport.Source(t, art)},
			Image:   &artifact.ImageParams{Mode: artifact.CoverSquare, Edge: 32, Quality: 80},
		},
		{
			Kind:    artifact.KindCover,
			Label:   "procedural cover",
			Sources: []artifact.Source{testsupport.Source(t, one), testsupport.Source(t, two)},
			Cover: &artifact.CoverParams{
				Style: artifact.CoverStyleRings, Edge: 120, MaxTracks: 12,
				Background: "#101010", Foreground: "#f0f0f0",
			},
		},
		archive(mp3One, mp3Two),
	}
}

func TestRunProducesThenReuses(t *testing.T) {
	f := newFixture(t)
	requests := f.release(t)

	first, err := f.coordinator(4).Run(context.Background(), requests)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Produced != len(requests) || first.Reused != 0 || first.Failed != 0 {
		t.Fatalf("first run counts produced=%d reused=%d failed=%d", first.Produced, first.Reused, first.Failed)
	}
	if first.BytesWritten <= 0 {
		t.Fatalf("expected bytes written, got %d", first.BytesWritten)
	}
	invocations := len(testsupport.FFmpegInvocations(t, f.cfg))
	if invocations != 4 {
		t.Fatalf("expected 4 transcodes, got %d", invocations)
	}
	for _, res := range first.Results {
		if _, err := os.Stat(res.Entry.PayloadPath); err != nil {
			t.Fatalf("payload for %s missing: %v", res.Request.Name(), err)
		}
	}

	second, err := f.coordinator(4).Run(context.Background(), f.release(t))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Reused != len(requests) || second.Produced != 0 {
		t.Fatalf("second run counts produced=%d reused=%d", second.Produced, second.Reused)
	}
	if got := len(testsupport.FFmpegInvocations(t, f.cfg)); got != invocations {
		t.Fatalf("second run invoked ffmpeg %d more times", got-invocations)
	}
	for i, res := range second.Results {
		if res.Key != first.Results[i].Key {
			t.Fatalf("key for %s changed between runs", res.Request.Name())
		}
		if res.Entry.GenerationID != second.Generation.ID {
			t.Fatalf("entry %s not stamped with the new generation", res.Request.Name())
		}
	}
}

func TestTagRuleChangeProducesAgainAndStalesOldEntries(t *testing.T) {
	f := newFixture(t)
	one := f.track(t, "01.flac", "first")
	two := f.track(t, "02.flac", "second")
	requests := func(tags artifact.TagMapping) []*artifact.Request {
		reqs := []*artifact.Request{transcode(t, one, artifact.FormatMP3V5), transcode(t, two, artifact.FormatMP3V5)}
		for _, req := range reqs {
			req.Transcode.Tags = tags
		}
		return reqs
	}
	build := func(tags artifact.TagMapping) coordinator.Report {
		t.Helper()
		ctx := context.Background()
		gen := cachestore.NewGeneration(time.Now())
		if _, err := lifecycle.Begin(ctx, f.store, gen); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		report, err := f.coordinator(2).RunGeneration(ctx, gen, requests(tags))
		if err != nil {
			t.Fatalf("RunGeneration: %v", err)
		}
		if _, err := lifecycle.Apply(ctx, f.store, gen, config.RetentionDelayed, 24*time.Hour, logging.NewNop()); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		return report
	}
	outcomes := func(report coordinator.Report) []coordinator.Outcome {
		out := make([]coordinator.Outcome, len(report.Results))
		for i, res := range report.Results {
			out[i] = res.Outcome
		}
		return out
	}
	want := func(name string, report coordinator.Report, outcome coordinator.Outcome) {
		t.Helper()
		for _, got := range outcomes(report) {
			if got != outcome {
				t.Fatalf("%s outcomes = %v, want all %s", name, outcomes(report), outcome)
			}
		}
	}

	copyTags := artifact.TagMapping{Mode: artifact.TagsCopy}
	first := build(copyTags)
	want("first build", first, coordinator.OutcomeProduced)
	want("second build", build(copyTags), coordinator.OutcomeReused)

	third := build(artifact.TagMapping{Mode: artifact.TagsRemove})
	want("third build", third, coordinator.OutcomeProduced)

	entries, err := f.store.List(context.Background())
	if err != nil || len(entries) != 4 {
		t.Fatalf("List = %d entries, %v; want 4", len(entries), err)
	}
	stale, err := f.store.ListStale(context.Background())
	if err != nil || len(stale) != 2 {
		t.Fatalf("ListStale = %d entries, %v; want 2", len(stale), err)
	}
	old := map[string]bool{first.Results[0].Key.String(): true, first.Results[1].Key.String(): true}
	for _, e := range stale {
		if !old[e.Key.String()] {
			t.Fatalf("stale entry %s is not from the first tag rule", e.Key.Short())
		}
	}
}

func TestRunDeduplicatesIdenticalRequests(t *testing.T) {
	f := newFixture(t)
	src := f.track(t, "01.flac", "same")

	a := transcode(t, src, artifact.FormatOpus48)
	b := transcode(t, src, artifact.FormatOpus48)
	b.Label = "other label"

	report, err := f.coordinator(4).Run(context.Background(), []*artifact.Request{a, b, archive(transcode(t, src, artifact.FormatOpus48))})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := testsupport.FFmpegInvocations(t, f.cfg); len(got) != 1 {
		t.Fatalf("expected one transcode, got %v", got)
	}
	if report.Results[0].Key != report.Results[1].Key {
		t.Fatal("identical requests produced different keys")
	}
}

func TestRunRegeneratesMissingPayload(t *testing.T) {
	f := newFixture(t)
	src := f.track(t, "01.flac", "heal me")
	req := transcode(t, src, artifact.FormatMP3V5)

	first, err := f.coordinator(1).Run(context.Background(), []*artifact.Request{req})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := os.Remove(first.Results[0].Entry.PayloadPath); err != nil {
		t.Fatalf("remove payload: %v", err)
	}

	second, err := f.coordinator(1).Run(context.Background(), []*artifact.Request{req})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Produced != 1 {
		t.Fatalf("expected regeneration, got produced=%d reused=%d", second.Produced, second.Reused)
	}
	if got := testsupport.FFmpegInvocations(t, f.cfg); len(got) != 2 {
		t.Fatalf("expected two transcodes, got %v", got)
	}
	if _, err := os.Stat(second.Results[0].Entry.PayloadPath); err != nil {
		t.Fatalf("regenerated payload missing: %v", err)
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t)
	bad := f.track(t, "corrupt.flac", "junk")
	good := f.track(t, "02.flac", "fine")

	report, err := f.coordinator(1).Run(context.Background(), []*artifact.Request{
		transcode(t, bad, artifact.FormatOpus96),
		transcode(t, good, artifact.FormatOpus96),
	})
	if err == nil {
		t.Fatal("expected build error")
	}
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error in build error, got %v", err)
	}
	if !report.Aborted || report.Failed != 2 {
		t.Fatalf("expected aborted build with 2 failures, got aborted=%v failed=%d", report.Aborted, report.Failed)
	}
	if !report.Results[1].Skipped() {
		t.Fatalf("expected second request to be skipped, got %v", report.Results[1].Err)
	}
	if got := testsupport.FFmpegInvocations(t, f.cfg); len(got) != 1 {
		t.Fatalf("expected only the failing transcode to run, got %v", got)
	}
}

func TestRunContinuesOnErrorWhenConfigured(t *testing.T) {
	f := newFixture(t, testsupport.WithContinueOnError(true))
	bad := f.track(t, "corrupt.flac", "junk")
	good := f.track(t, "02.flac", "fine")

	report, err := f.coordinator(1).Run(context.Background(), []*artifact.Request{
		transcode(t, bad, artifact.FormatOpus96),
		transcode(t, good, artifact.FormatOpus96),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Aborted || report.Failed != 1 || report.Produced != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	failure := report.Failures()[0]
	if failure.Request.SourcePath() != bad || services.Classify(failure.Err) != services.ClassInput {
		t.Fatalf("unexpected failure %+v", failure)
	}
}

func TestRunFailsCompositeWhenDependencyFails(t *testing.T) {
	f := newFixture(t, testsupport.WithContinueOnError(true))
	bad := f.track(t, "crash.flac", "boom")
	good := f.track(t, "02.flac", "fine")

	zip := archive(transcode(t, good, artifact.FormatMP3V0), transcode(t, bad, artifact.FormatMP3V0))
	report, err := f.coordinator(2).Run(context.Background(), []*artifact.Request{zip})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := report.Results[0]
	if res.Outcome != coordinator.OutcomeFailed {
		t.Fatalf("expected archive failure, got %s", res.Outcome)
	}
	if !strings.Contains(res.Err.Error(), "crash.flac") || !errors.Is(res.Err, services.ErrExternalTool) {
		t.Fatalf("expected failure naming the dependency, got %v", res.Err)
	}
	entries, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != artifact.KindTranscode {
		t.Fatalf("expected only the good transcode cached, got %+v", entries)
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, testsupport.WithContinueOnError(true))
	good := f.track(t, "01.flac", "ok")
	invalid := &artifact.Request{Kind: artifact.KindTranscode, Label: "no params"}

	report, err := f.coordinator(2).Run(context.Background(), []*artifact.Request{invalid, transcode(t, good, artifact.FormatWAV)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[0].Outcome != coordinator.OutcomeFailed || !errors.Is(report.Results[0].Err, services.ErrValidation) {
		t.Fatalf("expected validation failure, got %+v", report.Results[0])
	}
	if report.Results[1].Outcome != coordinator.OutcomeProduced {
		t.Fatalf("expected valid request to be produced, got %+v", report.Results[1])
	}
}

type resourceFailer struct{ calls atomic.Int32 }

func (p *resourceFailer) Produce(context.Context, *artifact.Request, []string, string) (producer.Output, error) {
	p.calls.Add(1)
	return producer.Output{}, services.Wrap(services.ErrResource, "test", "write", "disk full", nil)
}

func TestResourceFailureAbortsEvenWhenContinuing(t *testing.T) {
	f := newFixture(t)
	one := f.track(t, "01.flac", "a")
	two := f.track(t, "02.flac", "b")
	failer := &resourceFailer{}

	c := coordinator.New(f.store, failer, coordinator.Options{Workers: 1, ContinueOnError: true})
	report, err := c.Run(context.Background(), []*artifact.Request{
		transcode(t, one, artifact.FormatFLAC),
		transcode(t, two, artifact.FormatFLAC),
	})
	if err == nil || !errors.Is(err, services.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if failer.calls.Load() != 1 {
		t.Fatalf("expected a single production attempt, got %d", failer.calls.Load())
	}
	if !report.Results[1].Skipped() {
		t.Fatalf("expected second request skipped, got %+v", report.Results[1])
	}
}

type unmarkableStore struct{ *cachestore.Store }

func (unmarkableStore) MarkUsed(context.Context, contentkey.Key, cachestore.Generation) error {
	return errors.New("database is locked")
}

func TestHitThatCannotBeMarkedIsProducedAgain(t *testing.T) {
	f := newFixture(t)
	src := f.track(t, "01.flac", "a")
	ctx := context.Background()

	if _, err := f.coordinator(1).Run(ctx, []*artifact.Request{transcode(t, src, artifact.FormatFLAC)}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := len(testsupport.FFmpegInvocations(t, f.cfg))

	gen := cachestore.NewGeneration(time.Now())
	if _, err := lifecycle.Begin(ctx, f.store, gen); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	registry := producer.NewRegistry(producer.Options{FFmpeg: f.cfg.Tools.FFmpeg, FFprobe: f.cfg.Tools.FFprobe})
	c := coordinator.New(unmarkableStore{f.store}, registry, coordinator.Options{Workers: 1})
	report, err := c.RunGeneration(ctx, gen, []*artifact.Request{transcode(t, src, artifact.FormatFLAC)})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := report.Results[0].Outcome; got != coordinator.OutcomeProduced {
		t.Fatalf("outcome = %s, want %s", got, coordinator.OutcomeProduced)
	}
	if got := len(testsupport.FFmpegInvocations(t, f.cfg)); got != before+1 {
		t.Fatalf("expected one more transcode, got %d", got-before)
	}

	if _, err := lifecycle.Apply(ctx, f.store, gen, config.RetentionImmediate, 0, logging.NewNop()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	entries, err := f.store.List(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("List = %d entries, %v; want the entry kept", len(entries), err)
	}
	if _, err := os.Stat(entries[0].PayloadPath); err != nil {
		t.Fatalf("payload removed: %v", err)
	}
}

func TestRunHonorsCanceledContext(t *testing.T) {
	f := newFixture(t)
	src := f.track(t, "01.flac", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coordinator(1).Run(ctx, []*artifact.Request{transcode(t, src, artifact.FormatFLAC)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := testsupport.FFmpegInvocations(t, f.cfg); len(got) != 0 {
		t.Fatalf("expected no transcodes, got %v", got)
	}
}
