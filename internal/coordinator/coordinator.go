package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sleeve/internal/artifact"
	"sleeve/internal/cachestore"
	"sleeve/internal/contentkey"
	"sleeve/internal/logging"
	"sleeve/internal/services"
)

// Options tunes a coordinator.
type Options struct {
	Workers         int
	ContinueOnError bool
	// WorkDir is where producers write; it defaults to the store's scratch
	// directory.
	WorkDir string
	// CatalogRoot is only used in log lines.
	CatalogRoot string
	Logger      *slog.Logger
	Now         func() time.Time
}

// Coordinator resolves requests against a store.
type Coordinator struct {
	store     Store
	producers Producer
	opts      Options
	logger    *slog.Logger
}

// New builds a coordinator.
func New(store Store, producers Producer, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:     store,
		producers: producers,
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "coordinator"),
	}
}

// node is one distinct content key in the run. Only the goroutine resolving
// it writes its fields; readers wait for the phase to finish.
type node struct {
	key     contentkey.Key
	req     *artifact.Request
	deps    []*node
	outcome Outcome
	entry   cachestore.Entry
	err     error
	written int64
}

func (n *node) ok() bool {
	return n.outcome == OutcomeReused || n.outcome == OutcomeProduced
}

type run struct {
	c        *Coordinator
	gen      cachestore.Generation
	ctx      context.Context
	dispatch context.Context
	abort    context.CancelFunc
	workDir  string

	mu       sync.Mutex
	firstErr error
	done     int
	total    int
	sampler  *logging.ProgressSampler
}

// Run resolves requests in a fresh generation.
func (c *Coordinator) Run(ctx context.Context, requests []*artifact.Request) (Report, error) {
	return c.RunGeneration(ctx, cachestore.NewGeneration(c.opts.Now()), requests)
}

// RunGeneration resolves requests as part of gen. Lifecycle bookkeeping for
// gen (marking untouched entries stale) is the caller's job.
func (c *Coordinator) RunGeneration(ctx context.Context, gen cachestore.Generation, requests []*artifact.Request) (Report, error) {
	started := c.opts.Now()
	ctx = services.WithBuildID(ctx, gen.ID)
	dispatch, abort := context.WithCancel(ctx)
	defer abort()

	r := &run{
		c:        c,
		gen:      gen,
		ctx:      ctx,
		dispatch: dispatch,
		abort:    abort,
		workDir:  c.opts.WorkDir,
		sampler:  logging.NewProgressSampler(10),
	}
	if r.workDir == "" {
		r.workDir = c.store.TempDir()
	}

	report := Report{BuildID: gen.ID, Generation: gen}
	nodes := make(map[contentkey.Key]*node)
	var order []*node
	tops := make([]*node, len(requests))
	invalid := make([]error, len(requests))

	var intern func(req *artifact.Request) (*node, error)
	intern = func(req *artifact.Request) (*node, error) {
		key, err := contentkey.Compute(req)
		if err != nil {
			return nil, err
		}
		if n, ok := nodes[key]; ok {
			return n, nil
		}
		n := &node{key: key, req: req}
		for _, dep := range req.Dependencies {
			dn, err := intern(dep)
			if err != nil {
				return nil, fmt.Errorf("dependency %q: %w", dep.Name(), err)
			}
			n.deps = append(n.deps, dn)
		}
		nodes[key] = n
		order = append(order, n)
		return n, nil
	}
	for i, req := range requests {
		n, err := intern(req)
		if err != nil {
			invalid[i] = err
			r.fail(req, err)
			continue
		}
		tops[i] = n
	}

	var leaves, composites []*node
	for _, n := range order {
		if n.req.Kind.Composite() {
			composites = append(composites, n)
		} else {
			leaves = append(leaves, n)
		}
	}
	r.total = len(order)
	c.logger.InfoContext(ctx, "resolving artifacts",
		logging.Int("requests", len(requests)),
		logging.Int("distinct", len(order)),
		logging.Int("workers", c.opts.Workers),
		logging.String("catalog", c.opts.CatalogRoot),
	)

	r.phase("leaves", leaves)
	for _, n := range composites {
		for _, dep := range n.deps {
			if !dep.ok() {
				n.outcome = OutcomeFailed
				n.err = fmt.Errorf("dependency %q failed: %w", dep.req.Name(), dep.err)
				break
			}
		}
	}
	pending := composites[:0:0]
	for _, n := range composites {
		if n.outcome == "" {
			pending = append(pending, n)
		}
	}
	r.phase("composites", pending)

	for i, req := range requests {
		var res Result
		if tops[i] == nil {
			res = Result{Request: req, Outcome: OutcomeFailed, Err: invalid[i]}
		} else {
			n := tops[i]
			res = Result{Request: req, Key: n.key, Outcome: n.outcome, Entry: n.entry, Err: n.err}
		}
		switch res.Outcome {
		case OutcomeReused:
			report.Reused++
		case OutcomeProduced:
			report.Produced++
		default:
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	for _, n := range order {
		report.BytesWritten += n.written
	}
	report.Aborted = dispatch.Err() != nil && ctx.Err() == nil
	report.Duration = c.opts.Now().Sub(started)

	c.logger.InfoContext(ctx, "artifacts resolved",
		logging.Int("reused", report.Reused),
		logging.Int("produced", report.Produced),
		logging.Int("failed", report.Failed),
		logging.Int64("bytes_written", report.BytesWritten),
		logging.Duration("duration", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Aborted {
		return report, fmt.Errorf("build aborted after %d failed artifact(s): %w", report.Failed, r.firstErr)
	}
	return report, nil
}

// phase resolves nodes on the worker pool and waits for all of them.
func (r *run) phase(name string, nodes []*node) {
	var g errgroup.Group
	g.SetLimit(r.c.opts.Workers)
	for _, n := range nodes {
		if r.dispatch.Err() != nil {
			r.skip(n)
			continue
		}
		g.Go(func() error {
			if r.dispatch.Err() != nil {
				r.skip(n)
				return nil
			}
			r.resolve(n)
			r.progress(name)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) skip(n *node) {
	if n.outcome != "" {
		return
	}
	n.outcome = OutcomeFailed
	n.err = fmt.Errorf("not started: %w", context.Canceled)
}

// resolve looks n up and produces it on a miss. In-flight work uses the run
// context rather than the dispatch context so an abort lets it finish.
func (r *run) resolve(n *node) {
	ctx := services.WithArtifact(r.ctx, string(n.req.Kind), n.key.String())
	logger := r.c.logger

	entry, hit, err := r.c.store.Lookup(ctx, n.key)
	if err != nil {
		logging.WarnWithContext(ctx, logger, "cache lookup failed; producing artifact", "cache_lookup_failed",
			logging.String(logging.FieldSource, n.req.SourcePath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact is produced again"),
		)
	}
	if hit {
		if err := r.c.store.MarkUsed(ctx, n.key, r.gen); err != nil {
			// An unmarked hit would stay stale and could be purged by this
			// generation's retention pass. Producing again re-stamps it.
			logging.WarnWithContext(ctx, logger, "failed to mark cache entry used; producing artifact", "cache_mark_used_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "artifact is produced again"),
			)
		} else {
			entry.GenerationID = r.gen.ID
			entry.LastUsedAt = r.c.opts.Now()
			entry.StaleSince = nil
			n.outcome = OutcomeReused
			n.entry = entry
			logger.DebugContext(ctx, "reused cached artifact", logging.String("label", n.req.Name()))
			return
		}
	}

	depPaths := make([]string, len(n.deps))
	for i, dep := range n.deps {
		depPaths[i] = dep.entry.PayloadPath
	}
	workDir, err := os.MkdirTemp(r.workDir, "job-*")
	if err != nil {
		r.failNode(ctx, n, services.Wrap(services.ErrResource, "coordinator", "work dir", r.workDir, err))
		return
	}
	defer os.RemoveAll(workDir)

	out, err := r.c.producers.Produce(ctx, n.req, depPaths, workDir)
	if err != nil {
		r.failNode(ctx, n, err)
		return
	}
	label := n.req.Name()
	if out.Detail != "" {
		label += " (" + out.Detail + ")"
	}
	entry, err = r.c.store.Insert(ctx, cachestore.Payload{
		Key:   n.key,
		Kind:  n.req.Kind,
		Label: label,
		Path:  out.Path,
		Probe: out.Probe,
	}, r.gen)
	if err != nil {
		r.failNode(ctx, n, err)
		return
	}
	n.outcome = OutcomeProduced
	n.entry = entry
	n.written = entry.ByteSize
	logger.InfoContext(ctx, "produced artifact",
		logging.String("label", label),
		logging.Int64("bytes", entry.ByteSize),
	)
}

func (r *run) failNode(ctx context.Context, n *node, err error) {
	n.outcome = OutcomeFailed
	n.err = err
	class := services.Classify(err)
	logging.ErrorWithContext(ctx, r.c.logger, "artifact failed", "artifact_failed",
		logging.String("label", n.req.Name()),
		logging.String(logging.FieldSource, n.req.SourcePath()),
		logging.String("failure_class", string(class)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(class)),
	)
	r.fail(n.req, err)
}

// fail records a failure and stops dispatch when the build cannot continue.
func (r *run) fail(req *artifact.Request, err error) {
	r.mu.Lock()
	if r.firstErr == nil {
		r.firstErr = fmt.Errorf("%s %q: %w", req.Kind, req.Name(), err)
	}
	r.mu.Unlock()
	if !r.c.opts.ContinueOnError || services.Classify(err) == services.ClassResource {
		r.abort()
	}
}

func (r *run) progress(phase string) {
	r.mu.Lock()
	r.done++
	done, total := r.done, r.total
	emit := r.sampler.ShouldLog(phase, done, total)
	r.mu.Unlock()
	if emit {
		r.c.logger.InfoContext(r.ctx, "build progress",
			logging.String("phase", phase),
			logging.Int("done", done),
			logging.Int("total", total),
		)
	}
}

func hintFor(class services.FailureClass) string {
	switch class {
	case services.ClassInput:
		return "check that the source file is a supported, uncorrupted media file"
	case services.ClassTool:
		return "run 'sleeve deps' to verify ffmpeg and its encoders"
	case services.ClassResource:
		return "free disk space or fix permissions on the cache directory"
	case services.ClassCanceled:
		return "build was interrupted"
	default:
		return "check logs for details"
	}
}

// Failures returns the failed results of a report.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Skipped reports whether a failed result never started because the build
// was aborted.
func (res Result) Skipped() bool {
	return res.Outcome == OutcomeFailed && errors.Is(res.Err, context.Canceled)
}
