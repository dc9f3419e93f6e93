package coordinator

import (
	"context"
	"time"

	"sleeve/internal/artifact"
	"sleeve/internal/cachestore"
	"sleeve/internal/contentkey"
	"sleeve/internal/producer"
)

// Outcome is what happened to a request.
type Outcome string

const (
	OutcomeReused   Outcome = "reused"
	OutcomeProduced Outcome = "produced"
	OutcomeFailed   Outcome = "failed"
)

// Result reports one request.
type Result struct {
	Request *artifact.Request
	Key     contentkey.Key
	Outcome Outcome
	Entry   cachestore.Entry
	Err     error
}

// Report summarizes a run. Counts cover the top-level requests; a request
// listed twice counts twice, but its payload was produced at most once.
type Report struct {
	BuildID      string
	Generation   cachestore.Generation
	Results      []Result
	Reused       int
	Produced     int
	Failed       int
	BytesWritten int64
	Aborted      bool
	Duration     time.Duration
}

// Store is the subset of the cache the coordinator needs.
type Store interface {
	Lookup(ctx context.Context, key contentkey.Key) (cachestore.Entry, bool, error)
	Insert(ctx context.Context, p cachestore.Payload, gen cachestore.Generation) (cachestore.Entry, error)
	MarkUsed(ctx context.Context, key contentkey.Key, gen cachestore.Generation) error
	TempDir() string
}

// Producer builds payloads for cache misses.
type Producer interface {
	Produce(ctx context.Context, req *artifact.Request, deps []string, workDir string) (producer.Output, error)
}
