package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"sleeve/internal/logging"
	"sleeve/internal/services"
)

// layoutVersion is bumped whenever the on-disk layout changes incompatibly.
// A directory without the matching marker is purged and recreated.
const layoutVersion = 1

const (
	indexFile  = "index.db"
	payloadDir = "payloads"
	tmpDir     = "tmp"
	lockFile   = "cache.lock"
)

// ErrLocked indicates another process holds the cache directory.
var ErrLocked = errors.New("cache directory is locked by another sleeve process")

// Options tunes a store.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Store is the persistent artifact cache.
type Store struct {
	dir    string
	db     *sql.DB
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time

	// mu serializes every index mutation and the payload moves that precede
	// them.
	mu sync.Mutex
}

func markerName() string {
	return fmt.Sprintf("sleeve-cache.v%d.marker", layoutVersion)
}

// Open locks dir, reconciles its layout and index, and sweeps orphaned
// payloads. An unreadable index is discarded rather than reported.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	ctx = ensureContext(ctx)
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "cache directory is empty", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, resourceError("create cache directory", abs, err)
	}

	lock := flock.New(filepath.Join(abs, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, resourceError("lock cache directory", abs, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, abs)
	}

	s := &Store{
		dir:    abs,
		lock:   lock,
		logger: logging.NewComponentLogger(opts.Logger, "cache"),
		now:    opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) open(ctx context.Context) error {
	if err := s.ensureLayout(ctx); err != nil {
		return err
	}
	if err := s.openIndex(ctx); err != nil {
		logging.WarnWithContext(ctx, s.logger, "cache index unusable; starting with an empty index", "cache_index_reset",
			logging.String("index_path", s.indexPath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "every artifact is rebuilt on this run"),
			logging.String(logging.FieldErrorHint, "no action needed; orphaned payloads are removed automatically"),
		)
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}
		if err := s.removeIndexFiles(); err != nil {
			return resourceError("remove index", s.indexPath(), err)
		}
		if err := s.openIndex(ctx); err != nil {
			return services.Wrap(services.ErrResource, "cache", "open index", s.indexPath(), err)
		}
	}
	if _, err := s.SweepOrphans(ctx); err != nil {
		return err
	}
	return nil
}

// ensureLayout purges a directory written by another layout version and
// creates the payload and scratch directories.
func (s *Store) ensureLayout(ctx context.Context) error {
	marker := filepath.Join(s.dir, markerName())
	if _, err := os.Stat(marker); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return resourceError("stat marker", marker, err)
		}
		purged, err := s.purgeForeignLayout()
		if err != nil {
			return err
		}
		if purged > 0 {
			s.logger.InfoContext(ctx, "cache layout changed; previous cache discarded",
				logging.Int("removed_entries", purged),
				logging.String("cache_dir", s.dir),
			)
		}
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return resourceError("write marker", marker, err)
		}
	}
	for _, sub := range []string{payloadDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return resourceError("create directory", filepath.Join(s.dir, sub), err)
		}
	}
	return nil
}

func (s *Store) purgeForeignLayout() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, resourceError("list cache directory", s.dir, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.Name() == lockFile {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, resourceError("purge", path, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) openIndex(ctx context.Context) error {
	// busy_timeout in the DSN applies to every pooled connection.
	db, err := sql.Open("sqlite", s.indexPath()+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	s.db = db

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("quick check: %s", check)
	}
	return s.initSchema(ctx)
}

func (s *Store) removeIndexFiles() error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.indexPath() + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Close releases the index and the directory lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Dir returns the absolute cache directory.
func (s *Store) Dir() string { return s.dir }

// TempDir returns the scratch directory inside the cache. Producers writing
// here can have their output renamed into place without a copy.
func (s *Store) TempDir() string { return filepath.Join(s.dir, tmpDir) }

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

func resourceError(op, path string, err error) error {
	if services.IsResourceError(err) {
		return services.Wrap(services.ErrResource, "cache", op, path, err)
	}
	return fmt.Errorf("cache: %s %s: %w", op, path, err)
}
