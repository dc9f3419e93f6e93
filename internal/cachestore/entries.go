package cachestore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sleeve/internal/artifact"
	"sleeve/internal/contentkey"
	"sleeve/internal/fileutil"
	"sleeve/internal/logging"
	"sleeve/internal/services"
)

// ErrNotFound indicates no entry matched.
var ErrNotFound = errors.New("cache entry not found")

// Payload describes a freshly produced artifact handed to Insert.
type Payload struct {
	Key   contentkey.Key
	Kind  artifact.Kind
	Label string
	// Path is the produced file. Insert moves it into the store.
	Path string
	// Probe is optional inspection output kept beside the entry.
	Probe []byte
}

// Insert moves the payload into the store and then records the index row,
// marked as used by gen. An existing row for the same key is replaced.
func (s *Store) Insert(ctx context.Context, p Payload, gen Generation) (Entry, error) {
	ctx = ensureContext(ctx)
	if p.Key.IsZero() {
		return Entry{}, services.Wrap(services.ErrValidation, "cache", "insert", "zero content key", nil)
	}
	info, err := os.Stat(p.Path)
	if err != nil {
		return Entry{}, resourceError("stat produced payload", p.Path, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("cache: produced payload %s is not a regular file", p.Path)
	}
	probe, err := compressProbe(p.Probe)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: compress probe: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dest := s.PayloadPath(p.Key)
	if err := fileutil.PublishFile(p.Path, dest); err != nil {
		return Entry{}, resourceError("write payload", dest, err)
	}

	now := formatTime(s.now())
	_, err = s.exec(ctx, `INSERT INTO entries
		(content_key, kind, schema_version, payload_name, byte_size, label, created_at, last_used_at, generation_id, stale_since, probe_zstd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(content_key) DO UPDATE SET
			kind = excluded.kind,
			schema_version = excluded.schema_version,
			payload_name = excluded.payload_name,
			byte_size = excluded.byte_size,
			label = excluded.label,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at,
			generation_id = excluded.generation_id,
			stale_since = NULL,
			probe_zstd = excluded.probe_zstd`,
		p.Key.String(), string(p.Kind), artifact.SchemaVersion(p.Kind), contentkey.PayloadName(p.Key),
		info.Size(), nullableString(p.Label), now, now, nullableString(gen.ID), nullableBytes(probe),
	)
	if err != nil {
		return Entry{}, resourceError("index payload", p.Key.String(), err)
	}
	return s.get(ctx, p.Key)
}

// Lookup returns the entry for key when its payload is present and intact.
// A row whose payload is missing, unreadable or the wrong size is removed and
// reported as a miss. Lookup does not mark the entry used.
func (s *Store) Lookup(ctx context.Context, key contentkey.Key) (Entry, bool, error) {
	ctx = ensureContext(ctx)
	entry, err := s.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	if problem := verifyPayload(entry); problem != nil {
		logging.WarnWithContext(ctx, s.logger, "cache entry invalid; rebuilding", "cache_entry_invalid",
			logging.String(logging.FieldContentKey, entry.Key.Short()),
			logging.String(logging.FieldKind, string(entry.Kind)),
			logging.String("payload_path", entry.PayloadPath),
			logging.Error(services.Wrap(services.ErrIntegrity, "cache", "verify payload", entry.Label, problem)),
			logging.String(logging.FieldImpact, "artifact is produced again"),
		)
		if _, err := s.Remove(ctx, key); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func verifyPayload(entry Entry) error {
	f, err := os.Open(entry.PayloadPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return errors.New("payload is not a regular file")
	}
	if info.Size() != entry.ByteSize {
		return fmt.Errorf("payload is %d bytes, index says %d", info.Size(), entry.ByteSize)
	}
	return nil
}

// Get returns the indexed entry for key without verifying its payload.
func (s *Store) Get(ctx context.Context, key contentkey.Key) (Entry, error) {
	return s.get(ensureContext(ctx), key)
}

func (s *Store) get(ctx context.Context, key contentkey.Key) (Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE content_key = ?", key.String())
	entry, err := s.scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache: read entry %s: %w", key.Short(), err)
	}
	return entry, nil
}

// Resolve finds the single entry whose hex key starts with prefix.
func (s *Store) Resolve(ctx context.Context, prefix string) (Entry, error) {
	ctx = ensureContext(ctx)
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || strings.Trim(prefix, "0123456789abcdef") != "" {
		return Entry{}, fmt.Errorf("%w: %q is not a hex key prefix", ErrNotFound, prefix)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE content_key LIKE ? ORDER BY content_key LIMIT 2", prefix+"%")
	if err != nil {
		return Entry{}, err
	}
	entries, err := s.collect(rows)
	if err != nil {
		return Entry{}, err
	}
	switch len(entries) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return entries[0], nil
	default:
		return Entry{}, fmt.Errorf("key prefix %s is ambiguous", prefix)
	}
}

// MarkUsed records that gen referenced key, clearing any stale mark.
func (s *Store) MarkUsed(ctx context.Context, key contentkey.Key, gen Generation) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.exec(ctx,
		"UPDATE entries SET last_used_at = ?, generation_id = ?, stale_since = NULL WHERE content_key = ?",
		formatTime(s.now()), nullableString(gen.ID), key.String())
	if err != nil {
		return fmt.Errorf("cache: mark used %s: %w", key.Short(), err)
	}
	return nil
}

// MarkAllUnused stamps every entry that is not already stale and was not used
// by gen with the generation start. Earlier stale marks are preserved so the
// grace window measures time since first disuse.
func (s *Store) MarkAllUnused(ctx context.Context, gen Generation) (int64, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.exec(ctx,
		"UPDATE entries SET stale_since = ? WHERE stale_since IS NULL AND (generation_id IS NULL OR generation_id != ?)",
		formatTime(gen.StartedAt), gen.ID)
	if err != nil {
		return 0, fmt.Errorf("cache: mark unused: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// List returns every entry, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+entryColumns+" FROM entries ORDER BY created_at, content_key")
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

// ListStale returns entries carrying a stale mark, longest stale first.
func (s *Store) ListStale(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE stale_since IS NOT NULL ORDER BY stale_since, content_key")
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

func (s *Store) collect(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Remove deletes the index row and then the payload. It returns the bytes
// reclaimed; removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key contentkey.Key) (int64, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, key)
}

func (s *Store) removeLocked(ctx context.Context, key contentkey.Key) (int64, error) {
	entry, err := s.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.exec(ctx, "DELETE FROM entries WHERE content_key = ?", key.String()); err != nil {
		return 0, fmt.Errorf("cache: delete entry %s: %w", key.Short(), err)
	}
	if err := removePayload(entry.PayloadPath); err != nil {
		// The row is gone; the orphan sweep retries the file on next open.
		s.logger.DebugContext(ctx, "payload removal deferred",
			logging.String("payload_path", entry.PayloadPath),
			logging.Error(err),
		)
	}
	return entry.ByteSize, nil
}

// RemoveAll empties the store: every row, payload and scratch file.
func (s *Store) RemoveAll(ctx context.Context) (int, int64, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		count int
		total int64
	)
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1), COALESCE(SUM(byte_size), 0) FROM entries").Scan(&count, &total); err != nil {
		return 0, 0, err
	}
	if _, err := s.exec(ctx, "DELETE FROM entries"); err != nil {
		return 0, 0, fmt.Errorf("cache: clear index: %w", err)
	}
	if _, err := s.exec(ctx, "DELETE FROM source_stats"); err != nil {
		return 0, 0, fmt.Errorf("cache: clear fingerprint memo: %w", err)
	}
	for _, sub := range []string{payloadDir, tmpDir} {
		path := filepath.Join(s.dir, sub)
		if err := os.RemoveAll(path); err != nil {
			return count, total, resourceError("remove", path, err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return count, total, resourceError("recreate", path, err)
		}
	}
	return count, total, nil
}

// Probe returns the decompressed inspection sidecar for key, or nil.
func (s *Store) Probe(ctx context.Context, key contentkey.Key) ([]byte, error) {
	ctx = ensureContext(ctx)
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT probe_zstd FROM entries WHERE content_key = ?", key.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, nil
	}
	out, err := decompressProbe(blob)
	if err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "cache", "read probe", key.Short(), err)
	}
	return bytes.TrimSpace(out), nil
}
