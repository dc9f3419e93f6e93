package cachestore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"sleeve/internal/artifact"
)

// LookupFingerprint returns a remembered fingerprint for a file whose size and
// modification time still match.
func (s *Store) LookupFingerprint(ctx context.Context, path string, size int64, modTime time.Time) (artifact.Fingerprint, bool, error) {
	ctx = ensureContext(ctx)
	var (
		fpHex string
		fp    artifact.Fingerprint
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint FROM source_stats WHERE path = ? AND byte_size = ? AND mod_time_ns = ?",
		path, size, modTime.UnixNano(),
	).Scan(&fpHex)
	if errors.Is(err, sql.ErrNoRows) {
		return fp, false, nil
	}
	if err != nil {
		return fp, false, err
	}
	raw, err := hex.DecodeString(fpHex)
	if err != nil || len(raw) != len(fp) {
		return fp, false, fmt.Errorf("corrupt fingerprint for %s", path)
	}
	copy(fp[:], raw)
	return fp, true, nil
}

// RecordFingerprint remembers fp for the (path, size, modTime) triple,
// replacing whatever was known about path.
func (s *Store) RecordFingerprint(ctx context.Context, path string, size int64, modTime time.Time, fp artifact.Fingerprint) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.exec(ctx, `INSERT INTO source_stats (path, byte_size, mod_time_ns, fingerprint, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			byte_size = excluded.byte_size,
			mod_time_ns = excluded.mod_time_ns,
			fingerprint = excluded.fingerprint,
			recorded_at = excluded.recorded_at`,
		path, size, modTime.UnixNano(), fp.String(), formatTime(s.now()))
	return err
}
