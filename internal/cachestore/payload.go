package cachestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"sleeve/internal/contentkey"
	"sleeve/internal/logging"
)

// PayloadPath returns where the payload for key lives. The name is derived
// from the key alone, so the namespace is flat and independent of how the
// catalog is organized.
func (s *Store) PayloadPath(key contentkey.Key) string {
	return s.payloadPathForName(contentkey.PayloadName(key))
}

func (s *Store) payloadPathForName(name string) string {
	prefix := "00"
	if len(name) >= 2 {
		prefix = name[:2]
	}
	return filepath.Join(s.dir, payloadDir, prefix, name)
}

// SweepOrphans removes payload files no index row references, leftover
// temporary files from interrupted writes, and stale scratch files.
func (s *Store) SweepOrphans(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, "SELECT payload_name FROM entries")
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}
		known[name] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	root := filepath.Join(s.dir, payloadDir)
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if _, ok := known[name]; ok && !strings.HasSuffix(name, ".tmp") {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if walkErr != nil {
		return removed, resourceError("sweep payloads", root, walkErr)
	}

	scratch, err := os.ReadDir(s.TempDir())
	if err == nil {
		for _, entry := range scratch {
			if err := os.RemoveAll(filepath.Join(s.TempDir(), entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "removed orphaned cache files",
			logging.Int("files", removed),
		)
	}
	return removed, nil
}

func removePayload(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	_ = os.Remove(filepath.Dir(path))
	return nil
}
