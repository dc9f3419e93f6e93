package cachestore

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"sleeve/internal/artifact"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

var statfs statfsFunc = realStatfs

func realStatfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}

// KindStats summarizes entries of one kind.
type KindStats struct {
	Kind    artifact.Kind `json:"kind"`
	Entries int           `json:"entries"`
	Bytes   int64         `json:"bytes"`
}

// Stats describes cache usage.
type Stats struct {
	Dir          string      `json:"dir"`
	Entries      int         `json:"entries"`
	TotalBytes   int64       `json:"total_bytes"`
	StaleEntries int         `json:"stale_entries"`
	StaleBytes   int64       `json:"stale_bytes"`
	Kinds        []KindStats `json:"kinds"`
	FreeBytes    uint64      `json:"free_bytes"`
	TotalFSBytes uint64      `json:"total_fs_bytes"`
}

// Stats aggregates the index and the free space on the cache filesystem.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	out := Stats{Dir: s.dir}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1), COALESCE(SUM(byte_size), 0),
		COALESCE(SUM(stale_since IS NOT NULL), 0), COALESCE(SUM(CASE WHEN stale_since IS NOT NULL THEN byte_size ELSE 0 END), 0)
		FROM entries GROUP BY kind ORDER BY kind`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind        string
			count       int
			size        int64
			staleCount  int
			staleByteSz int64
		)
		if err := rows.Scan(&kind, &count, &size, &staleCount, &staleByteSz); err != nil {
			return out, err
		}
		out.Kinds = append(out.Kinds, KindStats{Kind: artifact.Kind(kind), Entries: count, Bytes: size})
		out.Entries += count
		out.TotalBytes += size
		out.StaleEntries += staleCount
		out.StaleBytes += staleByteSz
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	total, free, err := statfs(s.dir)
	if err != nil {
		return out, fmt.Errorf("cache: statfs: %w", err)
	}
	out.TotalFSBytes = total
	out.FreeBytes = free
	return out, nil
}
