package cachestore

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"sleeve/internal/artifact"
	"sleeve/internal/contentkey"
)

// Entry is one indexed artifact.
type Entry struct {
	Key           contentkey.Key
	Kind          artifact.Kind
	SchemaVersion int
	PayloadPath   string
	ByteSize      int64
	Label         string
	CreatedAt     time.Time
	LastUsedAt    time.Time
	GenerationID  string
	// StaleSince is set while no build has used the entry since it was first
	// found unused.
	StaleSince *time.Time
	HasProbe   bool
}

// Stale reports whether the entry is awaiting use or purging.
func (e Entry) Stale() bool { return e.StaleSince != nil }

// Generation identifies one build invocation.
type Generation struct {
	ID        string
	StartedAt time.Time
}

// NewGeneration starts a generation at the given time.
func NewGeneration(startedAt time.Time) Generation {
	return Generation{ID: uuid.NewString(), StartedAt: startedAt.UTC()}
}

const entryColumns = "content_key, kind, schema_version, payload_name, byte_size, label, created_at, last_used_at, generation_id, stale_since, probe_zstd IS NOT NULL"

func (s *Store) scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		keyHex      string
		kind        string
		version     int
		payloadName string
		size        int64
		label       sql.NullString
		createdRaw  string
		usedRaw     string
		generation  sql.NullString
		staleRaw    sql.NullString
		hasProbe    bool
	)
	if err := scanner.Scan(&keyHex, &kind, &version, &payloadName, &size, &label,
		&createdRaw, &usedRaw, &generation, &staleRaw, &hasProbe); err != nil {
		return Entry{}, err
	}
	key, err := contentkey.ParseKey(keyHex)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Key:           key,
		Kind:          artifact.Kind(kind),
		SchemaVersion: version,
		PayloadPath:   s.payloadPathForName(payloadName),
		ByteSize:      size,
		Label:         label.String,
		GenerationID:  generation.String,
		HasProbe:      hasProbe,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if used, err := parseTimeString(usedRaw); err == nil {
		entry.LastUsedAt = used
	}
	if staleRaw.Valid {
		if stale, err := parseTimeString(staleRaw.String); err == nil {
			entry.StaleSince = &stale
		}
	}
	return entry, nil
}
