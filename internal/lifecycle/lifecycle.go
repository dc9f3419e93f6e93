package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sleeve/internal/cachestore"
	"sleeve/internal/config"
	"sleeve/internal/contentkey"
	"sleeve/internal/logging"
	"sleeve/internal/textutil"
)

// Store is the subset of the cache lifecycle management needs.
type Store interface {
	MarkAllUnused(ctx context.Context, gen cachestore.Generation) (int64, error)
	ListStale(ctx context.Context) ([]cachestore.Entry, error)
	Remove(ctx context.Context, key contentkey.Key) (int64, error)
	RemoveAll(ctx context.Context) (int, int64, error)
}

// Summary reports what a lifecycle pass did.
type Summary struct {
	Policy         config.RetentionPolicy
	Purged         int
	ReclaimedBytes int64
	// Obsolete and ObsoleteBytes describe stale entries left in place.
	Obsolete      int
	ObsoleteBytes int64
	Message       string
}

// Begin stamps every entry not used by gen as stale from gen's start.
func Begin(ctx context.Context, store Store, gen cachestore.Generation) (int64, error) {
	marked, err := store.MarkAllUnused(ctx, gen)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: mark unused: %w", err)
	}
	return marked, nil
}

// Apply runs the retention policy after gen completed. It marks entries gen
// did not touch before deciding, so calling it without Begin is safe.
func Apply(ctx context.Context, store Store, gen cachestore.Generation, policy config.RetentionPolicy, grace time.Duration, logger *slog.Logger) (Summary, error) {
	logger = logging.NewComponentLogger(logger, "lifecycle")
	summary := Summary{Policy: policy}

	if policy == config.RetentionWipe {
		count, reclaimed, err := store.RemoveAll(ctx)
		if err != nil {
			return summary, fmt.Errorf("lifecycle: wipe: %w", err)
		}
		summary.Purged = count
		summary.ReclaimedBytes = reclaimed
		summary.Message = fmt.Sprintf("Wiped cache (%d entries, %s)", count, textutil.HumanBytes(reclaimed))
		logger.InfoContext(ctx, "cache wiped",
			logging.Int("entries", count),
			logging.Int64("bytes", reclaimed),
		)
		return summary, nil
	}

	if _, err := Begin(ctx, store, gen); err != nil {
		return summary, err
	}
	stale, err := store.ListStale(ctx)
	if err != nil {
		return summary, fmt.Errorf("lifecycle: list stale: %w", err)
	}

	for _, entry := range stale {
		if entry.GenerationID == gen.ID {
			continue
		}
		if !obsolete(policy, gen, grace, entry) {
			summary.Obsolete++
			summary.ObsoleteBytes += entry.ByteSize
			continue
		}
		reclaimed, err := store.Remove(ctx, entry.Key)
		if err != nil {
			return summary, fmt.Errorf("lifecycle: remove %s: %w", entry.Key.Short(), err)
		}
		summary.Purged++
		summary.ReclaimedBytes += reclaimed
		logger.DebugContext(ctx, "purged cache entry",
			logging.String(logging.FieldContentKey, entry.Key.Short()),
			logging.String(logging.FieldKind, string(entry.Kind)),
			logging.String("label", entry.Label),
			logging.Int64("bytes", reclaimed),
		)
	}

	switch policy {
	case config.RetentionManual:
		summary.Message = staleMessage(summary.Obsolete, summary.ObsoleteBytes)
	default:
		summary.Message = fmt.Sprintf("Purged %d obsolete cache entries (%s)", summary.Purged, textutil.HumanBytes(summary.ReclaimedBytes))
	}
	logger.InfoContext(ctx, "cache maintenance complete",
		logging.String("policy", string(policy)),
		logging.Int("purged", summary.Purged),
		logging.Int64("reclaimed_bytes", summary.ReclaimedBytes),
		logging.Int("stale_kept", summary.Obsolete),
	)
	return summary, nil
}

// obsolete decides whether a stale entry from another generation goes.
func obsolete(policy config.RetentionPolicy, gen cachestore.Generation, grace time.Duration, entry cachestore.Entry) bool {
	if entry.StaleSince == nil {
		return false
	}
	switch policy {
	case config.RetentionImmediate:
		return true
	case config.RetentionManual:
		return false
	default:
		return gen.StartedAt.Sub(*entry.StaleSince) > grace
	}
}

// Analyze reports the stale entries without changing anything.
func Analyze(ctx context.Context, store Store) (Summary, error) {
	stale, err := store.ListStale(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("lifecycle: list stale: %w", err)
	}
	summary := Summary{Policy: config.RetentionManual}
	for _, entry := range stale {
		summary.Obsolete++
		summary.ObsoleteBytes += entry.ByteSize
	}
	summary.Message = staleMessage(summary.Obsolete, summary.ObsoleteBytes)
	return summary, nil
}

// Optimize removes every stale entry, regardless of how long it has been
// stale. It runs outside a build.
func Optimize(ctx context.Context, store Store, logger *slog.Logger) (Summary, error) {
	logger = logging.NewComponentLogger(logger, "lifecycle")
	stale, err := store.ListStale(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("lifecycle: list stale: %w", err)
	}
	summary := Summary{Policy: config.RetentionImmediate}
	for _, entry := range stale {
		reclaimed, err := store.Remove(ctx, entry.Key)
		if err != nil {
			return summary, fmt.Errorf("lifecycle: remove %s: %w", entry.Key.Short(), err)
		}
		summary.Purged++
		summary.ReclaimedBytes += reclaimed
	}
	if summary.Purged == 0 {
		summary.Message = "No cached assets identified as obsolete."
	} else {
		summary.Message = fmt.Sprintf("Removed %d obsolete cached assets and reclaimed %s of disk space.", summary.Purged, textutil.HumanBytes(summary.ReclaimedBytes))
	}
	logger.InfoContext(ctx, "cache optimized",
		logging.Int("purged", summary.Purged),
		logging.Int64("reclaimed_bytes", summary.ReclaimedBytes),
	)
	return summary, nil
}

func staleMessage(count int, size int64) string {
	if count == 0 {
		return "No cached assets identified as obsolete."
	}
	return fmt.Sprintf("%d cached assets were identified as obsolete - you can run 'sleeve cache optimize' to remove them and reclaim %s of disk space.", count, textutil.HumanBytes(size))
}
