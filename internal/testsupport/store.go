package testsupport

import (
	"context"
	"testing"

	"sleeve/internal/cachestore"
	"sleeve/internal/config"
)

// MustOpenStore opens the cache store configured in cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *cachestore.Store {
	t.Helper()

	store, err := cachestore.Open(context.Background(), cfg.Paths.CacheDir, cachestore.Options{})
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
