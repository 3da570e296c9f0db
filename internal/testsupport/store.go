package testsupport

import (
	"testing"

	"vidslide/internal/config"
	"vidslide/internal/store"
)

// MustOpenStore opens the sqlite batch store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("store.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
