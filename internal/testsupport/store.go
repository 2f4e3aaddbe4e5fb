package testsupport

import (
	"testing"

	"framepipe/internal/config"
	"framepipe/internal/jobstate"
)

// MustOpenStore opens a jobstate.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstate.Store {
	t.Helper()

	store, err := jobstate.Open(cfg)
	if err != nil {
		t.Fatalf("jobstate.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
