package testsupport

import (
	"context"
	"testing"

	"orbridge/internal/config"
	"orbridge/internal/entry"
)

// MustOpenStore opens an entry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *entry.Store {
	t.Helper()

	store, err := entry.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("entry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEntry adds a config entry with one subentry of subType per model.
func NewEntry(t testing.TB, store *entry.Store, title string, subType entry.SubentryType, models ...string) *entry.Entry {
	t.Helper()

	ctx := context.Background()
	e, err := store.AddEntry(ctx, title, "sk-or-test-key")
	if err != nil {
		t.Fatalf("store.AddEntry: %v", err)
	}
	for _, model := range models {
		if _, err := store.AddSubentry(ctx, e.ID, entry.Subentry{Type: subType, Model: model}); err != nil {
			t.Fatalf("store.AddSubentry: %v", err)
		}
	}
	loaded, err := store.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("store.GetEntry: %v", err)
	}
	return loaded
}
