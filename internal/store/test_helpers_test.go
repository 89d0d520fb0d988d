package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/pickboard/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem creates an item in the given state.
func createTestItem(listID, id, key string, tag ir.StateTag) ir.Item {
	return ir.Item{
		ID:         id,
		ListID:     listID,
		DisplayKey: key,
		Flags:      ir.FlagsFor(tag),
	}
}

// seedItems writes items or fails the test.
func seedItems(t *testing.T, s *Store, items ...ir.Item) {
	t.Helper()
	for _, it := range items {
		if err := s.UpsertItem(context.Background(), it); err != nil {
			t.Fatalf("UpsertItem(%s) failed: %v", it.ID, err)
		}
	}
}
