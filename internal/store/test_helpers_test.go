package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/chartflow/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
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

// createTestEvent creates an event with a content-addressed ID.
func createTestEvent(t *testing.T, chart string, seq int64, kind, name string, payload ir.Value) EventRecord {
	t.Helper()
	id, err := ir.EventID(chart, seq, kind, name, payload)
	if err != nil {
		t.Fatalf("EventID() failed: %v", err)
	}
	return EventRecord{
		ID:      id,
		Chart:   chart,
		Seq:     seq,
		Kind:    kind,
		Name:    name,
		Payload: payload,
	}
}
