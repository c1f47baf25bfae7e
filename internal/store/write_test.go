package store

import (
	"context"
	"testing"

	"github.com/roach88/chartflow/internal/ir"
)

func TestWriteEventBasic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent(t, "ratings", 1, "set", "ratingDropdown", ir.Number(4))
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	var kind, name, payload, engineVersion, irVersion string
	var seq int64
	err := s.db.QueryRow(`
		SELECT seq, kind, name, payload, engine_version, ir_version
		FROM events WHERE id = ?
	`, ev.ID).Scan(&seq, &kind, &name, &payload, &engineVersion, &irVersion)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
	if kind != "set" || name != "ratingDropdown" {
		t.Errorf("kind/name = %q/%q, want set/ratingDropdown", kind, name)
	}
	if payload != "4" {
		t.Errorf("payload = %q, want %q", payload, "4")
	}
	if engineVersion != ir.EngineVersion {
		t.Errorf("engine_version = %q, want %q", engineVersion, ir.EngineVersion)
	}
	if irVersion != ir.IRVersion {
		t.Errorf("ir_version = %q, want %q", irVersion, ir.IRVersion)
	}
}

func TestWriteEventIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent(t, "ratings", 1, "reset", "ratingDropdown", nil)
	for i := 0; i < 3; i++ {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() #%d failed: %v", i+1, err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestWriteEventRejectsDuplicateSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestEvent(t, "ratings", 1, "set", "a", ir.Number(1))
	b := createTestEvent(t, "ratings", 1, "set", "b", ir.Number(2))
	if err := s.WriteEvent(ctx, a); err != nil {
		t.Fatalf("WriteEvent(a) failed: %v", err)
	}
	if err := s.WriteEvent(ctx, b); err == nil {
		t.Error("WriteEvent(b) with a reused seq succeeded, want constraint error")
	}
}

func TestWritePassAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent(t, "ratings", 1, "load", "reviews", ir.Object{})
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	sc := SceneRecord{EventID: ev.ID, PassID: "pass-1", Chart: "ratings", Seq: 1, SceneHash: "scene-a"}
	passes := []PassRecord{
		{Layer: "bars", LayerIndex: 0, Rows: 5, TableHash: "t-bars"},
		{Layer: "average", LayerIndex: 1, Error: "stage 0 (aggregate): no values"},
	}

	inserted, err := s.WritePassAtomic(ctx, sc, passes)
	if err != nil {
		t.Fatalf("WritePassAtomic() failed: %v", err)
	}
	if !inserted {
		t.Fatal("WritePassAtomic() inserted = false on first write")
	}

	// Second write for the same event is a no-op, even with different data.
	sc.SceneHash = "scene-b"
	inserted, err = s.WritePassAtomic(ctx, sc, passes[:1])
	if err != nil {
		t.Fatalf("WritePassAtomic() #2 failed: %v", err)
	}
	if inserted {
		t.Error("WritePassAtomic() #2 inserted = true, want false")
	}

	var hash string
	if err := s.db.QueryRow(`SELECT scene_hash FROM scenes WHERE event_id = ?`, ev.ID).Scan(&hash); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if hash != "scene-a" {
		t.Errorf("scene_hash = %q, want scene-a", hash)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM passes WHERE event_id = ?`, ev.ID).Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 2 {
		t.Errorf("passes = %d, want 2", n)
	}
}

func TestWritePassAtomicRequiresEvent(t *testing.T) {
	s := createTestStore(t)

	sc := SceneRecord{EventID: "missing", PassID: "pass-1", Chart: "ratings", Seq: 1, SceneHash: "h"}
	if _, err := s.WritePassAtomic(context.Background(), sc, nil); err == nil {
		t.Error("WritePassAtomic() for unknown event succeeded, want foreign key error")
	}
}
