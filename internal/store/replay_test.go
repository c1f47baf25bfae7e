package store

import (
	"context"
	"testing"

	"github.com/roach88/chartflow/internal/ir"
)

func TestGetChartTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	load := createTestEvent(t, "ratings", 1, "load", "reviews", ir.Object{})
	set := createTestEvent(t, "ratings", 2, "set", "ratingDropdown", ir.Number(5))
	for _, ev := range []EventRecord{load, set} {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}
	// Only the load was rendered.
	_, err := s.WritePassAtomic(ctx,
		SceneRecord{EventID: load.ID, PassID: "pass-1", Chart: "ratings", Seq: 1, SceneHash: "h1"},
		[]PassRecord{{Layer: "bars", Rows: 2, TableHash: "t"}},
	)
	if err != nil {
		t.Fatalf("WritePassAtomic() failed: %v", err)
	}

	trace, err := s.GetChartTrace(ctx, "ratings")
	if err != nil {
		t.Fatalf("GetChartTrace() failed: %v", err)
	}
	if len(trace.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(trace.Entries))
	}
	if trace.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", trace.LastSeq)
	}

	first := trace.Entries[0]
	if first.Scene == nil || first.Scene.SceneHash != "h1" {
		t.Errorf("Entries[0].Scene = %+v, want hash h1", first.Scene)
	}
	if len(first.Passes) != 1 {
		t.Errorf("Entries[0].Passes = %d, want 1", len(first.Passes))
	}

	pending := trace.Unrendered()
	if len(pending) != 1 || pending[0].Event.ID != set.ID {
		t.Errorf("Unrendered() = %+v, want the set event", pending)
	}
}

func TestListChartsAndLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx, "ratings")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("GetLastSeq() on empty store = %d, want 0", seq)
	}

	for _, ev := range []EventRecord{
		createTestEvent(t, "ratings", 1, "set", "p", ir.Number(1)),
		createTestEvent(t, "ratings", 7, "set", "p", ir.Number(2)),
		createTestEvent(t, "cases", 1, "set", "q", ir.Number(3)),
	} {
		if err := s.WriteEvent(ctx, ev); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}

	charts, err := s.ListCharts(ctx)
	if err != nil {
		t.Fatalf("ListCharts() failed: %v", err)
	}
	if len(charts) != 2 || charts[0] != "cases" || charts[1] != "ratings" {
		t.Errorf("ListCharts() = %v, want [cases ratings]", charts)
	}

	seq, err = s.GetLastSeq(ctx, "ratings")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 7 {
		t.Errorf("GetLastSeq() = %d, want 7", seq)
	}
}
