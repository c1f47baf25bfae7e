package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TraceEntry is one event with what it produced. Scene is nil when the
// event was logged but its pass never completed.
type TraceEntry struct {
	Event  EventRecord
	Scene  *SceneRecord
	Passes []PassRecord
}

// ChartTrace is the full recorded history of a chart.
type ChartTrace struct {
	Chart   string
	Entries []TraceEntry
	LastSeq int64
}

// Unrendered returns the entries that have no scene.
func (t ChartTrace) Unrendered() []TraceEntry {
	var out []TraceEntry
	for _, e := range t.Entries {
		if e.Scene == nil {
			out = append(out, e)
		}
	}
	return out
}

// GetChartTrace assembles the event log of a chart with its passes and
// scenes, in dispatch order.
func (s *Store) GetChartTrace(ctx context.Context, chart string) (ChartTrace, error) {
	trace := ChartTrace{Chart: chart}

	events, err := s.ReadEvents(ctx, chart)
	if err != nil {
		return trace, fmt.Errorf("get chart trace: %w", err)
	}
	scenes, err := s.ReadScenes(ctx, chart)
	if err != nil {
		return trace, fmt.Errorf("get chart trace: %w", err)
	}
	byEvent := make(map[string]SceneRecord, len(scenes))
	for _, sc := range scenes {
		byEvent[sc.EventID] = sc
	}

	trace.Entries = make([]TraceEntry, 0, len(events))
	for _, ev := range events {
		entry := TraceEntry{Event: ev}
		if sc, ok := byEvent[ev.ID]; ok {
			entry.Scene = &sc
			passes, err := s.ReadPasses(ctx, ev.ID)
			if err != nil {
				return trace, fmt.Errorf("get chart trace: %w", err)
			}
			entry.Passes = passes
		}
		if ev.Seq > trace.LastSeq {
			trace.LastSeq = ev.Seq
		}
		trace.Entries = append(trace.Entries, entry)
	}
	return trace, nil
}

// ListCharts returns the names of all charts with recorded events, sorted.
func (s *Store) ListCharts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT chart FROM events ORDER BY chart COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer rows.Close()

	charts := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("list charts: scan: %w", err)
		}
		charts = append(charts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	return charts, nil
}

// GetLastSeq returns the highest seq recorded for a chart, or 0 when the
// chart has no events. A chart resumed from a store continues its clock
// from here.
func (s *Store) GetLastSeq(ctx context.Context, chart string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM events WHERE chart = ?
	`, chart).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
