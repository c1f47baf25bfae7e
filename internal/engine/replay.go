package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/chartflow/internal/store"
)

// Mismatch is one recorded pass whose replay produced a different result.
type Mismatch struct {
	Seq      int64
	EventID  string
	Recorded string
	Replayed string

	// Layers lists the layers whose final table hash differs.
	Layers []string
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Chart      string
	Events     int
	Verified   int
	Unrendered int
	Mismatches []Mismatch
}

// OK reports whether every recorded scene was reproduced.
func (r *ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay re-applies a chart's recorded events, in seq order, to a fresh
// instance of def and compares every resulting scene hash and layer table
// hash with the recorded ones. The fresh chart records nothing.
//
// A mismatch means the chart is not deterministic for that trace (or the
// definition changed since recording); the report lists every one and the
// returned error is a REPLAY_MISMATCH RuntimeError.
func Replay(ctx context.Context, st *store.Store, def Definition, opts ...Option) (*ReplayReport, error) {
	trace, err := st.GetChartTrace(ctx, def.Name)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", def.Name, err)
	}

	opts = append(slices.Clone(opts), WithStore(nil))
	c, err := New(def, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", def.Name, err)
	}

	report := &ReplayReport{Chart: def.Name, Events: len(trace.Entries)}
	for _, entry := range trace.Entries {
		ev, err := EventFromPayload(entry.Event.Kind, entry.Event.Name, entry.Event.Payload)
		if err != nil {
			return report, fmt.Errorf("replay %s seq %d: %w", def.Name, entry.Event.Seq, err)
		}
		pass, err := c.handle(ctx, ev)
		if err != nil {
			return report, fmt.Errorf("replay %s seq %d: %w", def.Name, entry.Event.Seq, err)
		}
		if entry.Scene == nil {
			report.Unrendered++
			continue
		}

		var layers []string
		for _, p := range entry.Passes {
			if p.Error != "" {
				continue
			}
			if pass.TableHashes[p.Layer] != p.TableHash {
				layers = append(layers, p.Layer)
			}
		}
		if pass.SceneHash != entry.Scene.SceneHash || len(layers) > 0 {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq:      entry.Event.Seq,
				EventID:  entry.Event.ID,
				Recorded: entry.Scene.SceneHash,
				Replayed: pass.SceneHash,
				Layers:   layers,
			})
			slog.Warn("replay mismatch",
				"chart", def.Name,
				"seq", entry.Event.Seq,
				"recorded", entry.Scene.SceneHash,
				"replayed", pass.SceneHash,
			)
			continue
		}
		report.Verified++
	}

	slog.Info("replay completed",
		"chart", def.Name,
		"events", report.Events,
		"verified", report.Verified,
		"mismatches", len(report.Mismatches),
	)

	if !report.OK() {
		return report, &RuntimeError{
			Code:    ErrCodeReplayMismatch,
			Message: fmt.Sprintf("%d of %d recorded scenes differ on replay", len(report.Mismatches), report.Events-report.Unrendered),
			Chart:   def.Name,
		}
	}
	return report, nil
}
