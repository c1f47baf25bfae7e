package store

import (
	"context"
	"fmt"

	"github.com/roach88/chartflow/internal/ir"
)

// EventRecord is one dispatched chart event: a dataset load or a parameter
// change.
type EventRecord struct {
	ID            string
	Chart         string
	Seq           int64
	Kind          string
	Name          string
	Payload       ir.Value
	EngineVersion string
	IRVersion     string
}

// PassRecord is one layer recomputed while handling an event. Error is the
// layer diagnostic, empty on success.
type PassRecord struct {
	EventID    string
	PassID     string
	Layer      string
	LayerIndex int
	Rows       int
	TableHash  string
	Error      string
}

// SceneRecord is the scene an event produced.
type SceneRecord struct {
	EventID   string
	PassID    string
	Chart     string
	Seq       int64
	SceneHash string
}

// WriteEvent appends an event to the log. Writing an event whose ID is
// already stored is a no-op.
func (s *Store) WriteEvent(ctx context.Context, ev EventRecord) error {
	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	if ev.EngineVersion == "" {
		ev.EngineVersion = ir.EngineVersion
	}
	if ev.IRVersion == "" {
		ev.IRVersion = ir.IRVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, chart, seq, kind, name, payload, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Chart,
		ev.Seq,
		ev.Kind,
		ev.Name,
		payload,
		ev.EngineVersion,
		ev.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}
	return nil
}

// WritePassAtomic records a scene and its layer passes in one transaction.
// The scene row claims the event: if a scene is already stored for
// sc.EventID, nothing is written and inserted is false.
func (s *Store) WritePassAtomic(ctx context.Context, sc SceneRecord, passes []PassRecord) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write pass: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO scenes
		(event_id, pass_id, chart, seq, scene_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`,
		sc.EventID,
		sc.PassID,
		sc.Chart,
		sc.Seq,
		sc.SceneHash,
	)
	if err != nil {
		return false, fmt.Errorf("write pass: insert scene: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write pass: rows affected: %w", err)
	}
	if n == 0 {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("write pass: commit (existing): %w", err)
		}
		return false, nil
	}

	for _, p := range passes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO passes
			(event_id, pass_id, layer, layer_index, rows, table_hash, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(event_id, layer) DO NOTHING
		`,
			sc.EventID,
			sc.PassID,
			p.Layer,
			p.LayerIndex,
			p.Rows,
			p.TableHash,
			p.Error,
		)
		if err != nil {
			return false, fmt.Errorf("write pass: insert layer %q: %w", p.Layer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write pass: commit: %w", err)
	}
	return true, nil
}
