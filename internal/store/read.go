package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ReadEvents returns every event of a chart in dispatch order.
func (s *Store) ReadEvents(ctx context.Context, chart string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chart, seq, kind, name, payload, engine_version, ir_version
		FROM events
		WHERE chart = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, chart)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// ReadEvent returns a single event by ID.
func (s *Store) ReadEvent(ctx context.Context, id string) (EventRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chart, seq, kind, name, payload, engine_version, ir_version
		FROM events
		WHERE id = ?
	`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EventRecord{}, fmt.Errorf("read event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return EventRecord{}, fmt.Errorf("read event %s: %w", id, err)
	}
	return ev, nil
}

// ReadPasses returns the layer passes recorded for an event, in layer
// order.
func (s *Store) ReadPasses(ctx context.Context, eventID string) ([]PassRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, pass_id, layer, layer_index, rows, table_hash, error
		FROM passes
		WHERE event_id = ?
		ORDER BY layer_index ASC, layer COLLATE BINARY ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read passes: %w", err)
	}
	defer rows.Close()

	passes := []PassRecord{}
	for rows.Next() {
		var p PassRecord
		if err := rows.Scan(&p.EventID, &p.PassID, &p.Layer, &p.LayerIndex, &p.Rows, &p.TableHash, &p.Error); err != nil {
			return nil, fmt.Errorf("read passes: scan: %w", err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read passes: %w", err)
	}
	return passes, nil
}

// ReadScenes returns the scenes a chart produced, in dispatch order.
func (s *Store) ReadScenes(ctx context.Context, chart string) ([]SceneRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, pass_id, chart, seq, scene_hash
		FROM scenes
		WHERE chart = ?
		ORDER BY seq ASC, event_id COLLATE BINARY ASC
	`, chart)
	if err != nil {
		return nil, fmt.Errorf("read scenes: %w", err)
	}
	defer rows.Close()

	scenes := []SceneRecord{}
	for rows.Next() {
		var sc SceneRecord
		if err := rows.Scan(&sc.EventID, &sc.PassID, &sc.Chart, &sc.Seq, &sc.SceneHash); err != nil {
			return nil, fmt.Errorf("read scenes: scan: %w", err)
		}
		scenes = append(scenes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read scenes: %w", err)
	}
	return scenes, nil
}

// ReadScene returns the scene recorded for an event.
func (s *Store) ReadScene(ctx context.Context, eventID string) (SceneRecord, error) {
	var sc SceneRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, pass_id, chart, seq, scene_hash
		FROM scenes
		WHERE event_id = ?
	`, eventID).Scan(&sc.EventID, &sc.PassID, &sc.Chart, &sc.Seq, &sc.SceneHash)
	if errors.Is(err, sql.ErrNoRows) {
		return SceneRecord{}, fmt.Errorf("read scene %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return SceneRecord{}, fmt.Errorf("read scene %s: %w", eventID, err)
	}
	return sc, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(r scanner) (EventRecord, error) {
	var ev EventRecord
	var payload string
	if err := r.Scan(&ev.ID, &ev.Chart, &ev.Seq, &ev.Kind, &ev.Name, &payload, &ev.EngineVersion, &ev.IRVersion); err != nil {
		return EventRecord{}, err
	}
	v, err := unmarshalPayload(payload)
	if err != nil {
		return EventRecord{}, err
	}
	ev.Payload = v
	return ev, nil
}
