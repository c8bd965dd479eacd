// Package postgres persists canonical events, contacts and row errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/carrier-ingest/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// EventRepo stores canonical events.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// BatchUpsert writes a batch of events in one transaction. Re-ingesting the
// same file updates rows in place instead of duplicating them.
func (r *EventRepo) BatchUpsert(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
			(id, line_id, ts, raw_number, number, direction, event_type,
			 duration_seconds, content, contact_id, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (line_id, number, ts, event_type) DO UPDATE SET
			duration_seconds = EXCLUDED.duration_seconds,
			content = EXCLUDED.content,
			contact_id = EXCLUDED.contact_id,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare event upsert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.LineID, ev.Timestamp, ev.RawNumber, ev.Number,
			ev.Direction, ev.Type, ev.DurationSeconds, ev.Content,
			ev.ContactID, ev.Status, ev.Source, ev.CreatedAt, ev.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}
	return nil
}

// Get fetches one event by id.
func (r *EventRepo) Get(ctx context.Context, id string) (*domain.Event, error) {
	ev := &domain.Event{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, line_id, ts, raw_number, number, direction, event_type,
		       duration_seconds, content, contact_id, status, source, created_at, updated_at
		FROM events
		WHERE id = $1
	`, id).Scan(
		&ev.ID, &ev.LineID, &ev.Timestamp, &ev.RawNumber, &ev.Number,
		&ev.Direction, &ev.Type, &ev.DurationSeconds, &ev.Content,
		&ev.ContactID, &ev.Status, &ev.Source, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListByLine returns a line's events in chronological order.
func (r *EventRepo) ListByLine(ctx context.Context, lineID string, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, line_id, ts, raw_number, number, direction, event_type,
		       duration_seconds, content, contact_id, status, source, created_at, updated_at
		FROM events
		WHERE line_id = $1
		ORDER BY ts ASC
		LIMIT $2 OFFSET $3
	`, lineID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(
			&ev.ID, &ev.LineID, &ev.Timestamp, &ev.RawNumber, &ev.Number,
			&ev.Direction, &ev.Type, &ev.DurationSeconds, &ev.Content,
			&ev.ContactID, &ev.Status, &ev.Source, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CountByLine returns the event count for one line.
func (r *EventRepo) CountByLine(ctx context.Context, lineID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE line_id = $1`, lineID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
