package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/carrier-ingest/internal/domain"
)

// ContactRepo stores the contact roster.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

// BatchUpsert merges a roster batch. An existing number keeps its identity
// and first-seen but accumulates counters and advances last-seen.
func (r *ContactRepo) BatchUpsert(ctx context.Context, roster []domain.Contact) error {
	if len(roster) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin contact batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts
			(id, number, display_name, company, tags, first_seen, last_seen, call_count, sms_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (number) DO UPDATE SET
			display_name = CASE WHEN contacts.display_name = '' THEN EXCLUDED.display_name ELSE contacts.display_name END,
			first_seen = LEAST(contacts.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(contacts.last_seen, EXCLUDED.last_seen),
			call_count = contacts.call_count + EXCLUDED.call_count,
			sms_count = contacts.sms_count + EXCLUDED.sms_count
	`)
	if err != nil {
		return fmt.Errorf("prepare contact upsert: %w", err)
	}
	defer stmt.Close()

	for i := range roster {
		c := &roster[i]
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Number, c.DisplayName, c.Company, pq.Array(c.Tags),
			c.FirstSeen, c.LastSeen, c.CallCount, c.SMSCount,
		); err != nil {
			return fmt.Errorf("upsert contact %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit contact batch: %w", err)
	}
	return nil
}

// GetByNumber fetches one contact by normalized number.
func (r *ContactRepo) GetByNumber(ctx context.Context, number string) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, display_name, COALESCE(company,''), tags,
		       first_seen, last_seen, call_count, sms_count
		FROM contacts
		WHERE number = $1
	`, number).Scan(
		&c.ID, &c.Number, &c.DisplayName, &c.Company, pq.Array(&c.Tags),
		&c.FirstSeen, &c.LastSeen, &c.CallCount, &c.SMSCount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// List returns contacts ordered by activity.
func (r *ContactRepo) List(ctx context.Context, limit, offset int) ([]domain.Contact, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, number, display_name, COALESCE(company,''), tags,
		       first_seen, last_seen, call_count, sms_count
		FROM contacts
		ORDER BY call_count + sms_count DESC, number ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(
			&c.ID, &c.Number, &c.DisplayName, &c.Company, pq.Array(&c.Tags),
			&c.FirstSeen, &c.LastSeen, &c.CallCount, &c.SMSCount,
		); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
