package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/carrier-ingest/internal/domain"
)

// ErrorRepo stores the per-job error log.
type ErrorRepo struct{ db *sql.DB }

// NewErrorRepo creates a Postgres-backed error log repository.
func NewErrorRepo(db *sql.DB) *ErrorRepo { return &ErrorRepo{db: db} }

// BatchInsert appends a job's accumulated errors.
func (r *ErrorRepo) BatchInsert(ctx context.Context, errs []domain.IngestError) error {
	if len(errs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin error batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ingest_errors
			(job_id, row_number, kind, message, raw_data, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("prepare error insert: %w", err)
	}
	defer stmt.Close()

	for i := range errs {
		e := &errs[i]
		if _, err := stmt.ExecContext(ctx,
			e.JobID, e.RowNumber, e.Kind, e.Message, e.RawData, e.Severity, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert error row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error batch: %w", err)
	}
	return nil
}

// ListByJob returns a job's errors in insertion order, worst first.
func (r *ErrorRepo) ListByJob(ctx context.Context, jobID string, limit int) ([]domain.IngestError, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, row_number, kind, message, COALESCE(raw_data,''), severity, created_at
		FROM ingest_errors
		WHERE job_id = $1
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'error' THEN 1
			ELSE 2
		END, created_at ASC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var out []domain.IngestError
	for rows.Next() {
		var e domain.IngestError
		var row sql.NullInt64
		if err := rows.Scan(&e.JobID, &row, &e.Kind, &e.Message, &e.RawData, &e.Severity, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		if row.Valid {
			n := int(row.Int64)
			e.RowNumber = &n
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountBySeverity returns a job's error counts grouped by severity.
func (r *ErrorRepo) CountBySeverity(ctx context.Context, jobID string) (map[domain.Severity]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, COUNT(*)
		FROM ingest_errors
		WHERE job_id = $1
		GROUP BY severity
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("count errors: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Severity]int)
	for rows.Next() {
		var sev domain.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scan error count: %w", err)
		}
		out[sev] = n
	}
	return out, rows.Err()
}
