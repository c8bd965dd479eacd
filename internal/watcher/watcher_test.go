package watcher

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/carrier-ingest/internal/domain"
)

func TestLineFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"exports/line-15550100001/march.csv", "15550100001"},
		{"exports/LINE_15550100001.csv", "15550100001"},
		{"exports/line-+15550100001/march.csv", "+15550100001"},
		{"exports/march.csv", ""},
		{"line-123.csv", ""}, // too short to be a subscriber number
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lineFromKey(tt.key), tt.key)
	}
}

func TestFirstCritical(t *testing.T) {
	errs := []domain.IngestError{
		domain.NewIngestError("j", domain.ErrParsing, "row 3"),
		domain.NewIngestError("j", domain.ErrSystem, "boom"),
	}
	c := firstCritical(errs)
	require.NotNil(t, c)
	assert.Equal(t, domain.ErrSystem, c.Kind)

	assert.Nil(t, firstCritical(errs[:1]))
	assert.Nil(t, firstCritical(nil))
}

func TestResumeStuck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE ingest_jobs SET status='pending'").
		WithArgs(maxRetries).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE ingest_jobs SET status='failed'").
		WithArgs(maxRetries).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := &Watcher{db: db, ctx: context.Background()}
	w.resumeStuck()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE ingest_jobs SET status='failed'").
		WithArgs("disk full", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := &Watcher{db: db}
	w.markFailed(context.Background(), "job-1", "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 3).
		AddRow("completed", 12)
	mock.ExpectQuery("SELECT status, COUNT").WillReturnRows(rows)

	w := &Watcher{db: db, healthy: true}
	st, err := w.QueueStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Healthy)
	assert.Equal(t, 3, st.Queue["pending"])
	assert.Equal(t, 12, st.Queue["completed"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSkipsTakenJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Claim matches zero rows: another worker already owns the job, so the
	// watcher walks away without touching S3.
	mock.ExpectExec("UPDATE ingest_jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := &Watcher{db: db}
	err = w.processFile(context.Background(), "job-1", "exports/a.csv")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
