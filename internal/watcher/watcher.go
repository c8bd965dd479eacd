// Package watcher polls the carrier export bucket, queues new files as
// ingest jobs in Postgres, and drives each claimed job through the pipeline.
// The job queue is the coordination point: any number of workers can poll,
// but a file is claimed by exactly one.
package watcher

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/carrier-ingest/internal/classify"
	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/ignite/carrier-ingest/internal/pipeline"
	"github.com/ignite/carrier-ingest/internal/pkg/distlock"
	"github.com/ignite/carrier-ingest/internal/repository/postgres"
)

const (
	maxRetries     = 3
	queueBatchSize = 10
	cycleLockKey   = "ingest:watch-cycle"
)

// Config holds the watcher's bucket and scheduling settings.
type Config struct {
	Bucket        string
	Region        string
	AWSProfile    string
	Interval      time.Duration
	MaxConcurrent int
}

// Watcher owns the discover/claim/process loop.
type Watcher struct {
	s3Client      *s3.Client
	db            *sql.DB
	rdb           *redis.Client
	bucket        string
	classifier    *classify.Classifier
	pipe          *pipeline.Pipeline
	progress      *pipeline.ProgressStore
	events        *postgres.EventRepo
	contacts      *postgres.ContactRepo
	errLog        *postgres.ErrorRepo
	interval      time.Duration
	maxConcurrent int
	ctx           context.Context
	cancel        context.CancelFunc
	lastRunAt     time.Time
	healthy       bool
	running       int32
}

// New builds a watcher. rdb may be nil; the cycle lock then falls back to
// Postgres advisory locks and progress tracking is skipped.
func New(db *sql.DB, rdb *redis.Client, pipe *pipeline.Pipeline, cfg Config) (*Watcher, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.AWSProfile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.AWSProfile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 4
	}

	return &Watcher{
		s3Client:      s3.NewFromConfig(awsCfg),
		db:            db,
		rdb:           rdb,
		bucket:        cfg.Bucket,
		classifier:    classify.NewClassifier(),
		pipe:          pipe,
		progress:      pipeline.NewProgressStore(rdb),
		events:        postgres.NewEventRepo(db),
		contacts:      postgres.NewContactRepo(db),
		errLog:        postgres.NewErrorRepo(db),
		interval:      interval,
		maxConcurrent: concurrent,
		healthy:       true,
	}, nil
}

// Start launches the poll loop.
func (w *Watcher) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.ensureSchema()
	go func() {
		w.resumeStuck()
		w.runOnce()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.runOnce()
			}
		}
	}()
}

// Stop cancels the poll loop; in-flight jobs finish on their own.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) IsHealthy() bool      { return w.healthy }
func (w *Watcher) LastRunAt() time.Time { return w.lastRunAt }
func (w *Watcher) IsRunning() bool      { return atomic.LoadInt32(&w.running) == 1 }

// ManualTrigger runs one discover/process cycle immediately.
func (w *Watcher) ManualTrigger() {
	go w.runOnce()
}

// runOnce executes one cycle under the cross-instance cycle lock: discover
// new files, then drain a batch from the queue.
func (w *Watcher) runOnce() {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&w.running, 0)

	ctx := w.ctx
	w.lastRunAt = time.Now()
	w.healthy = true

	lock := distlock.NewLock(w.rdb, w.db, cycleLockKey, 2*w.interval)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[watcher] cycle lock error: %v", err)
		w.healthy = false
		return
	}
	if !ok {
		log.Printf("[watcher] cycle held by another instance, skipping")
		return
	}
	defer lock.Release(ctx)

	w.discoverFiles(ctx)
	w.processQueue(ctx)
}

// Files the watcher will queue. Carrier portals export CSV most of the
// time but some ship pipe-delimited .txt or fixed-width .dat.
var ingestibleExt = map[string]bool{".csv": true, ".txt": true, ".tsv": true, ".dat": true}

// discoverFiles scans the bucket and inserts every new export as a pending
// job. Already-known keys are skipped via ON CONFLICT.
func (w *Watcher) discoverFiles(ctx context.Context) {
	paginator := s3.NewListObjectsV2Paginator(w.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(w.bucket),
	})

	inserted := 0
	for paginator.HasMorePages() {
		if ctx.Err() != nil {
			return
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("[watcher] list S3 objects error: %v", err)
			w.healthy = false
			return
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if obj.Size == nil || *obj.Size == 0 {
				continue
			}
			if strings.HasPrefix(key, "processed/") || strings.HasPrefix(key, "failed/") {
				continue
			}
			if !ingestibleExt[strings.ToLower(path.Ext(key))] {
				continue
			}

			res, err := w.db.ExecContext(ctx,
				`INSERT INTO ingest_jobs (id, object_key, status, file_size)
				 VALUES ($1, $2, 'pending', $3)
				 ON CONFLICT (object_key) DO NOTHING`,
				uuid.New().String(), key, *obj.Size,
			)
			if err != nil {
				log.Printf("[watcher] insert pending %s: %v", key, err)
				continue
			}
			if rows, _ := res.RowsAffected(); rows > 0 {
				inserted++
			}
		}
	}

	if inserted > 0 {
		log.Printf("[watcher] discovered %d new files", inserted)
	}
}

// processQueue claims pending jobs smallest-first and runs them with bounded
// concurrency.
func (w *Watcher) processQueue(ctx context.Context) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT id, object_key FROM ingest_jobs
		 WHERE status = 'pending'
		 ORDER BY file_size ASC
		 LIMIT $1`, queueBatchSize)
	if err != nil {
		log.Printf("[watcher] query queue: %v", err)
		return
	}

	type job struct{ id, key string }
	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.key); err == nil {
			jobs = append(jobs, j)
		}
	}
	rows.Close()

	if len(jobs) == 0 {
		return
	}
	log.Printf("[watcher] processing batch of %d files from queue", len(jobs))

	sem := make(chan struct{}, w.maxConcurrent)
	var wg sync.WaitGroup
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.processFile(ctx, j.id, j.key); err != nil {
				log.Printf("[watcher] process file %s error: %v", j.key, err)
			}
		}(j)
	}
	wg.Wait()
}

// processFile claims one job, downloads the export, runs the pipeline and
// persists the results. The original object moves to processed/ on success.
func (w *Watcher) processFile(ctx context.Context, jobID, key string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE ingest_jobs
		 SET status='processing', retry_count=retry_count+1, started_at=NOW()
		 WHERE id=$1 AND status='pending'`, jobID)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Another worker got there first.
		return nil
	}

	log.Printf("[watcher] processing %s", key)

	obj, err := w.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		w.markFailed(ctx, jobID, fmt.Sprintf("get S3 object: %v", err))
		return fmt.Errorf("get S3 object: %w", err)
	}
	data, err := io.ReadAll(obj.Body)
	obj.Body.Close()
	if err != nil {
		w.markFailed(ctx, jobID, fmt.Sprintf("read S3 object: %v", err))
		return fmt.Errorf("read S3 object: %w", err)
	}

	hint := w.classifier.Classify(key, nil)
	result := w.pipe.Run(pipeline.Input{
		JobID:  jobID,
		Source: key,
		LineID: lineFromKey(key),
		Data:   data,
		Hint:   hint,
	}, w.progress.Callback(ctx))

	if err := w.persist(ctx, jobID, result); err != nil {
		w.markFailed(ctx, jobID, err.Error())
		return err
	}

	if critical := firstCritical(result.Errors); critical != nil {
		w.markFailed(ctx, jobID, critical.Message)
		return nil
	}

	renamedKey := fmt.Sprintf("processed/%s-%s-%s",
		time.Now().UTC().Format("20060102T150405"), orUnknown(hint.Carrier), path.Base(key))
	w.db.ExecContext(ctx,
		`UPDATE ingest_jobs
		 SET status='completed', renamed_key=$1, carrier=$2,
		     event_count=$3, contact_count=$4, duplicate_count=$5, error_count=$6,
		     quality_score=$7, processed_at=NOW()
		 WHERE id=$8`,
		renamedKey, hint.Carrier,
		len(result.Events), len(result.Contacts), len(result.Duplicates), len(result.Errors),
		result.Metrics.QualityScore, jobID,
	)
	w.archive(ctx, key, renamedKey)

	log.Printf("[watcher] completed %s -> %s: events=%d contacts=%d duplicates=%d errors=%d quality=%.1f",
		key, renamedKey, len(result.Events), len(result.Contacts), len(result.Duplicates),
		len(result.Errors), result.Metrics.QualityScore)
	return nil
}

// persist writes one job's pipeline output in dependency order: contacts
// first so event contact ids have rows to point at.
func (w *Watcher) persist(ctx context.Context, jobID string, result *pipeline.Result) error {
	if err := w.contacts.BatchUpsert(ctx, result.Contacts); err != nil {
		return fmt.Errorf("persist contacts: %w", err)
	}
	if err := w.events.BatchUpsert(ctx, result.Events); err != nil {
		return fmt.Errorf("persist events: %w", err)
	}
	if err := w.errLog.BatchInsert(ctx, result.Errors); err != nil {
		return fmt.Errorf("persist errors: %w", err)
	}
	return nil
}

// archive copies the object into processed/ and deletes the original. A
// failed copy leaves the original in place; rediscovery is prevented by the
// completed job row.
func (w *Watcher) archive(ctx context.Context, key, renamedKey string) {
	_, err := w.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(w.bucket),
		CopySource: aws.String(w.bucket + "/" + key),
		Key:        aws.String(renamedKey),
	})
	if err != nil {
		log.Printf("[watcher] copy to %s failed: %v", renamedKey, err)
		return
	}
	if _, err := w.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
	}); err != nil {
		log.Printf("[watcher] delete original %s failed: %v", key, err)
	}
}

func (w *Watcher) markFailed(ctx context.Context, jobID, msg string) {
	w.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status='failed', error_message=$1 WHERE id=$2`,
		msg, jobID)
}

// resumeStuck requeues jobs left in 'processing' by a crashed worker. Jobs
// out of retries fail permanently.
func (w *Watcher) resumeStuck() {
	ctx := w.ctx
	w.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status='pending'
		 WHERE status='processing' AND retry_count < $1`, maxRetries)
	w.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status='failed', error_message='max retries exceeded'
		 WHERE status='processing' AND retry_count >= $1`, maxRetries)
}

// ensureSchema creates the job queue table when missing.
func (w *Watcher) ensureSchema() {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			id UUID PRIMARY KEY,
			object_key TEXT NOT NULL UNIQUE,
			renamed_key TEXT,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','processing','completed','failed')),
			carrier TEXT,
			file_size BIGINT DEFAULT 0,
			retry_count INTEGER DEFAULT 0,
			event_count INTEGER DEFAULT 0,
			contact_count INTEGER DEFAULT 0,
			duplicate_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			quality_score DOUBLE PRECISION,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs (status, file_size)`,
	}
	for _, s := range stmts {
		if _, err := w.db.Exec(s); err != nil {
			log.Printf("[watcher] schema migration (non-fatal): %v", err)
		}
	}
}

// Status summarizes the queue for the API.
type Status struct {
	Healthy   bool           `json:"healthy"`
	Running   bool           `json:"running"`
	LastRunAt time.Time      `json:"last_run_at"`
	Queue     map[string]int `json:"queue"`
}

// QueueStatus reports per-state job counts.
func (w *Watcher) QueueStatus(ctx context.Context) (*Status, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM ingest_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}
	defer rows.Close()

	st := &Status{
		Healthy:   w.healthy,
		Running:   w.IsRunning(),
		LastRunAt: w.lastRunAt,
		Queue:     make(map[string]int),
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue status: %w", err)
		}
		st.Queue[status] = n
	}
	return st, rows.Err()
}

var lineKeyRE = regexp.MustCompile(`(?i)line[-_]?(\+?\d{7,15})`)

// lineFromKey pulls an owning line number out of object keys shaped like
// exports/line-15550100001/march.csv. Exports without one rely on the file's
// own line id column.
func lineFromKey(key string) string {
	m := lineKeyRE.FindStringSubmatch(key)
	if m == nil {
		return ""
	}
	return m[1]
}

func firstCritical(errs []domain.IngestError) *domain.IngestError {
	for i := range errs {
		if errs[i].Severity == domain.SeverityCritical {
			return &errs[i]
		}
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
