package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"

	"github.com/ignite/carrier-ingest/internal/config"
	"github.com/ignite/carrier-ingest/internal/pipeline"
	"github.com/ignite/carrier-ingest/internal/pkg/logger"
	"github.com/ignite/carrier-ingest/internal/watcher"
)

// The worker runs the export-bucket watcher without the HTTP surface. Scale
// it horizontally; the job queue and cycle lock keep instances from stepping
// on each other.
func main() {
	log.Println("Starting carrier-ingest worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if cfg.Watcher.S3Bucket == "" {
		log.Fatal("watcher.s3_bucket (or EXPORT_S3_BUCKET) is required for the worker")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis unavailable (%v), falling back to Postgres locks", err)
		rdb = nil
	}

	w, err := watcher.New(db, rdb, pipeline.New(cfg.Pipeline), watcher.Config{
		Bucket:        cfg.Watcher.S3Bucket,
		Region:        cfg.Watcher.S3Region,
		AWSProfile:    cfg.Watcher.AWSProfile,
		Interval:      cfg.Watcher.Interval(),
		MaxConcurrent: cfg.Watcher.MaxConcurrent,
	})
	if err != nil {
		log.Fatalf("Failed to initialize watcher: %v", err)
	}

	w.Start()
	log.Printf("Watcher started on bucket %s (every %s)", cfg.Watcher.S3Bucket, cfg.Watcher.Interval())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	w.Stop()
}
