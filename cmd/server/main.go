package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"

	"github.com/ignite/carrier-ingest/internal/api"
	"github.com/ignite/carrier-ingest/internal/config"
	"github.com/ignite/carrier-ingest/internal/pipeline"
	"github.com/ignite/carrier-ingest/internal/pkg/logger"
	"github.com/ignite/carrier-ingest/internal/watcher"
)

func main() {
	log.Println("Starting carrier-ingest API server...")

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
		log.Printf("Redis unavailable (%v), progress tracking disabled", err)
		rdb = nil
	}

	pipe := pipeline.New(cfg.Pipeline)

	var w *watcher.Watcher
	if cfg.Watcher.Enabled && cfg.Watcher.S3Bucket != "" {
		w, err = watcher.New(db, rdb, pipe, watcher.Config{
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
		defer w.Stop()
		log.Printf("Watcher started on bucket %s (every %s)", cfg.Watcher.S3Bucket, cfg.Watcher.Interval())
	}

	server := api.NewServer(api.NewHandlers(db, rdb, pipe, w))
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)

	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
