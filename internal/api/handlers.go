package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/carrier-ingest/internal/classify"
	"github.com/ignite/carrier-ingest/internal/pipeline"
	"github.com/ignite/carrier-ingest/internal/pkg/logger"
	"github.com/ignite/carrier-ingest/internal/repository/postgres"
	"github.com/ignite/carrier-ingest/internal/watcher"
)

// maxUploadBytes bounds a direct upload; bigger exports go through S3.
const maxUploadBytes = 256 << 20

// Handlers carries the wired services for the HTTP surface.
type Handlers struct {
	db         *sql.DB
	pipe       *pipeline.Pipeline
	progress   *pipeline.ProgressStore
	classifier *classify.Classifier
	events     *postgres.EventRepo
	contacts   *postgres.ContactRepo
	errLog     *postgres.ErrorRepo
	watcher    *watcher.Watcher
}

// NewHandlers wires the handler set. watcher may be nil when the instance
// only serves uploads.
func NewHandlers(db *sql.DB, rdb *redis.Client, pipe *pipeline.Pipeline, w *watcher.Watcher) *Handlers {
	return &Handlers{
		db:         db,
		pipe:       pipe,
		progress:   pipeline.NewProgressStore(rdb),
		classifier: classify.NewClassifier(),
		events:     postgres.NewEventRepo(db),
		contacts:   postgres.NewContactRepo(db),
		errLog:     postgres.NewErrorRepo(db),
		watcher:    w,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleHealth reports process liveness and dependency state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok"}
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
	}
	if h.watcher != nil {
		status["watcher_healthy"] = h.watcher.IsHealthy()
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleIngest accepts a multipart export upload and runs it through the
// pipeline synchronously, persisting the results.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	jobID := uuid.New().String()
	hint := h.classifier.Classify(header.Filename, nil)

	result := h.pipe.Run(pipeline.Input{
		JobID:  jobID,
		Source: header.Filename,
		LineID: r.FormValue("line_id"),
		Data:   data,
		Hint:   hint,
	}, h.progress.Callback(r.Context()))

	if err := h.persist(r, jobID, result); err != nil {
		logger.Error("persist upload failed", "job_id", jobID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "persist results: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":     jobID,
		"file":       header.Filename,
		"carrier":    hint.Carrier,
		"events":     len(result.Events),
		"contacts":   len(result.Contacts),
		"duplicates": len(result.Duplicates),
		"errors":     len(result.Errors),
		"warnings":   result.Warnings,
		"metrics":    result.Metrics,
		"mappings":   result.Mappings,
		"gap_report": result.GapReport,
	})
}

func (h *Handlers) persist(r *http.Request, jobID string, result *pipeline.Result) error {
	ctx := r.Context()
	if err := h.contacts.BatchUpsert(ctx, result.Contacts); err != nil {
		return err
	}
	if err := h.events.BatchUpsert(ctx, result.Events); err != nil {
		return err
	}
	return h.errLog.BatchInsert(ctx, result.Errors)
}

// HandleIngestStatus reports a job's live stage progress.
func (h *Handlers) HandleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	stage, percent, err := h.progress.Get(r.Context(), jobID)
	if err == redis.Nil {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"stage":   stage,
		"percent": percent,
	})
}

// HandleIngestErrors returns a job's persisted error log, worst first.
func (h *Handlers) HandleIngestErrors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	limit := queryInt(r, "limit", 0)

	errs, err := h.errLog.ListByJob(r.Context(), jobID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := h.errLog.CountBySeverity(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   jobID,
		"errors":   errs,
		"severity": counts,
	})
}

// HandleListEvents returns a line's events in chronological order.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	lineID := r.URL.Query().Get("line_id")
	if lineID == "" {
		writeError(w, http.StatusBadRequest, "line_id is required")
		return
	}

	events, err := h.events.ListByLine(r.Context(), lineID,
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.events.CountByLine(r.Context(), lineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"line_id": lineID,
		"total":   total,
		"events":  events,
	})
}

// HandleListContacts returns the roster ordered by activity.
func (h *Handlers) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	out, err := h.contacts.List(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": out})
}

// HandleWatcherTrigger starts a watcher cycle out of schedule.
func (h *Handlers) HandleWatcherTrigger(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "watcher not initialized")
		return
	}
	if h.watcher.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}
	h.watcher.ManualTrigger()
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

// HandleWatcherStatus reports watcher health and queue counts.
func (h *Handlers) HandleWatcherStatus(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"initialized": false})
		return
	}
	st, err := h.watcher.QueueStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
