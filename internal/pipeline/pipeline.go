// Package pipeline orchestrates one file's journey from raw export bytes to
// canonical events, contacts, duplicate pairs and a gap report. Stages run
// in a fixed sequence with progress reported between them; independent jobs
// share no mutable state and may run in parallel.
package pipeline

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/ignite/carrier-ingest/internal/config"
	"github.com/ignite/carrier-ingest/internal/contacts"
	"github.com/ignite/carrier-ingest/internal/dedupe"
	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/ignite/carrier-ingest/internal/extract"
	"github.com/ignite/carrier-ingest/internal/fieldmap"
	"github.com/ignite/carrier-ingest/internal/gaps"
	"github.com/ignite/carrier-ingest/internal/normalize"
	"github.com/ignite/carrier-ingest/internal/pkg/logger"
	"github.com/ignite/carrier-ingest/internal/validate"
)

// Stage names reported through the progress callback.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageValidate  Stage = "validate"
	StageContacts  Stage = "extract_contacts"
	StageDedupe    Stage = "deduplicate"
	StageGaps      Stage = "gap_analysis"
	StageFinalize  Stage = "finalize"
	StageComplete  Stage = "complete"
)

// Stage progress boundaries. Each stage reports its end percentage when it
// finishes; skipped stages still report so progress never runs backwards.
var stageEnd = map[Stage]int{
	StageNormalize: 10,
	StageValidate:  30,
	StageContacts:  50,
	StageDedupe:    70,
	StageGaps:      85,
	StageFinalize:  95,
	StageComplete:  100,
}

// ProgressFunc receives stage transitions. Callbacks are invoked
// synchronously between stages, never from inside a stage's hot loop.
type ProgressFunc func(jobID string, stage Stage, percent int)

// Input is one file to ingest.
type Input struct {
	JobID     string
	Source    string // file name or object key, stamped onto events
	LineID    string // owning line when the export doesn't carry one
	Data      []byte
	Delimiter rune                  // 0 = auto-detect
	Hint      domain.FormatHint     // carrier/format hint for the mapper
	Mappings  []domain.FieldMapping // non-nil bypasses auto-mapping
}

// Result collects everything one run produced.
type Result struct {
	Events     []domain.Event
	Contacts   []domain.Contact
	Duplicates []domain.DuplicatePair
	Mappings   []domain.FieldMapping
	GapReport  *gaps.Report
	Errors     []domain.IngestError
	Warnings   []string
	Metrics    domain.Metrics
}

// Pipeline runs ingestion jobs. The configuration is copied at construction
// and never mutated, so a single pipeline value is safe across concurrent
// jobs; reconfiguration means building a new pipeline.
type Pipeline struct {
	cfg config.PipelineConfig
}

// New builds a pipeline from an immutable configuration snapshot.
func New(cfg config.PipelineConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = validate.DefaultBatchSize
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = validate.DefaultMaxErrors
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if cfg.ConflictResolution == "" {
		cfg.ConflictResolution = string(domain.ResolveKeepFirst)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	return &Pipeline{cfg: cfg}
}

// Run processes one file synchronously through all stages. A system-level
// failure aborts immediately with empty collections and a single critical
// error; data-level problems accumulate as row errors instead.
func (p *Pipeline) Run(in Input, progress ProgressFunc) (res *Result) {
	start := time.Now()
	if progress == nil {
		progress = func(string, Stage, int) {}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline aborted", "job_id", in.JobID, "panic", fmt.Sprintf("%v", r))
			res = &Result{Errors: []domain.IngestError{
				domain.NewIngestError(in.JobID, domain.ErrSystem, fmt.Sprintf("pipeline aborted: %v", r)),
			}}
			res.Metrics.Elapsed = time.Since(start)
		}
	}()

	res = &Result{}

	if len(in.Data) == 0 {
		progress(in.JobID, StageComplete, 100)
		return res
	}

	// ---- normalize: extract, map, build canonical events ----
	progress(in.JobID, StageNormalize, 0)

	table, err := extract.ExtractBytes(in.Data, extract.Options{Delimiter: in.Delimiter})
	if err != nil {
		res.Errors = append(res.Errors,
			domain.NewIngestError(in.JobID, domain.ErrFileFormat, err.Error()).WithRaw(in.Source))
		res.Metrics.Elapsed = time.Since(start)
		return res
	}
	res.Metrics.TotalRows = len(table.Rows)

	mappings := in.Mappings
	if mappings == nil {
		mappings = p.autoMap(table, in.Hint)
	}
	if err := fieldmap.Validate(mappings); err != nil {
		res.Errors = append(res.Errors,
			domain.NewIngestError(in.JobID, domain.ErrFileFormat, err.Error()))
		res.Metrics.Elapsed = time.Since(start)
		return res
	}
	res.Mappings = mappings

	norm := normalize.New(p.cfg.Timezone)
	builder := normalize.NewRecordBuilder(norm, table.Header, mappings, in.Source, in.LineID)

	names := make(map[string]string)
	events := make([]domain.Event, 0, len(table.Rows))
	for _, row := range table.Rows {
		ev, fieldErrs := builder.Build(row.Values)
		for _, fe := range fieldErrs {
			// Row-fatal errors reject the event; others ride along.
			res.Errors = append(res.Errors,
				domain.NewIngestError(in.JobID, fe.Kind, fmt.Sprintf("%s: %s", fe.Field, fe.Message)).WithRow(row.Line))
		}
		if ev == nil {
			continue
		}
		if name := builder.DisplayName(row.Values); name != "" {
			names[ev.Number] = name
		}
		events = append(events, *ev)
	}
	res.Metrics.ParsedRows = len(events)
	progress(in.JobID, StageNormalize, stageEnd[StageNormalize])

	// ---- validate ----
	errorRate := 0.0
	if p.cfg.SkipValidation {
		logger.Debug("validation skipped", "job_id", in.JobID)
	} else {
		out := validate.New(p.cfg.BatchSize, p.cfg.MaxErrors).Run(in.JobID, events)
		events = out.Valid
		errorRate = out.ErrorRate
		res.Errors = append(res.Errors, out.Errors...)
		res.Warnings = append(res.Warnings, out.Warnings...)
	}
	progress(in.JobID, StageValidate, stageEnd[StageValidate])

	// ---- extract contacts ----
	roster := contacts.New()
	for off := 0; off < len(events); off += p.cfg.BatchSize {
		end := min(off+p.cfg.BatchSize, len(events))
		roster.Observe(events[off:end])
	}
	for number, name := range names {
		roster.SetName(number, name)
	}
	res.Contacts = roster.Roster()
	progress(in.JobID, StageContacts, stageEnd[StageContacts])

	// ---- deduplicate ----
	if p.cfg.DeduplicationEnabled {
		engine := dedupe.New(dedupe.Options{Threshold: p.cfg.SimilarityThreshold})
		res.Duplicates = engine.DetectDuplicates(events)
		events = p.resolveDuplicates(events, res.Duplicates)
		for range res.Duplicates {
			res.Metrics.DuplicateRows++
		}
	}
	progress(in.JobID, StageDedupe, stageEnd[StageDedupe])

	// ---- gap analysis ----
	gapScore := 100.0
	if p.cfg.GapDetectionEnabled {
		res.GapReport = gaps.New(0, 0).Analyze(events)
		gapScore = res.GapReport.QualityScore
	}
	progress(in.JobID, StageGaps, stageEnd[StageGaps])

	// ---- finalize ----
	now := time.Now().UTC()
	for i := range events {
		events[i].UpdatedAt = now
		if events[i].Source == "" {
			events[i].Source = in.Source
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	res.Events = events

	res.Metrics.ErrorRows = res.Metrics.TotalRows - res.Metrics.ParsedRows
	res.Metrics.Elapsed = time.Since(start)
	if secs := res.Metrics.Elapsed.Seconds(); secs > 0 {
		res.Metrics.RowsPerSecond = float64(res.Metrics.TotalRows) / secs
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	res.Metrics.HeapBytes = mem.HeapAlloc
	res.Metrics.QualityScore = qualityScore(errorRate, res.Metrics.ParsedRows, len(res.Duplicates), gapScore)
	progress(in.JobID, StageFinalize, stageEnd[StageFinalize])

	logger.Info("pipeline complete",
		"job_id", in.JobID,
		"total_rows", res.Metrics.TotalRows,
		"events", len(res.Events),
		"contacts", len(res.Contacts),
		"duplicates", len(res.Duplicates),
		"quality", fmt.Sprintf("%.1f", res.Metrics.QualityScore),
	)
	progress(in.JobID, StageComplete, 100)
	return res
}

// autoMap samples the leading rows and runs column auto-detection.
func (p *Pipeline) autoMap(table *extract.Table, hint domain.FormatHint) []domain.FieldMapping {
	samples := make([][]string, 0, fieldmap.MaxSamples)
	for i := 0; i < len(table.Rows) && i < fieldmap.MaxSamples; i++ {
		samples = append(samples, table.Rows[i].Values)
	}
	return fieldmap.New(hint).MapColumns(table.Header, samples)
}

// resolveDuplicates applies the configured conflict resolution to
// high-confidence pairs. Manual resolution keeps everything and leaves the
// decision to the caller; merge folds missing optional fields into the
// surviving record.
func (p *Pipeline) resolveDuplicates(events []domain.Event, pairs []domain.DuplicatePair) []domain.Event {
	resolution := domain.ConflictResolution(p.cfg.ConflictResolution)
	if resolution == domain.ResolveManual || len(pairs) == 0 {
		return events
	}

	drop := make(map[int]bool)
	for _, pair := range pairs {
		if pair.Result.Confidence <= 0.9 {
			continue
		}
		switch resolution {
		case domain.ResolveKeepLast:
			drop[pair.PrimaryIndex] = true
		case domain.ResolveMerge:
			mergeEvent(&events[pair.PrimaryIndex], &events[pair.DuplicateIndex])
			drop[pair.DuplicateIndex] = true
		default: // keep_first
			drop[pair.DuplicateIndex] = true
		}
	}
	if len(drop) == 0 {
		return events
	}

	kept := make([]domain.Event, 0, len(events)-len(drop))
	for i := range events {
		if !drop[i] {
			kept = append(kept, events[i])
		}
	}
	return kept
}

// mergeEvent fills optional fields the primary is missing from the duplicate.
func mergeEvent(primary, dup *domain.Event) {
	if primary.DurationSeconds == nil && dup.DurationSeconds != nil {
		primary.DurationSeconds = dup.DurationSeconds
	}
	if primary.Content == nil && dup.Content != nil {
		primary.Content = dup.Content
	}
	if primary.ContactID == nil && dup.ContactID != nil {
		primary.ContactID = dup.ContactID
	}
	if primary.Status == nil && dup.Status != nil {
		primary.Status = dup.Status
	}
}

// qualityScore folds validation, duplication and gap signals into [0,100].
func qualityScore(errorRate float64, parsed, duplicates int, gapScore float64) float64 {
	score := 100.0 - errorRate*0.5

	if parsed > 0 {
		dupPenalty := float64(duplicates) / float64(parsed) * 100
		if dupPenalty > 20 {
			dupPenalty = 20
		}
		score -= dupPenalty
	}

	if score > gapScore {
		score = gapScore
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
