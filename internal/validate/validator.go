// Package validate checks normalized events against the canonical schema in
// fixed-size batches, with a bounded error budget acting as a circuit
// breaker: once the budget is spent the phase halts with a warning instead
// of accumulating errors without limit.
package validate

import (
	"fmt"

	"github.com/ignite/carrier-ingest/internal/domain"
)

const (
	// DefaultBatchSize is the validation batch size when none is configured.
	DefaultBatchSize = 1000
	// DefaultMaxErrors is the error ceiling before early termination.
	DefaultMaxErrors = 100
)

// Validator validates events in batches. Instances are immutable and safe
// for concurrent use across jobs.
type Validator struct {
	batchSize int
	maxErrors int
}

// New builds a validator; non-positive arguments take the defaults.
func New(batchSize, maxErrors int) *Validator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Validator{batchSize: batchSize, maxErrors: maxErrors}
}

// Outcome is the result of one validation phase.
type Outcome struct {
	Valid      []domain.Event
	Errors     []domain.IngestError
	Warnings   []string
	Total      int
	Invalid    int
	Unchecked  int // records passed through after early termination
	ErrorRate  float64
	Terminated bool
}

// Run validates events batch by batch. A failed field does not by itself
// invalidate the rest of the record; only missing required fields or type
// contract violations reject it. On early termination the remaining records
// pass through unchecked so a noisy file does not discard its good rows.
func (v *Validator) Run(jobID string, events []domain.Event) *Outcome {
	out := &Outcome{Total: len(events)}

	for start := 0; start < len(events); start += v.batchSize {
		end := start + v.batchSize
		if end > len(events) {
			end = len(events)
		}

		for i := start; i < end; i++ {
			ev := events[i]
			if errs := v.check(jobID, &ev); len(errs) > 0 {
				out.Invalid++
				out.Errors = append(out.Errors, errs...)
			} else {
				out.Valid = append(out.Valid, ev)
			}

			if len(out.Errors) >= v.maxErrors {
				out.Terminated = true
				out.Unchecked = len(events) - i - 1
				out.Valid = append(out.Valid, events[i+1:]...)
				out.Warnings = append(out.Warnings, fmt.Sprintf(
					"validation stopped early: error ceiling of %d reached after %d of %d records; %d records passed through unchecked",
					v.maxErrors, i+1, len(events), out.Unchecked))
				v.finish(out)
				return out
			}
		}
	}

	v.finish(out)
	return out
}

func (v *Validator) finish(out *Outcome) {
	if out.Total > 0 {
		out.ErrorRate = float64(out.Invalid) / float64(out.Total) * 100
	}
}

// check returns the schema violations for one event. An empty result means
// the record is accepted.
func (v *Validator) check(jobID string, ev *domain.Event) []domain.IngestError {
	var errs []domain.IngestError

	reject := func(kind domain.ErrorKind, msg string) {
		errs = append(errs, domain.NewIngestError(jobID, kind, msg))
	}

	if ev.Number == "" {
		reject(domain.ErrMissingRequiredField, "event has no normalized phone number")
	}
	if ev.Timestamp.IsZero() {
		reject(domain.ErrMissingRequiredField, "event has no timestamp")
	}
	switch ev.Direction {
	case domain.DirectionInbound, domain.DirectionOutbound:
	default:
		reject(domain.ErrInvalidDataType, fmt.Sprintf("invalid direction %q", ev.Direction))
	}
	switch ev.Type {
	case domain.EventCall, domain.EventSMS:
	default:
		reject(domain.ErrInvalidDataType, fmt.Sprintf("invalid event type %q", ev.Type))
	}

	if ev.Type == domain.EventSMS && ev.DurationSeconds != nil {
		reject(domain.ErrConstraintViolation, "sms event carries a call duration")
	}
	if ev.Type == domain.EventCall && ev.Content != nil {
		reject(domain.ErrConstraintViolation, "call event carries message content")
	}
	if ev.DurationSeconds != nil && *ev.DurationSeconds < 0 {
		reject(domain.ErrConstraintViolation, fmt.Sprintf("negative duration %d", *ev.DurationSeconds))
	}

	return errs
}
