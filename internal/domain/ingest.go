package domain

import "time"

// ErrorKind classifies an ingestion error. Severity is fixed per kind; use
// SeverityFor rather than assigning severities by hand.
type ErrorKind string

const (
	ErrFileFormat           ErrorKind = "file_format_error"
	ErrParsing              ErrorKind = "parsing_error"
	ErrValidation           ErrorKind = "validation_error"
	ErrDatabase             ErrorKind = "database_error"
	ErrSystem               ErrorKind = "system_error"
	ErrDuplicateData        ErrorKind = "duplicate_data"
	ErrMissingRequiredField ErrorKind = "missing_required_field"
	ErrInvalidDataType      ErrorKind = "invalid_data_type"
	ErrConstraintViolation  ErrorKind = "constraint_violation"
)

// Severity grades an ingestion error.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SeverityFor returns the fixed severity for an error kind.
func SeverityFor(kind ErrorKind) Severity {
	switch kind {
	case ErrFileFormat, ErrDatabase, ErrSystem:
		return SeverityCritical
	case ErrDuplicateData:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// IngestError is one immutable error record accumulated during a job.
type IngestError struct {
	JobID     string    `json:"job_id" db:"job_id"`
	RowNumber *int      `json:"row_number,omitempty" db:"row_number"`
	Kind      ErrorKind `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	RawData   string    `json:"raw_data,omitempty" db:"raw_data"`
	Severity  Severity  `json:"severity" db:"severity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewIngestError builds an error record with the severity fixed by kind.
func NewIngestError(jobID string, kind ErrorKind, msg string) IngestError {
	return IngestError{
		JobID:     jobID,
		Kind:      kind,
		Message:   msg,
		Severity:  SeverityFor(kind),
		CreatedAt: time.Now().UTC(),
	}
}

// WithRow returns a copy of the error annotated with a 1-based row number.
func (e IngestError) WithRow(row int) IngestError {
	e.RowNumber = &row
	return e
}

// WithRaw returns a copy of the error carrying the offending raw payload.
func (e IngestError) WithRaw(raw string) IngestError {
	e.RawData = raw
	return e
}

// Metrics summarizes one pipeline run.
type Metrics struct {
	TotalRows     int           `json:"total_rows"`
	ParsedRows    int           `json:"parsed_rows"`
	ErrorRows     int           `json:"error_rows"`
	DuplicateRows int           `json:"duplicate_rows"`
	Elapsed       time.Duration `json:"elapsed"`
	RowsPerSecond float64       `json:"rows_per_second"`
	HeapBytes     uint64        `json:"heap_bytes"`
	QualityScore  float64       `json:"quality_score"` // 0–100
}

// ConflictType classifies a detected duplicate pair.
type ConflictType string

const (
	ConflictExact        ConflictType = "exact"
	ConflictTimeVariance ConflictType = "time_variance"
	ConflictFuzzy        ConflictType = "fuzzy"
)

// MatchResult is the ephemeral outcome of one fuzzy comparison.
type MatchResult struct {
	Similarity    float64      `json:"similarity"` // [0,1]
	MatchedFields []string     `json:"matched_fields"`
	Conflict      ConflictType `json:"conflict"`
	Confidence    float64      `json:"confidence"` // [0,1]
}

// DuplicatePair points at two events judged to be near-duplicates.
type DuplicatePair struct {
	PrimaryIndex   int         `json:"primary_index"`
	DuplicateIndex int         `json:"duplicate_index"`
	Result         MatchResult `json:"result"`
}
