// Package fieldmap proposes a mapping from source export columns to the
// canonical record fields, with a detected data type and confidence per
// column. Detection is a fixed rule list: header-name rules win over
// sample-value rules, and anything unrecognized falls back to plain text.
package fieldmap

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/ignite/carrier-ingest/internal/normalize"
)

// MaxSamples bounds how many sample values the type sniffers inspect.
const MaxSamples = 5

// Confidence levels per rule tier.
const (
	confHeaderPhone    = 0.9
	confHeaderDate     = 0.85
	confHeaderEmail    = 0.9
	confHeaderDuration = 0.8
	confSamplePhone    = 0.7
	confSampleDate     = 0.7
	confSampleEmail    = 0.8
	confSampleNumber   = 0.6
	confSampleBool     = 0.5
	confDefaultText    = 0.3
)

// Mapper detects column types and suggests canonical targets. The format
// hint comes from the external classification service and is carried along
// untouched for downstream reporting.
type Mapper struct {
	norm *normalize.Normalizer
	hint domain.FormatHint
}

// New builds a mapper. hint may be the zero value when no classification
// service is wired.
func New(hint domain.FormatHint) *Mapper {
	return &Mapper{norm: normalize.New(""), hint: hint}
}

// Hint returns the classification triple this mapper was constructed with.
func (m *Mapper) Hint() domain.FormatHint { return m.hint }

var (
	phoneHeaderRE    = regexp.MustCompile(`phone|number|caller`)
	dateHeaderRE     = regexp.MustCompile(`date|time|stamp`)
	emailHeaderRE    = regexp.MustCompile(`email|mail`)
	durationHeaderRE = regexp.MustCompile(`duration|length`)

	phoneValueRE = regexp.MustCompile(`^\+?[\d\s().-]{10,}$`)
	emailValueRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	numberRE     = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	nonAlnumRE   = regexp.MustCompile(`[^a-z0-9]+`)
)

// DetectType returns the detected data type for one column and the
// confidence of that detection. Header rules are evaluated first; sample
// rules only apply when no header rule matched.
func (m *Mapper) DetectType(header string, samples []string) (domain.DataType, float64) {
	h := strings.ToLower(strings.TrimSpace(header))

	switch {
	case phoneHeaderRE.MatchString(h):
		return domain.TypePhoneNumber, confHeaderPhone
	case dateHeaderRE.MatchString(h):
		return domain.TypeDateTime, confHeaderDate
	case emailHeaderRE.MatchString(h):
		return domain.TypeEmail, confHeaderEmail
	case durationHeaderRE.MatchString(h):
		return domain.TypeNumber, confHeaderDuration
	}

	if len(samples) > MaxSamples {
		samples = samples[:MaxSamples]
	}

	if matchesAll(samples, m.looksLikePhone) {
		return domain.TypePhoneNumber, confSamplePhone
	}
	if matchesAll(samples, m.looksLikeDate) {
		return domain.TypeDateTime, confSampleDate
	}
	if matchesAll(samples, func(s string) bool { return emailValueRE.MatchString(s) }) {
		return domain.TypeEmail, confSampleEmail
	}
	if matchesAll(samples, func(s string) bool { return numberRE.MatchString(s) }) {
		return domain.TypeNumber, confSampleNumber
	}
	if matchesAll(samples, looksLikeBool) {
		return domain.TypeBoolean, confSampleBool
	}

	return domain.TypeText, confDefaultText
}

// matchesAll requires at least one non-empty sample and every non-empty
// sample to satisfy the predicate.
func matchesAll(samples []string, pred func(string) bool) bool {
	seen := 0
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !pred(s) {
			return false
		}
		seen++
	}
	return seen > 0
}

func (m *Mapper) looksLikePhone(s string) bool {
	if !phoneValueRE.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10
}

func (m *Mapper) looksLikeDate(s string) bool {
	// Bare numbers are ambiguous with durations/ids; the epoch path in the
	// normalizer would accept them, so exclude them here.
	if numberRE.MatchString(s) {
		return false
	}
	_, err := m.norm.Timestamp(s)
	return err == nil
}

func looksLikeBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "1", "0":
		return true
	}
	return false
}

// SuggestTarget maps a source column name plus its detected type to one of
// the canonical target fields. Returns "" when no target applies (the column
// survives as an extra field).
func SuggestTarget(sourceName string, dt domain.DataType) string {
	name := nonAlnumRE.ReplaceAllString(strings.ToLower(sourceName), " ")
	name = strings.TrimSpace(name)

	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}

	switch dt {
	case domain.TypePhoneNumber:
		switch {
		case has("caller", "calling", "from", "a party", "orig"):
			return domain.TargetCallerNumber
		case has("called", "to", "b party", "dial", "dest", "recipient"):
			return domain.TargetCalledNumber
		case has("target", "subscriber", "msisdn", "line"):
			return domain.TargetLineID
		default:
			return domain.TargetCallerNumber
		}
	case domain.TypeDateTime:
		if has("end", "stop", "release") {
			return domain.TargetEndTimestamp
		}
		return domain.TargetTimestamp
	case domain.TypeNumber:
		if has("duration", "length", "sec") {
			return domain.TargetDuration
		}
	}

	switch {
	case has("direction"):
		return domain.TargetDirection
	case has("call type", "event type", "record type", "service type", "type"):
		return domain.TargetEventType
	case has("message", "content", "text", "body"):
		return domain.TargetMessageContent
	case has("contact", "name"):
		return domain.TargetContactName
	case has("status", "outcome", "result"):
		return domain.TargetStatus
	case has("line", "imsi", "account"):
		return domain.TargetLineID
	}
	return ""
}

// MapColumns proposes a full mapping for a header row given up to MaxSamples
// sample values per column. When two columns claim the same target, the
// higher-confidence mapping keeps it and the loser is demoted to an extra
// field (earlier column wins ties).
func (m *Mapper) MapColumns(header []string, samples [][]string) []domain.FieldMapping {
	mappings := make([]domain.FieldMapping, len(header))
	for i, col := range header {
		var colSamples []string
		for _, row := range samples {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				colSamples = append(colSamples, row[i])
			}
			if len(colSamples) >= MaxSamples {
				break
			}
		}

		dt, conf := m.DetectType(col, colSamples)
		target := SuggestTarget(col, dt)
		mappings[i] = domain.FieldMapping{
			SourceColumn: col,
			TargetField:  target,
			DataType:     dt,
			Confidence:   conf,
			Required:     target == domain.TargetCallerNumber || target == domain.TargetTimestamp,
		}
	}

	resolveTargetConflicts(mappings)
	return mappings
}

// resolveTargetConflicts enforces unique canonical targets: highest
// confidence wins, earlier column wins ties, losers become extra fields.
func resolveTargetConflicts(mappings []domain.FieldMapping) {
	byTarget := make(map[string][]int)
	for i, fm := range mappings {
		if fm.TargetField != "" {
			byTarget[fm.TargetField] = append(byTarget[fm.TargetField], i)
		}
	}
	for _, idxs := range byTarget {
		if len(idxs) < 2 {
			continue
		}
		sort.SliceStable(idxs, func(a, b int) bool {
			return mappings[idxs[a]].Confidence > mappings[idxs[b]].Confidence
		})
		for _, i := range idxs[1:] {
			mappings[i].TargetField = ""
			mappings[i].Required = false
		}
	}
}

// Validate reports whether a caller-supplied mapping is usable: confidences
// in range and at least one number and one timestamp target present.
func Validate(mappings []domain.FieldMapping) error {
	var hasNumber, hasTimestamp bool
	for _, fm := range mappings {
		if fm.Confidence < 0 || fm.Confidence > 1 {
			return &MappingError{Column: fm.SourceColumn, Reason: "confidence out of [0,1]"}
		}
		switch fm.TargetField {
		case domain.TargetCallerNumber, domain.TargetCalledNumber:
			hasNumber = true
		case domain.TargetTimestamp:
			hasTimestamp = true
		}
	}
	if !hasNumber {
		return &MappingError{Reason: "no phone number column mapped"}
	}
	if !hasTimestamp {
		return &MappingError{Reason: "no timestamp column mapped"}
	}
	return nil
}

// MappingError describes why a field mapping was rejected.
type MappingError struct {
	Column string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Column == "" {
		return "invalid field mapping: " + e.Reason
	}
	return "invalid field mapping for column " + e.Column + ": " + e.Reason
}
