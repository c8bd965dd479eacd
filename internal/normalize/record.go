package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/carrier-ingest/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FieldError reports one failed field normalization inside a row.
type FieldError struct {
	Field   string
	Kind    domain.ErrorKind
	Message string
}

// RecordBuilder assembles canonical events from raw rows using a resolved
// field mapping. An event is accepted only when both its phone number and
// its timestamp normalized successfully; every other field is optional and
// left nil on failure, with the failure reported as a FieldError.
type RecordBuilder struct {
	norm     *Normalizer
	byTarget map[string]int // target field -> column index
	source   string
	lineID   string
	titler   cases.Caser
}

// NewRecordBuilder resolves the mapping against the header once, so per-row
// assembly is index lookups only.
func NewRecordBuilder(norm *Normalizer, header []string, mappings []domain.FieldMapping, source, defaultLineID string) *RecordBuilder {
	byTarget := make(map[string]int, len(mappings))
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	for _, fm := range mappings {
		if fm.TargetField == "" {
			continue
		}
		if i, ok := index[fm.SourceColumn]; ok {
			if _, taken := byTarget[fm.TargetField]; !taken {
				byTarget[fm.TargetField] = i
			}
		}
	}
	return &RecordBuilder{
		norm:     norm,
		byTarget: byTarget,
		source:   source,
		lineID:   defaultLineID,
		titler:   cases.Title(language.English),
	}
}

func (b *RecordBuilder) value(values []string, target string) (string, bool) {
	i, ok := b.byTarget[target]
	if !ok || i >= len(values) {
		return "", false
	}
	v := strings.TrimSpace(values[i])
	return v, v != ""
}

// Build assembles one event from a raw row. A nil event with errors means
// the row was rejected; a non-nil event may still carry field errors for
// optional fields that failed to normalize.
func (b *RecordBuilder) Build(values []string) (*domain.Event, []FieldError) {
	var errs []FieldError
	now := time.Now().UTC()

	ev := &domain.Event{
		ID:        uuid.New().String(),
		LineID:    b.lineID,
		Source:    b.source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if v, ok := b.value(values, domain.TargetLineID); ok {
		if line, err := b.norm.Phone(v); err == nil {
			ev.LineID = line
		} else {
			ev.LineID = v
		}
	}

	// Direction first: it decides which of caller/called is the counterpart.
	dirKnown := false
	if v, ok := b.value(values, domain.TargetDirection); ok {
		if d, err := b.norm.Direction(v); err == nil {
			ev.Direction = domain.Direction(d)
			dirKnown = true
		} else {
			errs = append(errs, FieldError{Field: "direction", Kind: domain.ErrInvalidDataType, Message: err.Error()})
		}
	}

	caller, hasCaller := b.value(values, domain.TargetCallerNumber)
	called, hasCalled := b.value(values, domain.TargetCalledNumber)

	raw := ""
	switch {
	case hasCaller && hasCalled:
		// Pick the counterpart of the line. Without a line id, fall back to
		// direction: outbound events point at the called party.
		callerNorm, _ := b.norm.Phone(caller)
		if ev.LineID != "" && callerNorm == ev.LineID {
			raw = called
			if !dirKnown {
				ev.Direction = domain.DirectionOutbound
				dirKnown = true
			}
		} else if ev.LineID != "" {
			raw = caller
			if !dirKnown {
				ev.Direction = domain.DirectionInbound
				dirKnown = true
			}
		} else if dirKnown && ev.Direction == domain.DirectionInbound {
			raw = caller
		} else {
			raw = called
		}
	case hasCaller:
		raw = caller
	case hasCalled:
		raw = called
	}

	if raw == "" {
		errs = append(errs, FieldError{Field: "number", Kind: domain.ErrMissingRequiredField, Message: "no phone number in row"})
		return nil, errs
	}
	num, err := b.norm.Phone(raw)
	if err != nil {
		errs = append(errs, FieldError{Field: "number", Kind: domain.ErrInvalidDataType, Message: err.Error()})
		return nil, errs
	}
	ev.RawNumber = raw
	ev.Number = num

	ts, ok := b.value(values, domain.TargetTimestamp)
	if !ok {
		errs = append(errs, FieldError{Field: "timestamp", Kind: domain.ErrMissingRequiredField, Message: "no timestamp in row"})
		return nil, errs
	}
	when, err := b.norm.Timestamp(ts)
	if err != nil {
		errs = append(errs, FieldError{Field: "timestamp", Kind: domain.ErrParsing, Message: err.Error()})
		return nil, errs
	}
	ev.Timestamp = when

	if !dirKnown {
		ev.Direction = domain.DirectionOutbound
	}

	typeKnown := false
	if v, ok := b.value(values, domain.TargetEventType); ok {
		if et, terr := b.norm.EventType(v); terr == nil {
			ev.Type = domain.EventType(et)
			typeKnown = true
		} else {
			errs = append(errs, FieldError{Field: "type", Kind: domain.ErrInvalidDataType, Message: terr.Error()})
		}
	}

	if v, ok := b.value(values, domain.TargetDuration); ok {
		if secs, derr := b.norm.Duration(v); derr == nil {
			ev.DurationSeconds = &secs
		} else {
			errs = append(errs, FieldError{Field: "duration", Kind: domain.ErrInvalidDataType, Message: derr.Error()})
		}
	}

	if v, ok := b.value(values, domain.TargetMessageContent); ok {
		content := v
		ev.Content = &content
	}

	if v, ok := b.value(values, domain.TargetStatus); ok {
		st := domain.CallStatus(strings.ToLower(v))
		ev.Status = &st
	}

	if !typeKnown {
		// Infer from which optional payload the row carries.
		if ev.Content != nil && ev.DurationSeconds == nil {
			ev.Type = domain.EventSMS
		} else {
			ev.Type = domain.EventCall
		}
	}

	// Duration is call-only, content is sms-only; drop the mismatched side.
	if ev.Type == domain.EventSMS {
		ev.DurationSeconds = nil
	}
	if ev.Type == domain.EventCall {
		ev.Content = nil
		ev.Status = normalizeStatus(ev.Status)
	} else {
		ev.Status = nil
	}

	return ev, errs
}

func normalizeStatus(s *domain.CallStatus) *domain.CallStatus {
	if s == nil {
		return nil
	}
	switch *s {
	case domain.CallAnswered, domain.CallMissed, domain.CallVoicemail, domain.CallFailed:
		return s
	}
	return nil
}

// DisplayName title-cases a contact name column value for the roster.
func (b *RecordBuilder) DisplayName(values []string) string {
	if v, ok := b.value(values, domain.TargetContactName); ok {
		return b.titler.String(strings.ToLower(v))
	}
	return ""
}

// Describe summarizes the builder's resolved targets, for debug logging.
func (b *RecordBuilder) Describe() string {
	return fmt.Sprintf("resolved %d targets (line=%s source=%s)", len(b.byTarget), b.lineID, b.source)
}
