// Package normalize converts raw string values from carrier exports into
// canonical types: phone numbers, UTC timestamps, durations, and generic
// scalar coercions. Every attempt reports success or failure per field; the
// caller decides what a partial failure means for the record.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of one field normalization attempt.
type Result struct {
	OK    bool
	Value string
	Err   string
}

// Options controls generic scalar coercion.
type Options struct {
	TrimSpace bool
	Lowercase bool
}

// Normalizer holds per-invocation settings. Construct a fresh one whenever
// the pipeline configuration changes; instances are immutable after creation
// and safe for concurrent use.
type Normalizer struct {
	loc *time.Location
}

// New builds a normalizer anchored to the given IANA timezone, used only
// when a source timestamp carries no offset of its own. An empty or invalid
// zone falls back to UTC.
func New(timezone string) *Normalizer {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Phone strips separators and applies North-American dialing heuristics.
// Idempotent: Phone(Phone(x)) == Phone(x).
//
//	"(555) 010-0123"  → "+15550100123"
//	"1 555 010 0123"  → "+15550100123"
//	"+4420719460000"  → "+4420719460000"
func (n *Normalizer) Phone(raw string) (string, error) {
	// Keep only digits and a leading +
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	num := b.String()

	digits := strings.TrimPrefix(num, "+")
	if len(digits) == 0 {
		return "", fmt.Errorf("no digits in %q", raw)
	}

	if strings.HasPrefix(num, "+") {
		return num, nil
	}
	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits, nil
	case len(digits) > 10:
		return "+" + digits, nil
	default:
		return digits, nil
	}
}

// timestampLayouts are tried in order. Layouts with explicit offsets bind
// the instant directly; the rest are interpreted in the normalizer's zone.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 3:04:05 PM",
	"01/02/2006 15:04",
	"02-Jan-2006 15:04:05",
	"Jan 2, 2006 3:04:05 PM",
	"2006-01-02",
	"01/02/2006",
}

// Timestamp parses a permissive set of carrier date formats and returns the
// instant in UTC.
func (n *Normalizer) Timestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Epoch seconds / milliseconds show up in a few structured exports.
	if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 100_000_000 {
		if v > 100_000_000_000 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	}

	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(layout, "Z07") || strings.Contains(layout, "-0700") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, n.loc)
		}
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// Duration parses integer seconds. Non-numeric and negative values are
// errors, never coerced. "HH:MM:SS" and "MM:SS" forms are accepted because
// several carriers export call length that way.
func (n *Normalizer) Duration(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		total := 0
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid duration %q", raw)
			}
			total = total*60 + v
		}
		return total, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		// "45.0" from float-typed spreadsheet exports
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == float64(int(f)) {
			v = int(f)
		} else {
			return 0, fmt.Errorf("non-numeric duration %q", raw)
		}
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %d", v)
	}
	return v, nil
}

// Direction maps carrier direction labels onto inbound/outbound.
func (n *Normalizer) Direction(raw string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN", "A_IN", "CALL_IN", "SMS_IN", "INCOMING", "INBOUND", "MT", "RECEIVED":
		return "inbound", nil
	case "OUT", "A_OUT", "CALL_OUT", "SMS_OUT", "OUTGOING", "OUTBOUND", "MO", "SENT", "DIALED":
		return "outbound", nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

// EventType maps carrier record-type labels onto call/sms.
func (n *Normalizer) EventType(raw string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(v, "SMS") || strings.Contains(v, "TEXT") || strings.Contains(v, "MSG"):
		return "sms", nil
	case strings.Contains(v, "CALL") || strings.Contains(v, "VOICE") || v == "IN" || v == "OUT":
		return "call", nil
	default:
		return "", fmt.Errorf("unknown event type %q", raw)
	}
}

// Bool parses the usual truthy/falsy tokens.
func (n *Normalizer) Bool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y", "t":
		return true, nil
	case "false", "0", "no", "n", "f":
		return false, nil
	default:
		return false, fmt.Errorf("non-boolean value %q", raw)
	}
}

// Scalar applies generic trim/case-fold options and validates the value
// against the declared type. Impossible values are rejected, not coerced.
func (n *Normalizer) Scalar(raw string, typ string, opts Options) Result {
	v := raw
	if opts.TrimSpace {
		v = strings.TrimSpace(v)
	}
	if opts.Lowercase {
		v = strings.ToLower(v)
	}

	switch typ {
	case "number":
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return Result{OK: false, Err: fmt.Sprintf("non-numeric value %q", raw)}
		}
	case "boolean":
		if _, err := n.Bool(v); err != nil {
			return Result{OK: false, Err: err.Error()}
		}
	}
	return Result{OK: true, Value: v}
}
