// Package classify guesses the carrier and export format of a file from its
// name and header row, producing a hint the field mapper can fold into its
// confidence scores.
package classify

import (
	"path"
	"strings"

	"github.com/ignite/carrier-ingest/internal/domain"
)

// Classifier determines a carrier/format hint from filename and header row.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Known carriers, matched against the lowercased file name.
var carrierKeywords = map[string][]string{
	"att":      {"att_", "at&t", "att-", "attexport"},
	"verizon":  {"verizon", "vzw"},
	"tmobile":  {"tmobile", "t-mobile", "tmo_"},
	"sprint":   {"sprint"},
	"vodafone": {"vodafone", "vfuk"},
	"rogers":   {"rogers"},
}

// Header vocabularies that identify an export format.
var formatHeaders = map[string][]string{
	"cdr":     {"msisdn", "a party", "b party", "imsi", "cell id"},
	"billing": {"charge", "rate plan", "billed", "amount"},
	"usage":   {"usage type", "data volume", "allowance"},
}

// Classify inspects the file name first, then the header row. The returned
// confidence reflects how the hint was derived; an empty hint carries zero
// confidence and the mapper falls back to pure auto-detection.
func (c *Classifier) Classify(key string, headerRow []string) domain.FormatHint {
	name := strings.ToLower(path.Base(key))

	hint := domain.FormatHint{Format: "cdr", Confidence: 0.3}

	for carrier, kws := range carrierKeywords {
		for _, kw := range kws {
			if strings.Contains(name, kw) {
				hint.Carrier = carrier
				hint.Confidence = 0.8
				break
			}
		}
		if hint.Carrier != "" {
			break
		}
	}

	for format, vocab := range formatHeaders {
		hits := 0
		for _, h := range headerRow {
			hLower := strings.ToLower(strings.TrimSpace(h))
			for _, v := range vocab {
				if strings.Contains(hLower, v) {
					hits++
					break
				}
			}
		}
		if hits >= 2 {
			hint.Format = format
			if hint.Confidence < 0.7 {
				hint.Confidence = 0.7
			}
			break
		}
	}

	return hint
}
