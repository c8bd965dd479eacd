// Package contacts derives a deduplicated contact roster from validated
// events. Contacts are keyed by normalized phone number; the pipeline
// creates them on first sight and only ever advances counters and
// last-seen, never deleting.
package contacts

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/carrier-ingest/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Extractor accumulates the roster over one or more batches of events.
type Extractor struct {
	byNumber map[string]*domain.Contact
	order    []string // first-seen insertion order of numbers
	titler   cases.Caser
}

// New creates an empty extractor.
func New() *Extractor {
	return &Extractor{
		byNumber: make(map[string]*domain.Contact),
		titler:   cases.Title(language.English),
	}
}

// Observe folds one batch of events into the roster and back-links each
// event to its contact id. Events without a normalized number are skipped;
// the validator has already rejected them from the canonical stream.
func (x *Extractor) Observe(events []domain.Event) {
	for i := range events {
		ev := &events[i]
		if ev.Number == "" {
			continue
		}

		c, ok := x.byNumber[ev.Number]
		if !ok {
			c = &domain.Contact{
				ID:        uuid.New().String(),
				Number:    ev.Number,
				FirstSeen: ev.Timestamp,
				LastSeen:  ev.Timestamp,
			}
			x.byNumber[ev.Number] = c
			x.order = append(x.order, ev.Number)
		} else {
			if ev.Timestamp.Before(c.FirstSeen) {
				c.FirstSeen = ev.Timestamp
			}
			// Strictly-later only: equal timestamps do not advance last-seen.
			if ev.Timestamp.After(c.LastSeen) {
				c.LastSeen = ev.Timestamp
			}
		}

		switch ev.Type {
		case domain.EventCall:
			c.CallCount++
		case domain.EventSMS:
			c.SMSCount++
		}

		if ev.ContactID == nil {
			id := c.ID
			ev.ContactID = &id
		}
	}
}

// SetName records a display name for a number if one isn't known yet.
// Names from source columns are title-cased for the roster.
func (x *Extractor) SetName(number, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if c, ok := x.byNumber[number]; ok && c.DisplayName == "" {
		c.DisplayName = x.titler.String(strings.ToLower(name))
	}
}

// Roster returns the contacts in first-seen order.
func (x *Extractor) Roster() []domain.Contact {
	out := make([]domain.Contact, 0, len(x.order))
	for _, num := range x.order {
		out = append(out, *x.byNumber[num])
	}
	return out
}

// RosterByActivity returns the contacts sorted by total interaction count,
// descending, ties broken by number for determinism.
func (x *Extractor) RosterByActivity() []domain.Contact {
	out := x.Roster()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CallCount+out[i].SMSCount, out[j].CallCount+out[j].SMSCount
		if a != b {
			return a > b
		}
		return out[i].Number < out[j].Number
	})
	return out
}

// Len reports the roster size.
func (x *Extractor) Len() int { return len(x.byNumber) }
