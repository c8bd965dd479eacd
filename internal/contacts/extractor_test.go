package contacts

import (
	"testing"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(number string, ts time.Time, typ domain.EventType) domain.Event {
	return domain.Event{
		Number:    number,
		Timestamp: ts,
		Direction: domain.DirectionOutbound,
		Type:      typ,
	}
}

func TestObserveBuildsRoster(t *testing.T) {
	x := New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.Event{
		event("+15550100123", base, domain.EventCall),
		event("+15550100456", base.Add(time.Minute), domain.EventSMS),
		event("+15550100123", base.Add(2*time.Minute), domain.EventSMS),
		event("+15550100123", base.Add(3*time.Minute), domain.EventCall),
	}
	x.Observe(events)

	require.Equal(t, 2, x.Len())
	roster := x.Roster()
	require.Len(t, roster, 2)

	first := roster[0]
	assert.Equal(t, "+15550100123", first.Number)
	assert.Equal(t, 2, first.CallCount)
	assert.Equal(t, 1, first.SMSCount)
	assert.Equal(t, base, first.FirstSeen)
	assert.Equal(t, base.Add(3*time.Minute), first.LastSeen)
	assert.NotEmpty(t, first.ID)

	second := roster[1]
	assert.Equal(t, "+15550100456", second.Number)
	assert.Equal(t, 0, second.CallCount)
	assert.Equal(t, 1, second.SMSCount)
}

func TestObserveEqualTimestampDoesNotAdvanceLastSeen(t *testing.T) {
	x := New()
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	x.Observe([]domain.Event{
		event("+15550100123", ts, domain.EventCall),
		event("+15550100123", ts, domain.EventCall),
	})

	c := x.Roster()[0]
	assert.Equal(t, ts, c.FirstSeen)
	assert.Equal(t, ts, c.LastSeen)
	assert.Equal(t, 2, c.CallCount)
}

func TestObserveOutOfOrderTimestamps(t *testing.T) {
	x := New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	x.Observe([]domain.Event{
		event("+15550100123", base.Add(time.Hour), domain.EventCall),
		event("+15550100123", base, domain.EventCall),
	})

	c := x.Roster()[0]
	assert.Equal(t, base, c.FirstSeen)
	assert.Equal(t, base.Add(time.Hour), c.LastSeen)
}

func TestObserveBackLinksContactID(t *testing.T) {
	x := New()
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.Event{
		event("+15550100123", ts, domain.EventCall),
		event("+15550100123", ts.Add(time.Minute), domain.EventSMS),
	}
	x.Observe(events)

	require.NotNil(t, events[0].ContactID)
	require.NotNil(t, events[1].ContactID)
	assert.Equal(t, *events[0].ContactID, *events[1].ContactID)
	assert.Equal(t, x.Roster()[0].ID, *events[0].ContactID)
}

func TestObserveSkipsEventsWithoutNumber(t *testing.T) {
	x := New()
	x.Observe([]domain.Event{{Timestamp: time.Now(), Type: domain.EventCall}})
	assert.Equal(t, 0, x.Len())
}

func TestSetName(t *testing.T) {
	x := New()
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	x.Observe([]domain.Event{event("+15550100123", ts, domain.EventCall)})

	x.SetName("+15550100123", "  JANE DOE ")
	assert.Equal(t, "Jane Doe", x.Roster()[0].DisplayName)

	// First name wins; later sightings don't overwrite.
	x.SetName("+15550100123", "someone else")
	assert.Equal(t, "Jane Doe", x.Roster()[0].DisplayName)

	// Unknown numbers and blank names are no-ops.
	x.SetName("+15550109999", "Ghost")
	x.SetName("+15550100123", "   ")
	assert.Equal(t, 1, x.Len())
}

func TestRosterByActivity(t *testing.T) {
	x := New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	x.Observe([]domain.Event{
		event("+15550100111", base, domain.EventCall),
		event("+15550100222", base, domain.EventCall),
		event("+15550100222", base.Add(time.Minute), domain.EventSMS),
		event("+15550100222", base.Add(2*time.Minute), domain.EventCall),
		event("+15550100333", base, domain.EventSMS),
		event("+15550100333", base.Add(time.Minute), domain.EventSMS),
	})

	byActivity := x.RosterByActivity()
	require.Len(t, byActivity, 3)
	assert.Equal(t, "+15550100222", byActivity[0].Number)
	assert.Equal(t, "+15550100333", byActivity[1].Number)
	assert.Equal(t, "+15550100111", byActivity[2].Number)
}
