package validate

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent(i int) domain.Event {
	return domain.Event{
		ID:        fmt.Sprintf("ev-%d", i),
		Number:    "+15550100123",
		Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Direction: domain.DirectionOutbound,
		Type:      domain.EventCall,
	}
}

func TestRunAllValid(t *testing.T) {
	v := New(0, 0)
	events := make([]domain.Event, 50)
	for i := range events {
		events[i] = validEvent(i)
	}

	out := v.Run("job-1", events)
	assert.Len(t, out.Valid, 50)
	assert.Equal(t, 0, out.Invalid)
	assert.Empty(t, out.Errors)
	assert.Empty(t, out.Warnings)
	assert.False(t, out.Terminated)
	assert.Equal(t, 0.0, out.ErrorRate)
}

func TestRunRejectsSchemaViolations(t *testing.T) {
	v := New(0, 0)

	missing := validEvent(1)
	missing.Number = ""

	badDir := validEvent(2)
	badDir.Direction = "sideways"

	dur := 30
	smsWithDuration := validEvent(3)
	smsWithDuration.Type = domain.EventSMS
	smsWithDuration.DurationSeconds = &dur

	out := v.Run("job-1", []domain.Event{validEvent(0), missing, badDir, smsWithDuration})
	assert.Len(t, out.Valid, 1)
	assert.Equal(t, 3, out.Invalid)
	assert.Equal(t, 75.0, out.ErrorRate)

	kinds := map[domain.ErrorKind]bool{}
	for _, e := range out.Errors {
		kinds[e.Kind] = true
		assert.Equal(t, domain.SeverityFor(e.Kind), e.Severity)
	}
	assert.True(t, kinds[domain.ErrMissingRequiredField])
	assert.True(t, kinds[domain.ErrInvalidDataType])
	assert.True(t, kinds[domain.ErrConstraintViolation])
}

// 10,000 rows with a 5% malformed rate against a 100-error ceiling stops
// validation early with a warning naming the threshold.
func TestRunStopsAtErrorCeiling(t *testing.T) {
	v := New(1000, 100)

	events := make([]domain.Event, 10_000)
	for i := range events {
		events[i] = validEvent(i)
		if i%20 == 0 { // 5% malformed
			events[i].Number = ""
		}
	}

	out := v.Run("job-1", events)
	require.True(t, out.Terminated)
	assert.Len(t, out.Errors, 100)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "100")
	assert.True(t, strings.Contains(out.Warnings[0], "stopped early"))
	assert.Greater(t, out.Unchecked, 0)
	// Nothing is silently dropped: valid + invalid + unchecked covers input.
	assert.Equal(t, out.Total, len(out.Valid)+out.Invalid)
}

func TestRunEmptyInput(t *testing.T) {
	out := New(0, 0).Run("job-1", nil)
	assert.Empty(t, out.Valid)
	assert.Equal(t, 0, out.Total)
	assert.Equal(t, 0.0, out.ErrorRate)
	assert.False(t, out.Terminated)
}
