package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhone(t *testing.T) {
	n := New("UTC")

	tests := []struct {
		in   string
		want string
	}{
		{"(555) 010-0123", "+15550100123"},
		{"555.010.0123", "+15550100123"},
		{"1 555 010 0123", "+15550100123"},
		{"15550100123", "+15550100123"},
		{"+15550100123", "+15550100123"},
		{"+442071946000", "+442071946000"},
		{"442071946000", "+442071946000"},
		{"5550101", "5550101"}, // short code style, left bare
	}
	for _, tt := range tests {
		got, err := n.Phone(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPhoneIdempotent(t *testing.T) {
	n := New("UTC")
	inputs := []string{"(555) 010-0123", "+15550100123", "5550101", "442071946000"}
	for _, in := range inputs {
		once, err := n.Phone(in)
		require.NoError(t, err)
		twice, err := n.Phone(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, in)
	}
}

func TestPhoneRejectsEmpty(t *testing.T) {
	n := New("UTC")
	_, err := n.Phone("ext. only")
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	n := New("UTC")

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01T09:30:00Z", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2024-03-01 09:30:00", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"03/01/2024 09:30:00", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"1709285400", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := n.Timestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, got.Equal(tt.want), "Timestamp(%q) = %v, want %v", tt.in, got, tt.want)
	}
}

func TestTimestampUsesPipelineZoneForAmbiguousInput(t *testing.T) {
	n := New("America/Chicago")

	// No offset in the source string: the pipeline timezone applies.
	got, err := n.Timestamp("2024-03-01 09:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC), got)

	// Explicit offset in the source wins over the pipeline timezone.
	got, err = n.Timestamp("2024-03-01T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), got)
}

func TestTimestampRejectsGarbage(t *testing.T) {
	n := New("UTC")
	for _, in := range []string{"", "not a date", "13/45/9999 99:99"} {
		_, err := n.Timestamp(in)
		assert.Error(t, err, in)
	}
}

func TestDuration(t *testing.T) {
	n := New("UTC")

	tests := []struct {
		in   string
		want int
	}{
		{"45", 45},
		{"0", 0},
		{"45.0", 45},
		{"01:30", 90},
		{"1:02:03", 3723},
	}
	for _, tt := range tests {
		got, err := n.Duration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDurationRejects(t *testing.T) {
	n := New("UTC")
	for _, in := range []string{"", "-5", "abc", "1:2:3:4", "4.5"} {
		_, err := n.Duration(in)
		assert.Error(t, err, in)
	}
}

func TestDirection(t *testing.T) {
	n := New("UTC")

	for in, want := range map[string]string{
		"IN": "inbound", "A_OUT": "outbound", "incoming": "inbound",
		"SMS_OUT": "outbound", "MO": "outbound", "MT": "inbound",
	} {
		got, err := n.Direction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := n.Direction("sideways")
	assert.Error(t, err)
}

func TestEventType(t *testing.T) {
	n := New("UTC")

	for in, want := range map[string]string{
		"SMS_IN": "sms", "Text Message": "sms", "VOICE": "call", "A_CALL_OUT": "call",
	} {
		got, err := n.EventType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestScalar(t *testing.T) {
	n := New("UTC")

	res := n.Scalar("  Hello  ", "text", Options{TrimSpace: true, Lowercase: true})
	assert.True(t, res.OK)
	assert.Equal(t, "hello", res.Value)

	res = n.Scalar("abc", "number", Options{TrimSpace: true})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Err)

	res = n.Scalar("42.5", "number", Options{})
	assert.True(t, res.OK)
}
