package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callEvent(number string, ts time.Time, duration int) domain.Event {
	return domain.Event{
		Number:          number,
		LineID:          "+15550100001",
		Timestamp:       ts,
		Direction:       domain.DirectionOutbound,
		Type:            domain.EventCall,
		DurationSeconds: &duration,
	}
}

func smsEvent(number string, ts time.Time, content string) domain.Event {
	return domain.Event{
		Number:    number,
		LineID:    "+15550100001",
		Timestamp: ts,
		Direction: domain.DirectionOutbound,
		Type:      domain.EventSMS,
		Content:   &content,
	}
}

// Two calls with the same number, half a second apart, identical duration
// should score as a near-perfect exact duplicate.
func TestCompareExactCallPair(t *testing.T) {
	e := New(Options{})
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	a := callEvent("+15550100123", ts, 45)
	b := callEvent("+15550100123", ts.Add(500*time.Millisecond), 45)

	r := e.Compare(&a, &b)
	assert.InDelta(t, 1.0, r.Similarity, 0.01)
	assert.Equal(t, domain.ConflictExact, r.Conflict)
	assert.Greater(t, r.Confidence, 0.9)
	assert.Contains(t, r.MatchedFields, "number")
	assert.Contains(t, r.MatchedFields, "duration")
}

// Two sms events at the same instant whose content differs only by a
// trailing punctuation mark stay above 0.9 on the content signal and
// classify as exact or time_variance overall.
func TestCompareSMSTrailingPunctuation(t *testing.T) {
	e := New(Options{})
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	a := smsEvent("+15550100123", ts, "see you tomorrow")
	b := smsEvent("+15550100123", ts, "see you tomorrow!")

	assert.Greater(t, compareContent("see you tomorrow", "see you tomorrow!"), 0.9)

	r := e.Compare(&a, &b)
	assert.Contains(t, []domain.ConflictType{domain.ConflictExact, domain.ConflictTimeVariance}, r.Conflict)
	assert.Greater(t, r.Similarity, 0.9)
}

func TestCompareCoreGateRejects(t *testing.T) {
	e := New(Options{})
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	a := callEvent("+15550100123", ts, 45)
	b := smsEvent("+15550100123", ts, "hi")
	b.LineID = "+15550109999"
	b.Direction = domain.DirectionInbound

	// Line, direction and type all differ, so the pair is rejected before
	// any other signal runs.
	r := e.Compare(&a, &b)
	assert.Equal(t, 0.0, r.Similarity)
	assert.Empty(t, r.MatchedFields)
}

func TestComparePhoneNumbersSelf(t *testing.T) {
	for _, n := range []string{"+15550100123", "5550100123", "+442071838750"} {
		assert.Equal(t, 1.0, comparePhoneNumbers(n, n), n)
	}
}

// An area-code-dropped variant overlaps partially: strictly between 0 and 1.
func TestComparePhoneNumbersPartialOverlap(t *testing.T) {
	score := comparePhoneNumbers("+15550101", "5550101")
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestComparePhoneNumbersSuffixDigits(t *testing.T) {
	// No containment: only the trailing run of digits lines up.
	score := comparePhoneNumbers("+15550100123", "+16660100123")
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)

	assert.Equal(t, -1.0, comparePhoneNumbers("", "+15550100123"))
}

func TestCompareTimestampsMonotone(t *testing.T) {
	e := New(Options{TimestampTolerance: time.Minute})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	prev := 2.0
	for _, diff := range []time.Duration{
		0, time.Second, 30 * time.Second, time.Minute,
		2 * time.Minute, 5 * time.Minute, time.Hour,
	} {
		score, within := e.compareTimestamps(base, base.Add(diff))
		assert.LessOrEqual(t, score, prev, "diff %v", diff)
		assert.Equal(t, diff <= time.Minute, within, "diff %v", diff)
		prev = score
	}
}

func TestCompareContentSymmetric(t *testing.T) {
	cases := [][2]string{
		{"hello there", "hello their"},
		{"", "something"},
		{"Same TEXT ", "same text"},
	}
	for _, c := range cases {
		assert.Equal(t, compareContent(c[0], c[1]), compareContent(c[1], c[0]))
	}
	assert.Equal(t, 1.0, compareContent("Same TEXT ", "same text"))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("", ""))
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("abc", ""))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("kitten", "mitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestDetectDuplicatesThreshold(t *testing.T) {
	e := New(Options{Workers: 2})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := make([]domain.Event, 0, 40)
	for i := 0; i < 20; i++ {
		// Spread numbers and times so most pairs fall under the threshold.
		num := fmt.Sprintf("+1555010%04d", i%7)
		events = append(events, callEvent(num, base.Add(time.Duration(i)*7*time.Minute), 20+i))
	}
	// One planted near-duplicate pair.
	events = append(events,
		callEvent("+15550109999", base, 30),
		callEvent("+15550109999", base.Add(2*time.Second), 30),
	)

	pairs := e.DetectDuplicates(events)
	require.NotEmpty(t, pairs)
	for _, p := range pairs {
		assert.Greater(t, p.Result.Similarity, 0.7)
		assert.Less(t, p.DuplicateIndex, len(events))
		assert.Less(t, p.PrimaryIndex, p.DuplicateIndex)
	}
}

// High-confidence matches stop acting as primary subjects: three identical
// events report two pairs anchored at the first, not three.
func TestDetectDuplicatesMarksProcessed(t *testing.T) {
	e := New(Options{Workers: 1})
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.Event{
		callEvent("+15550100123", ts, 45),
		callEvent("+15550100123", ts, 45),
		callEvent("+15550100123", ts, 45),
	}

	pairs := e.DetectDuplicates(events)
	require.Len(t, pairs, 2)
	assert.Equal(t, 0, pairs[0].PrimaryIndex)
	assert.Equal(t, 0, pairs[1].PrimaryIndex)
}

// Prefix variants of the same subscriber number land in the same block, so
// country-code drift cannot hide a duplicate from the scan.
func TestDetectDuplicatesBlocksBySuffix(t *testing.T) {
	e := New(Options{Workers: 1})
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.Event{
		callEvent("+15550100123", ts, 45),
		callEvent("5550100123", ts.Add(time.Second), 45),
	}

	pairs := e.DetectDuplicates(events)
	require.Len(t, pairs, 1)
	assert.Equal(t, 0, pairs[0].PrimaryIndex)
	assert.Equal(t, 1, pairs[0].DuplicateIndex)
}

func TestDetectDuplicatesSortedDescending(t *testing.T) {
	e := New(Options{Workers: 4})
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []domain.Event{
		callEvent("+15550100123", ts, 45),
		callEvent("+15550100123", ts.Add(500*time.Millisecond), 45),
		callEvent("+15550100456", ts, 45),
		callEvent("+15550100456", ts.Add(45*time.Second), 60),
	}

	pairs := e.DetectDuplicates(events)
	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, pairs[i-1].Result.Similarity, pairs[i].Result.Similarity)
	}
}

func TestDetectDuplicatesSmallInput(t *testing.T) {
	e := New(Options{})
	assert.Nil(t, e.DetectDuplicates(nil))
	assert.Nil(t, e.DetectDuplicates([]domain.Event{callEvent("+15550100123", time.Now(), 1)}))
}
