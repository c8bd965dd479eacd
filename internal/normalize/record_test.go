package normalize

import (
	"testing"
	"time"

	"github.com/ignite/carrier-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cdrMappings() []domain.FieldMapping {
	return []domain.FieldMapping{
		{SourceColumn: "Calling Number", TargetField: domain.TargetCallerNumber, DataType: domain.TypePhoneNumber, Confidence: 0.9, Required: true},
		{SourceColumn: "Called Number", TargetField: domain.TargetCalledNumber, DataType: domain.TypePhoneNumber, Confidence: 0.9},
		{SourceColumn: "Call Date", TargetField: domain.TargetTimestamp, DataType: domain.TypeDateTime, Confidence: 0.85, Required: true},
		{SourceColumn: "Duration", TargetField: domain.TargetDuration, DataType: domain.TypeNumber, Confidence: 0.8},
		{SourceColumn: "Call Type", TargetField: domain.TargetEventType, DataType: domain.TypeText, Confidence: 0.5},
		{SourceColumn: "Message", TargetField: domain.TargetMessageContent, DataType: domain.TypeText, Confidence: 0.5},
	}
}

var cdrHeader = []string{"Calling Number", "Called Number", "Call Date", "Duration", "Call Type", "Message"}

func TestBuildOutboundCall(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "+15550100001")

	ev, errs := b.Build([]string{"5550100001", "5550100123", "2024-03-01 09:30:00", "45", "CALL_OUT", ""})
	require.NotNil(t, ev)
	assert.Empty(t, errs)

	assert.Equal(t, "+15550100001", ev.LineID)
	assert.Equal(t, "+15550100123", ev.Number)
	assert.Equal(t, "5550100123", ev.RawNumber)
	assert.Equal(t, domain.DirectionOutbound, ev.Direction)
	assert.Equal(t, domain.EventCall, ev.Type)
	require.NotNil(t, ev.DurationSeconds)
	assert.Equal(t, 45, *ev.DurationSeconds)
	assert.Nil(t, ev.Content)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "export.csv", ev.Source)
}

func TestBuildInboundCounterpart(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "+15550100001")

	// Line is the called party: counterpart is the caller, direction inbound.
	ev, errs := b.Build([]string{"5550100123", "5550100001", "2024-03-01 09:30:00", "10", "", ""})
	require.NotNil(t, ev)
	assert.Empty(t, errs)
	assert.Equal(t, "+15550100123", ev.Number)
	assert.Equal(t, domain.DirectionInbound, ev.Direction)
}

func TestBuildSMSDropsDuration(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "")

	ev, errs := b.Build([]string{"", "5550100123", "2024-03-01 09:30:00", "", "SMS_OUT", "hello there"})
	require.NotNil(t, ev)
	assert.Empty(t, errs)
	assert.Equal(t, domain.EventSMS, ev.Type)
	assert.Nil(t, ev.DurationSeconds)
	require.NotNil(t, ev.Content)
	assert.Equal(t, "hello there", *ev.Content)
}

func TestBuildRejectsMissingNumber(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "")

	ev, errs := b.Build([]string{"", "", "2024-03-01 09:30:00", "45", "", ""})
	assert.Nil(t, ev)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrMissingRequiredField, errs[0].Kind)
	assert.Equal(t, "number", errs[0].Field)
}

func TestBuildRejectsBadTimestamp(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "")

	ev, errs := b.Build([]string{"5550100123", "", "not-a-date", "45", "", ""})
	assert.Nil(t, ev)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrParsing, errs[0].Kind)
	assert.Equal(t, "timestamp", errs[0].Field)
}

func TestBuildKeepsEventOnOptionalFieldFailure(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "")

	ev, errs := b.Build([]string{"5550100123", "", "2024-03-01 09:30:00", "-5", "CALL_IN", ""})
	require.NotNil(t, ev)
	require.Len(t, errs, 1)
	assert.Equal(t, "duration", errs[0].Field)
	assert.Nil(t, ev.DurationSeconds)
	assert.Equal(t, domain.DirectionInbound, ev.Direction)
}

func TestBuildInfersTypeFromPayload(t *testing.T) {
	b := NewRecordBuilder(New("UTC"), cdrHeader, cdrMappings(), "export.csv", "")

	ev, _ := b.Build([]string{"5550100123", "", "2024-03-01 09:30:00", "", "", "short text"})
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventSMS, ev.Type)

	ev, _ = b.Build([]string{"5550100123", "", "2024-03-01 09:30:00", "30", "", ""})
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventCall, ev.Type)
}
