package domain

import "time"

// EventType enumerates the kinds of communication events a carrier export
// can contain.
type EventType string

const (
	EventCall EventType = "call"
	EventSMS  EventType = "sms"
)

// Direction indicates which side of the line originated the event.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallStatus is the carrier-reported outcome of a call.
type CallStatus string

const (
	CallAnswered  CallStatus = "answered"
	CallMissed    CallStatus = "missed"
	CallVoicemail CallStatus = "voicemail"
	CallFailed    CallStatus = "failed"
)

// Event is one canonical communication record produced by the pipeline.
// Number and Timestamp are always present on an accepted event. Duration is
// meaningful only for calls, Content only for SMS; both are nil otherwise.
type Event struct {
	ID         string    `json:"id" db:"id"`
	LineID     string    `json:"line_id" db:"line_id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	RawNumber  string    `json:"raw_number" db:"raw_number"`
	Number     string    `json:"number" db:"number"` // normalized E.164-style
	Direction  Direction `json:"direction" db:"direction"`
	Type       EventType `json:"type" db:"type"`

	DurationSeconds *int        `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Content         *string     `json:"content,omitempty" db:"content"`
	ContactID       *string     `json:"contact_id,omitempty" db:"contact_id"`
	Status          *CallStatus `json:"status,omitempty" db:"status"`

	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsCall reports whether the event is a call record.
func (e *Event) IsCall() bool { return e.Type == EventCall }

// IsSMS reports whether the event is an SMS record.
func (e *Event) IsSMS() bool { return e.Type == EventSMS }

// Contact is a derived roster entry, keyed by normalized phone number within
// one owner's namespace. Created on first observation of the number and
// updated on every later event; never deleted by the pipeline.
type Contact struct {
	ID          string    `json:"id" db:"id"`
	Number      string    `json:"number" db:"number"`
	DisplayName string    `json:"display_name,omitempty" db:"display_name"`
	Company     string    `json:"company,omitempty" db:"company"`
	Tags        []string  `json:"tags,omitempty" db:"tags"`
	FirstSeen   time.Time `json:"first_seen" db:"first_seen"`
	LastSeen    time.Time `json:"last_seen" db:"last_seen"`
	CallCount   int       `json:"call_count" db:"call_count"`
	SMSCount    int       `json:"sms_count" db:"sms_count"`
}
