package domain

// DataType tags the detected type of a source column.
type DataType string

const (
	TypePhoneNumber DataType = "phone_number"
	TypeDateTime    DataType = "datetime"
	TypeEmail       DataType = "email"
	TypeNumber      DataType = "number"
	TypeBoolean     DataType = "boolean"
	TypeText        DataType = "text"
)

// Canonical target fields a source column can map to.
const (
	TargetCallerNumber   = "caller_number"
	TargetCalledNumber   = "called_number"
	TargetTimestamp      = "timestamp"
	TargetEndTimestamp   = "end_timestamp"
	TargetDuration       = "duration"
	TargetDirection      = "direction"
	TargetEventType      = "event_type"
	TargetMessageContent = "message_content"
	TargetLineID         = "line_id"
	TargetContactName    = "contact_name"
	TargetStatus         = "status"
)

// FieldMapping binds one source column to a canonical target field.
// Confidence is always in [0,1].
type FieldMapping struct {
	SourceColumn string   `json:"source_column"`
	TargetField  string   `json:"target_field"`
	DataType     DataType `json:"data_type"`
	Confidence   float64  `json:"confidence"`
	Required     bool     `json:"required"`
}

// FormatHint is the opaque classification triple supplied by the external
// carrier/format classification service. The pipeline never computes it.
type FormatHint struct {
	Carrier    string  `json:"carrier"`
	Format     string  `json:"format"`
	Confidence float64 `json:"confidence"`
}

// ConflictResolution selects how duplicate pairs are resolved downstream.
type ConflictResolution string

const (
	ResolveKeepFirst ConflictResolution = "keep_first"
	ResolveKeepLast  ConflictResolution = "keep_last"
	ResolveMerge     ConflictResolution = "merge"
	ResolveManual    ConflictResolution = "manual"
)
