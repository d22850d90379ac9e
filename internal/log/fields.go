package log

// Canonical field names.
const (
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldGame      = "game"
	FieldSessionID = "session_id"
	FieldKey       = "key"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldRequestID = "request_id"
)
