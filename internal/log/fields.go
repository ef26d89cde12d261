package log

// Canonical field names for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"

	FieldRecordingID = "recording_id"
	FieldProgram     = "program"
	FieldInstance    = "instance"
	FieldPrompt      = "prompt"
	FieldStatus      = "status"
	FieldOldState    = "old_state"
	FieldNewState    = "new_state"
	FieldRemoteRef   = "remote_ref"
	FieldBytes       = "bytes"
	FieldDevice      = "device"
	FieldPath        = "path"
)
