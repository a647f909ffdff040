package types

import "errors"

// Validation errors shared across the HTTP API, the live reporter channel
// and the coordinator. Validation failures are never retried and cause no
// state change.
var (
	ErrInvalidLatitude   = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude  = errors.New("longitude must be between -180 and 180")
	ErrMissingReporterID = errors.New("reporter_id is required")
	ErrInvalidReporterID = errors.New("reporter_id must be 1-64 characters, alphanumeric + underscore/hyphen")
	ErrMissingTimestamp  = errors.New("timestamp is required")
	ErrInvalidStatus     = errors.New("status must be one of: active, responding, resolved, false_alarm")
	ErrMissingSessionID  = errors.New("session_id is required")
)
