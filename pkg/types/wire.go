package types

import "time"

// Message type discriminators for the live websocket channels.
const (
	// Reporter channel, client -> server.
	MessageTypeLocationUpdate = "location-update"
	// Reporter channel, server -> client.
	MessageTypeLocationUpdated = "location-updated"
	MessageTypeError           = "error"

	// Watch channel, server -> client.
	MessageTypeSessionCreated = "session-created"
	MessageTypeSessionUpdated = "session-updated"
	MessageTypeSessionEnded   = "session-ended"
)

// Error kinds carried by ErrorMessage.
const (
	ErrorKindValidation      = "validation"
	ErrorKindSessionNotFound = "session_not_found"
	ErrorKindPersistence     = "persistence"
	ErrorKindInternal        = "internal"
)

// LocationUpdateMessage is the live-channel equivalent of a PingRequest.
type LocationUpdateMessage struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	ReporterID string    `json:"reporter_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}

// LocationAckMessage acknowledges an accepted location update.
type LocationAckMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// ErrorMessage reports a rejected live-channel request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionEventMessage is one watch-channel event. Session is present for
// created/updated, SessionID alone for ended.
type SessionEventMessage struct {
	Type      string            `json:"type"`
	Session   *EmergencySession `json:"session,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}
