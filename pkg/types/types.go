package types

import (
	"time"
)

// Session status values. Resolved and false alarm are terminal: once a
// session reaches either, no further mutation is accepted.
const (
	StatusActive     = "active"
	StatusResponding = "responding"
	StatusResolved   = "resolved"
	StatusFalseAlarm = "false_alarm"
)

// Location is a single position fix with the client-side capture time.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// EmergencySession is the authoritative record of one panic session.
// The ID is assigned by the coordinator and immutable for the session's
// lifetime. LastLocation advances only by client timestamp, never by
// arrival order.
type EmergencySession struct {
	ID              string     `json:"id"`
	ReporterID      string     `json:"reporter_id"`
	Status          string     `json:"status"`
	InitialLocation Location   `json:"initial_location"`
	LastLocation    Location   `json:"last_location"`
	CreatedAt       time.Time  `json:"created_at"`
	RespondedBy     *string    `json:"responded_by,omitempty"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// IsTerminal reports whether the session accepts no further transitions.
func (s *EmergencySession) IsTerminal() bool {
	return IsTerminalStatus(s.Status)
}

// Clone returns a deep copy so the coordinator can hand records to
// subscribers without sharing mutable state.
func (s *EmergencySession) Clone() *EmergencySession {
	c := *s
	if s.RespondedBy != nil {
		v := *s.RespondedBy
		c.RespondedBy = &v
	}
	if s.RespondedAt != nil {
		v := *s.RespondedAt
		c.RespondedAt = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		c.EndedAt = &v
	}
	return &c
}

// PingRequest is one location report from a reporter device. SessionID is
// empty on the first ping of a session; the coordinator assigns one.
type PingRequest struct {
	SessionID  string    `json:"session_id,omitempty"`
	ReporterID string    `json:"reporter_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}

// PingResponse acknowledges an accepted ping.
type PingResponse struct {
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// StatusUpdateRequest transitions a session to a new status.
type StatusUpdateRequest struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	RespondedBy string `json:"responded_by,omitempty"`
}

// StatusUpdateResponse acknowledges an applied status transition.
type StatusUpdateResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
