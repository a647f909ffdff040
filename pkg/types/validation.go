package types

import (
	"regexp"
)

// Compiled once at package initialization; ping validation runs on every
// location report.
var reporterIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidStatus checks the status is one of the four allowed values.
func IsValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusResponding, StatusResolved, StatusFalseAlarm:
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether a status accepts no further transitions.
func IsTerminalStatus(status string) bool {
	return status == StatusResolved || status == StatusFalseAlarm
}

// IsValidReporterID checks reporter id format. Anonymous reporters still
// carry an opaque device token, so empty is never valid.
func IsValidReporterID(reporterID string) bool {
	if len(reporterID) < 1 || len(reporterID) > 64 {
		return false
	}
	return reporterIDRegex.MatchString(reporterID)
}

// IsValidCoordinate checks a latitude/longitude pair against WGS84 bounds.
func IsValidCoordinate(latitude, longitude float64) bool {
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// Validate checks a ping request before the coordinator touches any state.
func (p *PingRequest) Validate() error {
	if p.ReporterID == "" {
		return ErrMissingReporterID
	}
	if !IsValidReporterID(p.ReporterID) {
		return ErrInvalidReporterID
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if p.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Validate checks a status update request.
func (r *StatusUpdateRequest) Validate() error {
	if r.SessionID == "" {
		return ErrMissingSessionID
	}
	if !IsValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	return nil
}
