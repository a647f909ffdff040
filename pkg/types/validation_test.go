package types

import (
	"testing"
	"time"
)

func TestPingRequest_Validate(t *testing.T) {
	valid := PingRequest{
		ReporterID: "device-42",
		Latitude:   14.5995,
		Longitude:  120.9842,
		Timestamp:  time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid ping to pass validation, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(p *PingRequest)
		wantErr error
	}{
		{"missing reporter", func(p *PingRequest) { p.ReporterID = "" }, ErrMissingReporterID},
		{"malformed reporter", func(p *PingRequest) { p.ReporterID = "no spaces!" }, ErrInvalidReporterID},
		{"latitude too high", func(p *PingRequest) { p.Latitude = 90.0001 }, ErrInvalidLatitude},
		{"latitude too low", func(p *PingRequest) { p.Latitude = -91 }, ErrInvalidLatitude},
		{"longitude too high", func(p *PingRequest) { p.Longitude = 180.5 }, ErrInvalidLongitude},
		{"longitude too low", func(p *PingRequest) { p.Longitude = -181 }, ErrInvalidLongitude},
		{"zero timestamp", func(p *PingRequest) { p.Timestamp = time.Time{} }, ErrMissingTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); err != tt.wantErr {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPingRequest_ValidateBoundaryCoordinates(t *testing.T) {
	// Exact range boundaries are valid coordinates.
	for _, pair := range [][2]float64{{90, 180}, {-90, -180}, {0, 0}} {
		p := PingRequest{
			ReporterID: "r1",
			Latitude:   pair[0],
			Longitude:  pair[1],
			Timestamp:  time.Now(),
		}
		if err := p.Validate(); err != nil {
			t.Errorf("Expected boundary coordinate (%v, %v) to be valid, got %v", pair[0], pair[1], err)
		}
	}
}

func TestStatusUpdateRequest_Validate(t *testing.T) {
	for _, status := range []string{StatusActive, StatusResponding, StatusResolved, StatusFalseAlarm} {
		r := StatusUpdateRequest{SessionID: "s1", Status: status}
		if err := r.Validate(); err != nil {
			t.Errorf("Expected status %q to be valid, got %v", status, err)
		}
	}

	r := StatusUpdateRequest{SessionID: "s1", Status: "escalated"}
	if err := r.Validate(); err != ErrInvalidStatus {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}

	r = StatusUpdateRequest{Status: StatusResolved}
	if err := r.Validate(); err != ErrMissingSessionID {
		t.Errorf("Expected ErrMissingSessionID, got %v", err)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	if IsTerminalStatus(StatusActive) || IsTerminalStatus(StatusResponding) {
		t.Error("active and responding must not be terminal")
	}
	if !IsTerminalStatus(StatusResolved) || !IsTerminalStatus(StatusFalseAlarm) {
		t.Error("resolved and false_alarm must be terminal")
	}
}

func TestEmergencySession_Clone(t *testing.T) {
	responder := "unit-7"
	now := time.Now()
	s := &EmergencySession{
		ID:          "s1",
		ReporterID:  "r1",
		Status:      StatusResponding,
		RespondedBy: &responder,
		RespondedAt: &now,
	}

	c := s.Clone()
	*c.RespondedBy = "unit-9"
	c.Status = StatusResolved

	if *s.RespondedBy != "unit-7" {
		t.Error("Clone must not share RespondedBy with the original")
	}
	if s.Status != StatusResponding {
		t.Error("Clone must not share status with the original")
	}
}
