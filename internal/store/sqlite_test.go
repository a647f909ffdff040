package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(&Config{
		Path:           filepath.Join(t.TempDir(), "beacon_test.db"),
		MaxConnections: 4,
		WriteTimeout:   10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create store manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testSession(id string) *types.EmergencySession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	loc := types.Location{Latitude: 14.5995, Longitude: 120.9842, Timestamp: now}
	return &types.EmergencySession{
		ID:              id,
		ReporterID:      "device-1",
		Status:          types.StatusActive,
		InitialLocation: loc,
		LastLocation:    loc,
		CreatedAt:       now,
	}
}

func TestManager_CreateAndGetSession(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	session := testSession("s1")
	if err := m.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := m.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ReporterID != "device-1" || got.Status != types.StatusActive {
		t.Errorf("Unexpected session: %+v", got)
	}
	if got.LastLocation.Latitude != 14.5995 || got.LastLocation.Longitude != 120.9842 {
		t.Errorf("Unexpected last location: %+v", got.LastLocation)
	}
	if got.RespondedBy != nil || got.EndedAt != nil {
		t.Error("Nullable fields should be nil for a fresh session")
	}
}

func TestManager_GetSessionNotFound(t *testing.T) {
	m := testManager(t)
	if _, err := m.GetSession(context.Background(), "missing"); err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_UpdateSessionInPlace(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	session := testSession("s1")
	if err := m.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	session.LastLocation = types.Location{
		Latitude:  14.5996,
		Longitude: 120.9843,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	responder := "unit-7"
	respondedAt := time.Now().UTC().Truncate(time.Millisecond)
	session.Status = types.StatusResponding
	session.RespondedBy = &responder
	session.RespondedAt = &respondedAt

	if err := m.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := m.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != types.StatusResponding {
		t.Errorf("Expected responding, got %s", got.Status)
	}
	if got.RespondedBy == nil || *got.RespondedBy != "unit-7" {
		t.Errorf("Expected responded_by unit-7, got %v", got.RespondedBy)
	}
	if got.LastLocation.Latitude != 14.5996 {
		t.Errorf("Expected updated latitude, got %v", got.LastLocation.Latitude)
	}

	// Update never inserts: still exactly one row for this id.
	all, err := m.ListSessions(ctx, interfaces.SessionQuery{})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected exactly 1 persisted record, got %d", len(all))
	}
}

func TestManager_UpdateUnknownSession(t *testing.T) {
	m := testManager(t)
	if err := m.UpdateSession(context.Background(), testSession("ghost")); err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_ListSessionsFiltered(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	active := testSession("s1")
	resolved := testSession("s2")
	resolved.ReporterID = "device-2"
	if err := m.CreateSession(ctx, active); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := m.CreateSession(ctx, resolved); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	ended := time.Now().UTC()
	resolved.Status = types.StatusResolved
	resolved.EndedAt = &ended
	if err := m.UpdateSession(ctx, resolved); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	activeOnly, err := m.ListSessions(ctx, interfaces.SessionQuery{Status: types.StatusActive})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ID != "s1" {
		t.Errorf("Expected only s1 active, got %+v", activeOnly)
	}

	byReporter, err := m.ListSessions(ctx, interfaces.SessionQuery{ReporterID: "device-2"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(byReporter) != 1 || byReporter[0].ID != "s2" {
		t.Errorf("Expected only s2 for device-2, got %+v", byReporter)
	}
}

func TestManager_CloseRejectsFurtherWrites(t *testing.T) {
	m := testManager(t)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.CreateSession(context.Background(), testSession("s1")); err != ErrStoreClosed {
		t.Errorf("Expected ErrStoreClosed, got %v", err)
	}
	// Double close is a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("Expected nil on double close, got %v", err)
	}
}

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.SessionStore = testManager(t)
}
