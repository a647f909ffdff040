package interfaces

import (
	"context"

	"beacon/pkg/types"
)

// SessionQuery filters ListSessions. Zero values mean "no filter".
type SessionQuery struct {
	Status     string
	ReporterID string
}

// SessionStore is the durable-storage contract the coordinator depends on.
// The store is an external collaborator: the coordinator only ever creates
// a record, updates it in place, or queries it. Removal and archival are
// store concerns and never happen through this interface.
type SessionStore interface {
	// CreateSession persists a brand-new session record. The session id
	// must not already exist.
	CreateSession(ctx context.Context, session *types.EmergencySession) error

	// UpdateSession rewrites the mutable fields of an existing record.
	// Returns ErrSessionNotFound if the id is unknown.
	UpdateSession(ctx context.Context, session *types.EmergencySession) error

	// GetSession retrieves one record by id. Returns ErrSessionNotFound
	// if the id is unknown.
	GetSession(ctx context.Context, sessionID string) (*types.EmergencySession, error)

	// ListSessions returns records matching the query, newest first.
	ListSessions(ctx context.Context, query SessionQuery) ([]*types.EmergencySession, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases the store. Pending writes complete first.
	Close() error
}
