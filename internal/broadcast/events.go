package broadcast

import (
	"beacon/pkg/types"
)

// Event is the closed set of notifications the coordinator publishes to
// the watch room. Viewers switch on the concrete type; isEvent keeps the
// set closed so a new variant forces every switch to be revisited.
type Event interface {
	isEvent()
	// SessionID identifies the session the event belongs to. Per-session
	// emission order is preserved for any single subscriber.
	SessionID() string
}

// SessionCreated announces a brand-new session. Record is a private copy.
type SessionCreated struct {
	Record *types.EmergencySession
}

// SessionUpdated announces a location or non-terminal status change.
type SessionUpdated struct {
	Record *types.EmergencySession
}

// SessionEnded announces a transition to a terminal status. Only the id
// is carried: viewers drop the record rather than marking it.
type SessionEnded struct {
	ID string
}

func (SessionCreated) isEvent() {}
func (SessionUpdated) isEvent() {}
func (SessionEnded) isEvent()   {}

func (e SessionCreated) SessionID() string { return e.Record.ID }
func (e SessionUpdated) SessionID() string { return e.Record.ID }
func (e SessionEnded) SessionID() string   { return e.ID }
