package interfaces

import "errors"

// Cross-package sentinels shared by the store, coordinator and transports.
var (
	// ErrSessionNotFound covers both unknown ids and terminal sessions
	// addressed by a ping: the caller should start a new session rather
	// than retry the same id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal rejects status transitions out of resolved or
	// false_alarm. Returned as an error rather than a silent no-op so
	// misuse stays visible.
	ErrSessionTerminal = errors.New("session is in a terminal status")
)
