package reporter

import "errors"

var (
	ErrNotConnected        = errors.New("not connected")
	ErrAlreadyArmed        = errors.New("already armed")
	ErrNeedsReconnect      = errors.New("automatic retries exhausted, manual reconnect required")
	ErrLocationUnavailable = errors.New("no location fix available")
	ErrClientClosed        = errors.New("client is closed")
)
