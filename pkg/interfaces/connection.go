package interfaces

// Connection is a live client connection as seen by the coordinator side.
// Implementations must make WriteJSON safe for concurrent use (the server
// wrapper does this with a single writer goroutine).
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe).
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources. Idempotent.
	Close() error

	// GetClientID returns the identifier the connection registered under:
	// the reporter id for reporter channels, an opaque id for viewers.
	GetClientID() string

	// GetRole returns "reporter" or "viewer".
	GetRole() string
}
