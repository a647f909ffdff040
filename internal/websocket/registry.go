package websocket

import (
	"log"
	"sync"
)

// Registry tracks live connections: reporters keyed by reporter id (one
// live connection per device, newest wins) and viewers as an anonymous
// set. Pure connection bookkeeping, no business logic.
type Registry struct {
	mu        sync.RWMutex
	reporters map[string]*Connection
	viewers   map[*Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reporters: make(map[string]*Connection),
		viewers:   make(map[*Connection]struct{}),
	}
}

// RegisterReporter tracks a reporter connection. An existing connection
// for the same reporter id is replaced and closed asynchronously to
// avoid deadlocking against its own cleanup path.
func (r *Registry) RegisterReporter(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	reporterID := conn.GetClientID()
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.reporters[reporterID]; ok {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("websocket: failed to close replaced reporter connection: %v", err)
			}
		}()
	}
	r.reporters[reporterID] = conn
	return nil
}

// UnregisterReporter removes a reporter connection. Only the currently
// registered instance is removed, so a replaced connection cleaning up
// late cannot evict its successor.
func (r *Registry) UnregisterReporter(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reporterID := conn.GetClientID()
	if registered, ok := r.reporters[reporterID]; ok && registered == conn {
		delete(r.reporters, reporterID)
	}
}

// RegisterViewer tracks a viewer connection.
func (r *Registry) RegisterViewer(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[conn] = struct{}{}
	return nil
}

// UnregisterViewer removes a viewer connection. Idempotent.
func (r *Registry) UnregisterViewer(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.viewers, conn)
}

// GetReporterConnection returns the live connection for a reporter id.
func (r *Registry) GetReporterConnection(reporterID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.reporters[reporterID]
	return conn, ok
}

// GetStats returns connection counts for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"reporters": len(r.reporters),
		"viewers":   len(r.viewers),
	}
}
