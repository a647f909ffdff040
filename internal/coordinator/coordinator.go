package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"beacon/internal/broadcast"
	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

// Coordinator owns the authoritative in-flight state of every emergency
// session. It validates requests, serializes mutations per session id,
// persists through the SessionStore and broadcasts accepted changes.
//
// Session records in the cache are treated as immutable after publish:
// a mutation builds a clone, persists it, then swaps the cache pointer.
// Readers clone whatever pointer they see, so no lock is held across
// store calls or event delivery.
type Coordinator struct {
	store   interfaces.SessionStore
	channel *broadcast.Channel

	active map[string]*types.EmergencySession // non-terminal sessions
	locks  map[string]*sync.Mutex             // per-session mutation ownership
	mu     sync.RWMutex

	opTimeout time.Duration
}

// NewCoordinator creates a coordinator. opTimeout bounds every store call;
// zero means 10 seconds.
func NewCoordinator(store interfaces.SessionStore, channel *broadcast.Channel, opTimeout time.Duration) *Coordinator {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Coordinator{
		store:     store,
		channel:   channel,
		active:    make(map[string]*types.EmergencySession),
		locks:     make(map[string]*sync.Mutex),
		opTimeout: opTimeout,
	}
}

// LoadActiveSessions warms the cache from the store on startup so live
// sessions survive a coordinator restart.
func (c *Coordinator) LoadActiveSessions(ctx context.Context) error {
	for _, status := range []string{types.StatusActive, types.StatusResponding} {
		sessions, err := c.store.ListSessions(ctx, interfaces.SessionQuery{Status: status})
		if err != nil {
			return fmt.Errorf("failed to load %s sessions: %w", status, err)
		}
		c.mu.Lock()
		for _, session := range sessions {
			c.active[session.ID] = session
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	count := len(c.active)
	c.mu.RUnlock()
	log.Printf("coordinator: loaded %d live sessions", count)
	return nil
}

// SubmitPing processes one location report. A ping without a session id
// opens a new session; a ping with a known non-terminal id advances
// last_location in place, by client timestamp. Pings never create a
// second record for an existing session.
func (c *Coordinator) SubmitPing(ctx context.Context, req *types.PingRequest) (*types.PingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.SessionID == "" {
		return c.createSession(ctx, req)
	}
	return c.updateLocation(ctx, req)
}

func (c *Coordinator) createSession(ctx context.Context, req *types.PingRequest) (*types.PingResponse, error) {
	loc := types.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: req.Timestamp,
	}
	session := &types.EmergencySession{
		ID:              uuid.New().String(),
		ReporterID:      req.ReporterID,
		Status:          types.StatusActive,
		InitialLocation: loc,
		LastLocation:    loc,
		CreatedAt:       time.Now().UTC(),
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.CreateSession(opCtx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.active[session.ID] = session
	c.mu.Unlock()

	log.Printf("coordinator: session created id=%s reporter=%s", session.ID, session.ReporterID)
	c.publish(broadcast.SessionCreated{Record: session.Clone()})

	return &types.PingResponse{
		SessionID:  session.ID,
		Status:     session.Status,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (c *Coordinator) updateLocation(ctx context.Context, req *types.PingRequest) (*types.PingResponse, error) {
	lock := c.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.lookupLive(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	// Last-write-wins by the ping's embedded client timestamp: a delayed
	// but older ping is acknowledged and discarded so it cannot regress
	// last_location past a newer fix that arrived first.
	if !req.Timestamp.After(session.LastLocation.Timestamp) {
		return &types.PingResponse{
			SessionID:  session.ID,
			Status:     session.Status,
			ReceivedAt: time.Now().UTC(),
		}, nil
	}

	updated := session.Clone()
	updated.LastLocation = types.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: req.Timestamp,
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.UpdateSession(opCtx, updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.active[updated.ID] = updated
	c.mu.Unlock()

	c.publish(broadcast.SessionUpdated{Record: updated.Clone()})

	return &types.PingResponse{
		SessionID:  updated.ID,
		Status:     updated.Status,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// UpdateStatus transitions a session. Transitions out of a terminal
// status are errors, never silent no-ops.
func (c *Coordinator) UpdateStatus(ctx context.Context, req *types.StatusUpdateRequest) (*types.StatusUpdateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lock := c.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.getSessionLocked(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, interfaces.ErrSessionTerminal
	}

	now := time.Now().UTC()
	updated := session.Clone()
	updated.Status = req.Status
	if req.Status == types.StatusResponding {
		if req.RespondedBy != "" {
			responder := req.RespondedBy
			updated.RespondedBy = &responder
		}
		respondedAt := now
		updated.RespondedAt = &respondedAt
	}
	if types.IsTerminalStatus(req.Status) {
		endedAt := now
		updated.EndedAt = &endedAt
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.UpdateSession(opCtx, updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	if updated.IsTerminal() {
		delete(c.active, updated.ID)
		delete(c.locks, updated.ID)
	} else {
		c.active[updated.ID] = updated
	}
	c.mu.Unlock()

	log.Printf("coordinator: session %s status %s -> %s", updated.ID, session.Status, updated.Status)
	if updated.IsTerminal() {
		c.publish(broadcast.SessionEnded{ID: updated.ID})
	} else {
		c.publish(broadcast.SessionUpdated{Record: updated.Clone()})
	}

	return &types.StatusUpdateResponse{
		SessionID: updated.ID,
		Status:    updated.Status,
		UpdatedAt: now,
	}, nil
}

// GetSession returns a copy of one session, checking the cache first.
func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (*types.EmergencySession, error) {
	c.mu.RLock()
	session, ok := c.active[sessionID]
	c.mu.RUnlock()
	if ok {
		return session.Clone(), nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.GetSession(opCtx, sessionID)
}

// ListLiveSessions returns copies of all non-terminal sessions.
func (c *Coordinator) ListLiveSessions() []*types.EmergencySession {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sessions := make([]*types.EmergencySession, 0, len(c.active))
	for _, session := range c.active {
		sessions = append(sessions, session.Clone())
	}
	return sessions
}

// GetStats returns coordinator statistics for the health endpoint.
func (c *Coordinator) GetStats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"live_sessions": len(c.active),
	}
}

// lookupLive resolves a session id for a location mutation. Unknown and
// terminal ids are both ErrSessionNotFound: the caller should start a
// fresh session rather than retry the id.
func (c *Coordinator) lookupLive(ctx context.Context, sessionID string) (*types.EmergencySession, error) {
	session, err := c.getSessionLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

// getSessionLocked fetches cache-first, falling back to the store for
// sessions not seen since startup. Caller holds the per-session lock.
func (c *Coordinator) getSessionLocked(ctx context.Context, sessionID string) (*types.EmergencySession, error) {
	c.mu.RLock()
	session, ok := c.active[sessionID]
	c.mu.RUnlock()
	if ok {
		return session, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	session, err := c.store.GetSession(opCtx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsTerminal() {
		c.mu.Lock()
		c.active[session.ID] = session
		c.mu.Unlock()
	}
	return session, nil
}

// sessionLock returns the mutation lock for a session id, creating it on
// first use. Mutations for different ids proceed fully in parallel.
func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// publish emits an event. Broadcast is best-effort after a successful
// persist: a full queue degrades viewers to eventual consistency, it
// never fails the mutation.
func (c *Coordinator) publish(event broadcast.Event) {
	if c.channel == nil {
		return
	}
	if err := c.channel.Publish(event); err != nil {
		log.Printf("coordinator: broadcast dropped for session %s: %v", event.SessionID(), err)
	}
}
