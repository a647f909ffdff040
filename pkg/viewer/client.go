package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"beacon/pkg/types"
)

var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not joined")
)

// Conn is the subset of a websocket connection the viewer needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a watch connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handlers are optional callbacks fired on each session event, after
// the local view has been updated. They run on the read goroutine.
type Handlers struct {
	OnCreated func(session *types.EmergencySession)
	OnUpdated func(session *types.EmergencySession)
	OnEnded   func(sessionID string)
}

// Client runs on a monitoring device. While joined it maintains a local
// map of live sessions from the event stream: created inserts, updated
// replaces, ended removes. There is no replay; events before Join are
// never observed, so late joiners seed their view from the sessions
// query API first.
type Client struct {
	url  string
	dial Dialer

	mu       sync.RWMutex
	conn     Conn
	joined   bool
	sessions map[string]*types.EmergencySession
	handlers Handlers
	done     chan struct{}
}

// NewClient creates a viewer client for the given watch URL.
func NewClient(url string) *Client {
	// Before the first Join there is no subscription to wait for, so
	// done starts out closed and Done never hands back a nil channel.
	done := make(chan struct{})
	close(done)
	return &Client{
		url:      url,
		dial:     defaultDialer,
		sessions: make(map[string]*types.EmergencySession),
		done:     done,
	}
}

// NewClientWithDialer creates a viewer client with a custom dialer.
func NewClientWithDialer(url string, dial Dialer) *Client {
	c := NewClient(url)
	c.dial = dial
	return c
}

// Join subscribes to the session event stream and installs the
// handlers. Events arriving from this point on update the local view.
func (c *Client) Join(ctx context.Context, handlers Handlers) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("viewer: failed to join: %w", err)
	}

	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyJoined
	}
	c.conn = conn
	c.joined = true
	c.handlers = handlers
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

// Leave unsubscribes, releases the handlers and drops all session
// references so ended sessions can be collected.
func (c *Client) Leave() error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return ErrNotJoined
	}
	conn := c.conn
	c.conn = nil
	c.joined = false
	c.handlers = Handlers{}
	c.sessions = make(map[string]*types.EmergencySession)
	c.mu.Unlock()

	return conn.Close()
}

// Joined reports whether the client is subscribed.
func (c *Client) Joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// Session returns the last-known record for the id, if live.
func (c *Client) Session(sessionID string) (*types.EmergencySession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Sessions returns a snapshot of all live sessions in the local view.
func (c *Client) Sessions() []*types.EmergencySession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.EmergencySession, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// Done is closed when the subscription ends, by Leave or by the server
// dropping the connection. Before the first Join it is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Seed inserts records obtained from the sessions query API into the
// local view. Intended for late joiners, called after Join so no update
// window is left uncovered.
func (c *Client) Seed(sessions []*types.EmergencySession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range sessions {
		if s == nil || s.IsTerminal() {
			continue
		}
		// Live events already received win over the seeded snapshot.
		if _, ok := c.sessions[s.ID]; !ok {
			c.sessions[s.ID] = s.Clone()
		}
	}
}

func (c *Client) readLoop(conn Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.joined = false
				c.handlers = Handlers{}
			}
			c.mu.Unlock()
			_ = conn.Close()
			return
		}

		var event types.SessionEventMessage
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("viewer: dropping malformed event: %v", err)
			continue
		}
		c.apply(&event)
	}
}

// apply folds one event into the local view and fires its handler.
func (c *Client) apply(event *types.SessionEventMessage) {
	c.mu.Lock()
	handlers := c.handlers
	switch event.Type {
	case types.MessageTypeSessionCreated, types.MessageTypeSessionUpdated:
		if event.Session == nil {
			c.mu.Unlock()
			return
		}
		c.sessions[event.Session.ID] = event.Session.Clone()
	case types.MessageTypeSessionEnded:
		delete(c.sessions, event.SessionID)
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	switch event.Type {
	case types.MessageTypeSessionCreated:
		if handlers.OnCreated != nil {
			handlers.OnCreated(event.Session)
		}
	case types.MessageTypeSessionUpdated:
		if handlers.OnUpdated != nil {
			handlers.OnUpdated(event.Session)
		}
	case types.MessageTypeSessionEnded:
		if handlers.OnEnded != nil {
			handlers.OnEnded(event.SessionID)
		}
	}
}
