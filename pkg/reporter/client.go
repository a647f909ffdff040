package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"beacon/pkg/types"
)

// ConnectionState tracks the reporter transport.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	// StateNeedsReconnect means automatic retries are exhausted and only
	// an explicit Connect call will try again.
	StateNeedsReconnect
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateNeedsReconnect:
		return "needs_reconnect"
	default:
		return "unknown"
	}
}

const (
	defaultPingInterval    = 5 * time.Second
	defaultRetryBaseDelay  = 1 * time.Second
	defaultLocationTimeout = 3 * time.Second
	connectTimeout         = 10 * time.Second

	maxReconnectAttempts = 5
)

// Conn is the subset of a websocket connection the client needs.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a reporter connection to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config configures a reporter Client. URL, ReporterID and Locations
// are required; everything else has defaults.
type Config struct {
	URL        string
	ReporterID string
	Locations  LocationProvider

	PingInterval    time.Duration
	RetryBaseDelay  time.Duration
	LocationTimeout time.Duration

	Dialer        Dialer
	OnStateChange func(ConnectionState)
}

// Client runs on the reporting device. It owns the connection state
// machine with bounded reconnect, the arm/disarm state machine, and the
// periodic ping timer that exists only while armed.
type Client struct {
	url        string
	reporterID string
	locations  LocationProvider
	dial       Dialer

	pingInterval    time.Duration
	retryBaseDelay  time.Duration
	locationTimeout time.Duration
	onStateChange   func(ConnectionState)

	mu         sync.Mutex
	writeMu    sync.Mutex
	state      ConnectionState
	conn       Conn
	sessionID  string
	attempts   int
	retryTimer *time.Timer
	dialGen    uint64
	armed      bool
	armStop    chan struct{}
	closed     bool
}

// NewClient creates a reporter client. It does not connect.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("reporter: URL is required")
	}
	if !types.IsValidReporterID(cfg.ReporterID) {
		return nil, types.ErrInvalidReporterID
	}
	if cfg.Locations == nil {
		return nil, fmt.Errorf("reporter: location provider is required")
	}

	c := &Client{
		url:             cfg.URL,
		reporterID:      cfg.ReporterID,
		locations:       cfg.Locations,
		dial:            cfg.Dialer,
		pingInterval:    cfg.PingInterval,
		retryBaseDelay:  cfg.RetryBaseDelay,
		locationTimeout: cfg.LocationTimeout,
		onStateChange:   cfg.OnStateChange,
		state:           StateDisconnected,
	}
	if c.dial == nil {
		c.dial = defaultDialer
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = defaultRetryBaseDelay
	}
	if c.locationTimeout <= 0 {
		c.locationTimeout = defaultLocationTimeout
	}
	return c, nil
}

// Connect establishes the transport. Idempotent: a no-op while already
// connecting or connected. On success the retry counter resets; on
// failure the next automatic retry is scheduled.
func (c *Client) Connect() error {
	return c.connect(false, 0)
}

// connect is the shared dial path for explicit Connect calls and retry
// timers. A retry carries the generation it was scheduled under and
// aborts if an explicit disconnect has moved it since, even when the
// timer had already fired before the disconnect could stop it.
func (c *Client) connect(fromRetry bool, retryGen uint64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if fromRetry && c.dialGen != retryGen {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.cancelRetryLocked()
	if c.state == StateNeedsReconnect {
		// Manual reconnect restores the full retry budget.
		c.attempts = 0
	}
	gen := c.dialGen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	conn, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.closed || c.dialGen != gen {
		// An explicit disconnect raced the dial; the result is unwanted.
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.scheduleRetryLocked()
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Disconnect tears the transport down deliberately. It cancels any
// pending reconnect, disarms, and leaves the client Disconnected until
// the next explicit Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.dialGen++
	c.cancelRetryLocked()
	c.attempts = 0
	c.disarmLocked()
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Close disconnects and makes the client unusable.
func (c *Client) Close() {
	c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Arm starts location reporting. Requires Connected. One ping goes out
// immediately, then one per interval until Disarm or disconnect.
func (c *Client) Arm() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateNeedsReconnect {
		c.mu.Unlock()
		return ErrNeedsReconnect
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.armed {
		c.mu.Unlock()
		return ErrAlreadyArmed
	}
	c.armed = true
	stop := make(chan struct{})
	c.armStop = stop
	c.mu.Unlock()

	go c.pingLoop(stop)
	return nil
}

// Disarm stops location reporting. Safe to call from any state; the
// ping timer never outlives this call.
func (c *Client) Disarm() {
	c.mu.Lock()
	c.disarmLocked()
	c.mu.Unlock()
}

// PingLocation acquires a position fix and sends one location update.
// While disconnected the ping is dropped, never queued; a stale fix is
// worthless to a dispatcher.
func (c *Client) PingLocation(ctx context.Context) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	loc, err := acquireLocation(ctx, c.locations, c.locationTimeout)
	if err != nil {
		return err
	}

	// Re-check after the fix: acquisition can outlive the connection.
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	sessionID := c.sessionID
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	msg := types.LocationUpdateMessage{
		Type:       types.MessageTypeLocationUpdate,
		SessionID:  sessionID,
		ReporterID: c.reporterID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Timestamp:  loc.Timestamp,
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Armed reports whether the ping timer is running.
func (c *Client) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// SessionID returns the session assigned by the coordinator, empty
// until the first ping is acknowledged.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// pingLoop issues the immediate ping and then one per tick. Each ping
// runs in its own goroutine so a slow fix cannot delay the next tick.
func (c *Client) pingLoop(stop chan struct{}) {
	go c.ping()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			go c.ping()
		}
	}
}

func (c *Client) ping() {
	if err := c.PingLocation(context.Background()); err != nil {
		log.Printf("reporter: ping dropped: %v", err)
	}
}

// readLoop consumes acks and errors for the life of one connection.
func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn)
			return
		}

		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Kind      string `json:"kind"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case types.MessageTypeLocationUpdated:
			c.mu.Lock()
			c.sessionID = msg.SessionID
			c.mu.Unlock()
		case types.MessageTypeError:
			log.Printf("reporter: server rejected update kind=%s: %s", msg.Kind, msg.Message)
			if msg.Kind == types.ErrorKindSessionNotFound {
				// The session is gone; the next ping opens a fresh one.
				c.mu.Lock()
				c.sessionID = ""
				c.mu.Unlock()
			}
		}
	}
}

// handleDisconnect reacts to an unexpected transport drop: forced
// disarm, then bounded automatic reconnect.
func (c *Client) handleDisconnect(conn Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// A deliberate disconnect already replaced or cleared it.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.disarmLocked()
	c.setStateLocked(StateDisconnected)
	if !c.closed {
		c.scheduleRetryLocked()
	}
	c.mu.Unlock()

	_ = conn.Close()
}

// scheduleRetryLocked arms the backoff timer for the next attempt, or
// parks the client in NeedsReconnect once the cap is hit.
func (c *Client) scheduleRetryLocked() {
	if c.attempts >= maxReconnectAttempts {
		c.setStateLocked(StateNeedsReconnect)
		return
	}
	c.attempts++
	delay := reconnectDelay(c.attempts, c.retryBaseDelay)
	gen := c.dialGen
	c.retryTimer = time.AfterFunc(delay, func() {
		if err := c.connect(true, gen); err != nil {
			log.Printf("reporter: reconnect attempt failed: %v", err)
		}
	})
}

// reconnectDelay is 2^attempt times the base delay.
func reconnectDelay(attempt int, base time.Duration) time.Duration {
	return time.Duration(1<<uint(attempt)) * base
}

func (c *Client) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Client) disarmLocked() {
	if !c.armed {
		return
	}
	c.armed = false
	close(c.armStop)
	c.armStop = nil
}

func (c *Client) setStateLocked(state ConnectionState) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onStateChange != nil {
		go c.onStateChange(state)
	}
}
