package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"beacon/internal/broadcast"
	"beacon/internal/coordinator"
	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from a separate origin; tighten per
		// deployment behind the reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second

	// Per-reporter messages per minute. A healthy armed device sends 12.
	reporterRateLimit = 120
)

// Handler terminates the two live channels: /ws/report for reporter
// devices streaming location updates, /ws/watch for viewer dashboards
// receiving session events.
type Handler struct {
	coordinator *coordinator.Coordinator
	channel     *broadcast.Channel
	registry    *Registry
	rateLimiter *RateLimiter
}

// NewHandler creates a websocket handler.
func NewHandler(coord *coordinator.Coordinator, channel *broadcast.Channel, registry *Registry) *Handler {
	return &Handler{
		coordinator: coord,
		channel:     channel,
		registry:    registry,
		rateLimiter: NewRateLimiter(reporterRateLimit),
	}
}

// HandleReport upgrades a reporter device connection and processes its
// location-update messages for the life of the socket.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	reporterID := r.URL.Query().Get("reporter_id")
	if reporterID == "" {
		http.Error(w, "Missing required query parameter: reporter_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidReporterID(reporterID) {
		http.Error(w, "Invalid reporter_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: reporter upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, reporterID, "reporter")
	if err := h.registry.RegisterReporter(wsConn); err != nil {
		log.Printf("websocket: reporter registration failed: %v", err)
		_ = wsConn.Close()
		return
	}
	log.Printf("websocket: reporter connected id=%s", reporterID)

	// The request context dies when this handler returns; the connection
	// outlives it.
	go h.runReporter(context.Background(), wsConn)
}

// runReporter is the reporter read loop with heartbeat monitoring.
func (h *Handler) runReporter(ctx context.Context, conn *Connection) {
	defer func() {
		h.registry.UnregisterReporter(conn)
		_ = conn.Close()
		log.Printf("websocket: reporter disconnected id=%s", conn.GetClientID())
	}()

	h.startHeartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: reporter read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg types.LocationUpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, types.ErrorKindValidation, "malformed message")
			continue
		}
		if msg.Type != types.MessageTypeLocationUpdate {
			h.sendError(conn, types.ErrorKindValidation, "unknown message type: "+msg.Type)
			continue
		}

		h.handleLocationUpdate(ctx, conn, &msg)
	}
}

// handleLocationUpdate submits one live ping to the coordinator and
// acknowledges the result on the same socket.
func (h *Handler) handleLocationUpdate(ctx context.Context, conn *Connection, msg *types.LocationUpdateMessage) {
	reporterID := conn.GetClientID()
	if !h.rateLimiter.Allow(reporterID) {
		h.sendError(conn, types.ErrorKindValidation, "rate limit exceeded")
		return
	}

	// The socket identity is authoritative; a device cannot report as
	// another reporter.
	resp, err := h.coordinator.SubmitPing(ctx, &types.PingRequest{
		SessionID:  msg.SessionID,
		ReporterID: reporterID,
		Latitude:   msg.Latitude,
		Longitude:  msg.Longitude,
		Timestamp:  msg.Timestamp,
	})
	if err != nil {
		h.sendError(conn, errorKind(err), err.Error())
		return
	}

	ack := types.LocationAckMessage{
		Type:      types.MessageTypeLocationUpdated,
		SessionID: resp.SessionID,
		Timestamp: resp.ReceivedAt,
		Success:   true,
	}
	if err := conn.WriteJSON(ack); err != nil {
		log.Printf("websocket: failed to ack reporter %s: %v", reporterID, err)
	}
}

// HandleWatch upgrades a viewer connection, subscribes it to the
// broadcast channel and forwards session events until it leaves.
func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: viewer upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, uuid.New().String(), "viewer")

	sub, err := h.channel.Subscribe()
	if err != nil {
		log.Printf("websocket: viewer subscribe failed: %v", err)
		_ = wsConn.Close()
		return
	}

	if err := h.registry.RegisterViewer(wsConn); err != nil {
		sub.Unsubscribe()
		_ = wsConn.Close()
		return
	}
	log.Printf("websocket: viewer joined id=%s", wsConn.GetClientID())

	go h.forwardEvents(wsConn, sub)
	go h.runViewer(wsConn, sub)
}

// forwardEvents pushes broadcast events to one viewer in order.
func (h *Handler) forwardEvents(conn *Connection, sub *broadcast.Subscription) {
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(eventToWire(event)); err != nil {
				// Dead viewer; the read loop handles cleanup.
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// runViewer drains the viewer socket to detect disconnect; viewers only
// receive.
func (h *Handler) runViewer(conn *Connection, sub *broadcast.Subscription) {
	defer func() {
		sub.Unsubscribe()
		h.registry.UnregisterViewer(conn)
		_ = conn.Close()
		log.Printf("websocket: viewer left id=%s", conn.GetClientID())
	}()

	h.startHeartbeat(conn)

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// startHeartbeat installs the read deadline / pong handler and starts
// the ping ticker for one connection.
func (h *Handler) startHeartbeat(conn *Connection) {
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()
}

func (h *Handler) sendError(conn *Connection, kind, message string) {
	msg := types.ErrorMessage{
		Type:    types.MessageTypeError,
		Kind:    kind,
		Message: message,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("websocket: failed to send error to %s: %v", conn.GetClientID(), err)
	}
}

// eventToWire converts a broadcast event into its wire representation.
func eventToWire(event broadcast.Event) types.SessionEventMessage {
	switch e := event.(type) {
	case broadcast.SessionCreated:
		return types.SessionEventMessage{Type: types.MessageTypeSessionCreated, Session: e.Record}
	case broadcast.SessionUpdated:
		return types.SessionEventMessage{Type: types.MessageTypeSessionUpdated, Session: e.Record}
	case broadcast.SessionEnded:
		return types.SessionEventMessage{Type: types.MessageTypeSessionEnded, SessionID: e.ID}
	default:
		return types.SessionEventMessage{}
	}
}

// errorKind maps coordinator errors to wire error kinds.
func errorKind(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return types.ErrorKindSessionNotFound
	case errors.Is(err, coordinator.ErrPersistence):
		return types.ErrorKindPersistence
	case errors.Is(err, types.ErrInvalidLatitude),
		errors.Is(err, types.ErrInvalidLongitude),
		errors.Is(err, types.ErrMissingReporterID),
		errors.Is(err, types.ErrInvalidReporterID),
		errors.Is(err, types.ErrMissingTimestamp):
		return types.ErrorKindValidation
	default:
		return types.ErrorKindInternal
	}
}
