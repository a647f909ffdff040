package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"beacon/internal/coordinator"
	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

// Registry is the connection-stats surface the API needs; avoids coupling
// to the websocket package's concrete registry.
type Registry interface {
	GetStats() map[string]int
}

// Server is the HTTP surface: ping submission and status updates for
// clients without a live socket, session queries for late-joining
// viewers, and health. No business logic, only HTTP handling.
type Server struct {
	coordinator *coordinator.Coordinator
	store       interfaces.SessionStore
	registry    Registry
	router      *http.ServeMux
}

// NewServer creates the API server and sets up routing.
func NewServer(coord *coordinator.Coordinator, store interfaces.SessionStore, registry Registry) *Server {
	s := &Server{
		coordinator: coord,
		store:       store,
		registry:    registry,
		router:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/pings", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handlePings))))
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ListSessionsResponse struct {
	Sessions []*types.EmergencySession `json:"sessions"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Store       string         `json:"store"`
	Connections map[string]int `json:"connections"`
	Sessions    map[string]int `json:"sessions"`
}

// handlePings accepts POST /api/pings: the HTTP equivalent of the live
// location-update message.
func (s *Server) handlePings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitPing(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) submitPing(w http.ResponseWriter, r *http.Request) {
	var req types.PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp, err := s.coordinator.SubmitPing(r.Context(), &req)
	if err != nil {
		s.sendCoordinatorError(w, err)
		return
	}

	// A ping that opened a session is a creation.
	if req.SessionID == "" {
		w.WriteHeader(http.StatusCreated)
	}
	s.writeJSON(w, resp)
}

// handleSessions serves GET /api/sessions: all live (non-terminal)
// sessions, for viewers joining after events already flowed.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, ListSessionsResponse{Sessions: s.coordinator.ListLiveSessions()})
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByID serves GET /api/sessions/{id} and
// POST /api/sessions/{id}/status.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if path == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}
	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if sessionID == "" {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		s.updateStatus(w, r, sessionID)
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.coordinator.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}
	s.writeJSON(w, session)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req types.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.SessionID = sessionID

	resp, err := s.coordinator.UpdateStatus(r.Context(), &req)
	if err != nil {
		s.sendCoordinatorError(w, err)
		return
	}
	s.writeJSON(w, resp)
}

// healthCheck reports store connectivity plus connection and session
// counts; 503 when the store is unreachable.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"
	if s.store != nil {
		if err := s.store.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			storeStatus = fmt.Sprintf("error: %v", err)
		}
	}

	resp := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Store:       storeStatus,
		Connections: s.registry.GetStats(),
		Sessions:    s.coordinator.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

// sendCoordinatorError maps coordinator errors onto HTTP statuses.
func (s *Server) sendCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, interfaces.ErrSessionTerminal):
		s.sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, coordinator.ErrPersistence):
		s.sendError(w, "Failed to persist session", http.StatusInternalServerError)
	case isValidationError(err):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func isValidationError(err error) bool {
	for _, v := range []error{
		types.ErrInvalidLatitude,
		types.ErrInvalidLongitude,
		types.ErrMissingReporterID,
		types.ErrInvalidReporterID,
		types.ErrMissingTimestamp,
		types.ErrInvalidStatus,
		types.ErrMissingSessionID,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
