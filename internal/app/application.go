package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"beacon/internal/api"
	"beacon/internal/broadcast"
	"beacon/internal/config"
	"beacon/internal/coordinator"
	"beacon/internal/store"
	"beacon/internal/websocket"
)

// Application wires the beacon server together. Initialization order:
// Store → Broadcast → Coordinator → Registry → WebSocket → API → HTTP.
type Application struct {
	config      *config.Config
	store       *store.Manager
	channel     *broadcast.Channel
	coordinator *coordinator.Coordinator
	registry    *websocket.Registry
	wsHandler   *websocket.Handler
	apiServer   *api.Server
	httpServer  *http.Server
}

// NewApplication builds all components from the configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sessionStore, err := store.NewManager(&store.Config{
		Path:            cfg.Store.Path,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		WriteTimeout:    cfg.Store.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	channel := broadcast.NewChannel()

	coord := coordinator.NewCoordinator(sessionStore, channel, cfg.Store.WriteTimeout)
	if err := coord.LoadActiveSessions(context.Background()); err != nil {
		_ = sessionStore.Close()
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	registry := websocket.NewRegistry()
	wsHandler := websocket.NewHandler(coord, channel, registry)
	apiServer := api.NewServer(coord, sessionStore, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws/report", wsHandler.HandleReport)
	mux.HandleFunc("/ws/watch", wsHandler.HandleWatch)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       sessionStore,
		channel:     channel,
		coordinator: coord,
		registry:    registry,
		wsHandler:   wsHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start launches the broadcast channel and the HTTP listener. The
// channel starts first so no session event published during startup is
// lost.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting beacon server on %s", app.httpServer.Addr)

	if err := app.channel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start broadcast channel: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.channel.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Beacon server started")
		return nil
	case <-ctx.Done():
		_ = app.channel.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Broadcast →
// Store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down beacon server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	// The channel stops itself if the lifecycle context was cancelled.
	if err := app.channel.Stop(); err != nil && err != broadcast.ErrChannelNotRunning {
		log.Printf("Broadcast channel shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Session store shutdown error: %v", err)
	}

	log.Printf("Beacon server shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
