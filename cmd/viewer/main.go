package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beacon/pkg/types"
	"beacon/pkg/viewer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	watchURL := flag.String("watch", "ws://localhost:8080/ws/watch", "watch websocket URL")
	apiURL := flag.String("api", "http://localhost:8080", "HTTP API base URL for the initial snapshot")
	flag.Parse()

	client := viewer.NewClient(*watchURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := client.Join(ctx, viewer.Handlers{
		OnCreated: func(s *types.EmergencySession) {
			log.Printf("SESSION CREATED %s reporter=%s at (%.4f, %.4f)",
				s.ID, s.ReporterID, s.LastLocation.Latitude, s.LastLocation.Longitude)
		},
		OnUpdated: func(s *types.EmergencySession) {
			log.Printf("session updated %s status=%s at (%.4f, %.4f)",
				s.ID, s.Status, s.LastLocation.Latitude, s.LastLocation.Longitude)
		},
		OnEnded: func(id string) {
			log.Printf("session ended %s", id)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Leave() }()

	// Joining before seeding leaves no window where an update can slip by.
	if sessions, err := fetchLiveSessions(ctx, *apiURL); err != nil {
		log.Printf("could not seed initial sessions: %v", err)
	} else {
		client.Seed(sessions)
		log.Printf("watching %d live session(s)", len(client.Sessions()))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalCh:
		return nil
	case <-client.Done():
		return fmt.Errorf("watch connection lost")
	}
}

func fetchLiveSessions(ctx context.Context, apiURL string) ([]*types.EmergencySession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sessions query returned %s", resp.Status)
	}

	var body struct {
		Sessions []*types.EmergencySession `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Sessions, nil
}
