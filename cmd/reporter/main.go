package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"beacon/pkg/reporter"
	"beacon/pkg/types"
)

// cliConfig is the YAML config for the reporter CLI.
type cliConfig struct {
	ServerURL    string  `yaml:"server_url"`
	ReporterID   string  `yaml:"reporter_id"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	PingInterval string  `yaml:"ping_interval"`
}

// simulatedProvider emits a fixed position with a little jitter, standing
// in for device GPS hardware.
type simulatedProvider struct {
	latitude  float64
	longitude float64
}

func (p *simulatedProvider) CurrentLocation(ctx context.Context, accuracy reporter.Accuracy) (types.Location, error) {
	jitter := 0.0001 * float64(accuracy+1)
	return types.Location{
		Latitude:  p.latitude + (rand.Float64()-0.5)*jitter,
		Longitude: p.longitude + (rand.Float64()-0.5)*jitter,
		Timestamp: time.Now(),
	}, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	serverURL := flag.String("server", "ws://localhost:8080/ws/report", "reporter websocket URL")
	reporterID := flag.String("reporter", "", "reporter device id")
	latitude := flag.Float64("lat", 14.5995, "simulated latitude")
	longitude := flag.Float64("lng", 120.9842, "simulated longitude")
	flag.Parse()

	cfg := cliConfig{
		ServerURL:  *serverURL,
		ReporterID: *reporterID,
		Latitude:   *latitude,
		Longitude:  *longitude,
	}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.ReporterID == "" {
		return fmt.Errorf("reporter id is required (-reporter or reporter_id in config)")
	}

	pingInterval := time.Duration(0)
	if cfg.PingInterval != "" {
		d, err := time.ParseDuration(cfg.PingInterval)
		if err != nil {
			return fmt.Errorf("invalid ping_interval: %w", err)
		}
		pingInterval = d
	}

	client, err := reporter.NewClient(reporter.Config{
		URL:          cfg.ServerURL + "?reporter_id=" + cfg.ReporterID,
		ReporterID:   cfg.ReporterID,
		Locations:    &simulatedProvider{latitude: cfg.Latitude, longitude: cfg.Longitude},
		PingInterval: pingInterval,
		OnStateChange: func(state reporter.ConnectionState) {
			log.Printf("connection state: %s", state)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create reporter client: %w", err)
	}
	defer client.Close()

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := client.Arm(); err != nil {
		return fmt.Errorf("failed to arm: %w", err)
	}
	log.Printf("armed, reporting location as %s", cfg.ReporterID)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	client.Disarm()
	log.Printf("disarmed, session id was %q", client.SessionID())
	return nil
}
