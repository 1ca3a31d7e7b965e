// Appliance Link - connectivity and message coordination layer
//
// This is the main entry point for the appliance link daemon. It owns
// the MQTT session to one appliance, tracks its reachability, polls it
// for current state, and exposes validated, de-duplicated status
// traffic to the owning application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/appliance-link/internal/appliance"
	"github.com/nerrad567/appliance-link/internal/audit"
	"github.com/nerrad567/appliance-link/internal/infrastructure/config"
	"github.com/nerrad567/appliance-link/internal/infrastructure/database"
	"github.com/nerrad567/appliance-link/internal/infrastructure/logging"
	"github.com/nerrad567/appliance-link/internal/infrastructure/telemetry"
	"github.com/nerrad567/appliance-link/internal/infrastructure/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting appliance link",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the link event journal (optional)
	var recorder appliance.EventRecorder
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		repo, repoErr := audit.NewSQLiteRepository(ctx, db.DB)
		if repoErr != nil {
			return fmt.Errorf("initialising link event journal: %w", repoErr)
		}
		recorder = &journalAdapter{repo: repo}
	} else {
		log.Info("link event journal disabled")
	}

	// Connect to InfluxDB (optional)
	var metrics appliance.MetricsSink
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := telemetry.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the MQTT transport
	conn := transport.New(cfg.Broker, cfg.Device.Credentials)
	conn.SetLogger(log)

	// Create and start the coordinator
	coordinator, err := appliance.NewCoordinator(appliance.CoordinatorOptions{
		Device:        cfg.Device,
		Subscriptions: cfg.Subscriptions,
		Cloud:         cfg.Broker.Cloud,
		Transport:     conn,
		Grace:         time.Duration(cfg.Reachability.GraceSeconds) * time.Second,
		PollInterval:  time.Duration(cfg.Watchdog.IntervalSeconds) * time.Second,
		PollTimeout:   time.Duration(cfg.Watchdog.TimeoutSeconds) * time.Second,
		Logger:        log,
		Recorder:      recorder,
		Metrics:       metrics,
		OnMessage: func(msg *appliance.Message) {
			log.Info("appliance message",
				"kind", string(msg.Kind),
				"topic", msg.Topic,
			)
		},
		OnStatus: func(s appliance.Status) {
			log.Info("link status",
				"reachable", s.Reachable,
				"initialised", s.Initialised,
			)
		},
		OnError: func(err error) {
			log.Error("link error", "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer func() {
		log.Info("stopping coordinator")
		coordinator.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"serial", cfg.Device.SerialNumber,
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Stop/Close calls run in reverse order:
	// 1. Coordinator (disconnects the transport)
	// 2. InfluxDB (if enabled)
	// 3. Database (if enabled)

	log.Info("appliance link stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses APPLIANCELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("APPLIANCELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// journalAdapter adapts the audit repository to the coordinator's
// EventRecorder interface. The serial rides in the event details; it is
// lifted into its own column so the journal can be filtered per device.
type journalAdapter struct {
	repo audit.Repository
}

// RecordEvent implements appliance.EventRecorder.
func (a *journalAdapter) RecordEvent(ctx context.Context, event string, details map[string]any) error {
	serial, _ := details["serial"].(string)
	return a.repo.Create(ctx, &audit.LinkEvent{
		Event:   event,
		Serial:  serial,
		Details: details,
	})
}
