// LabGate Core - passkey pairing relay for lab access control.
//
// This is the main entry point for the LabGate Core application. LabGate
// pairs a desktop login flow with the user's mobile device over a
// WebSocket relay: the mobile proves a passkey ceremony and, where the
// lab requires it, reports its location for a geofence check before
// access is granted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/labgate/labgate-core/migrations"

	"github.com/labgate/labgate-core/internal/api"
	"github.com/labgate/labgate-core/internal/audit"
	"github.com/labgate/labgate-core/internal/auth"
	"github.com/labgate/labgate-core/internal/infrastructure/config"
	"github.com/labgate/labgate-core/internal/infrastructure/database"
	"github.com/labgate/labgate-core/internal/infrastructure/logging"
	"github.com/labgate/labgate-core/internal/infrastructure/mqtt"
	"github.com/labgate/labgate-core/internal/relay"
	"github.com/labgate/labgate-core/internal/telemetry"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LabGate Core",
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

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	labRepo := auth.NewLabRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Seed the initial admin account on first boot
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, labRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Relay: registry, store, recorder, router, reaper.
	// The recorder fans resolution events out to the audit trail and the
	// optional MQTT/InfluxDB sinks. Nil interface values stay nil so the
	// recorder skips the disabled sinks.
	directory := auth.NewLabDirectory(labRepo)
	registry := relay.NewRegistry()
	store := relay.NewStore()

	var accessPublisher audit.AccessPublisher
	if mqttClient != nil {
		accessPublisher = mqttClient
	}
	var resolutionWriter audit.ResolutionWriter
	if influxClient != nil {
		resolutionWriter = influxClient
	}
	recorder := audit.NewRecorder(auditRepo, accessPublisher, resolutionWriter, directory, log)
	defer func() {
		log.Info("draining audit recorder")
		recorder.Close()
	}()

	relayRouter := relay.NewRouter(registry, store, log, relay.Options{
		Recorder:            recorder,
		Labs:                directory,
		RedirectURL:         cfg.Relay.RedirectURL,
		ServerGeofenceCheck: cfg.Relay.ServerGeofenceCheck,
	})

	reaper := relay.NewReaper(store, log,
		cfg.Relay.GetDisconnectGrace(),
		cfg.Relay.GetMaxSessionAge(),
		cfg.Relay.GetReapInterval(),
	)
	go reaper.Run(ctx)

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Auth:        cfg.Auth,
		Logger:      log,
		DB:          db,
		Registry:    registry,
		Store:       store,
		RelayRouter: relayRouter,
		AuthService: auth.NewService(userRepo, labRepo),
		Labs:        labRepo,
		Audit:       auditRepo,
		MQTT:        mqttClient,
		Telemetry:   influxClient,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stops new relay traffic)
	// 2. Audit recorder (drains in-flight records)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("LabGate Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
