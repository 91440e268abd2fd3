// Relay Hub - WebSocket device relay
//
// This is the main entry point for the relay hub. The hub accepts
// WebSocket connections from devices and controllers, authenticates
// control traffic with signed tokens, and relays state reports and
// commands between the two sides.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/xxtouch/relay-hub/internal/audit"
	"github.com/xxtouch/relay-hub/internal/auth"
	"github.com/xxtouch/relay-hub/internal/infrastructure/config"
	"github.com/xxtouch/relay-hub/internal/infrastructure/database"
	"github.com/xxtouch/relay-hub/internal/infrastructure/influxdb"
	"github.com/xxtouch/relay-hub/internal/infrastructure/logging"
	"github.com/xxtouch/relay-hub/internal/infrastructure/mqtt"
	"github.com/xxtouch/relay-hub/internal/relay"
	"github.com/xxtouch/relay-hub/internal/server"
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
	log.Info("starting relay hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Derive the shared control secret. Logging the passhash lets an
	// operator verify their controller's derivation without exposing the
	// password itself.
	secret := auth.DeriveSecret(cfg.Auth.Password)
	log.Info("control secret derived", "passhash", secret.String())

	// Relay core
	registry := relay.NewRegistry()
	registry.SetLogger(log)
	controllers := relay.NewControllerSet()
	router := relay.NewRouter(auth.NewVerifier(secret), registry, controllers)
	router.SetLogger(log)

	events := &hubEvents{
		registry:    registry,
		controllers: controllers,
		log:         log,
	}
	router.SetEvents(events)

	// Connect to MQTT broker (optional event bridge)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		events.mqtt = mqttClient
	} else {
		log.Info("MQTT event bridge disabled")
	}

	// Open database (optional command audit log)
	if cfg.Database.Enabled {
		db, dbErr := database.Open(database.Config{
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

		if bootErr := db.Bootstrap(ctx); bootErr != nil {
			return fmt.Errorf("bootstrapping database: %w", bootErr)
		}
		log.Info("database connected", "path", cfg.Database.Path)

		events.commands = audit.NewSQLiteRepository(db.DB)
	} else {
		log.Info("command audit log disabled")
	}

	// Connect to InfluxDB (optional telemetry)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		events.influx = influxClient
	} else {
		log.Info("InfluxDB telemetry disabled")
	}

	// HTTP/WebSocket server
	srv, err := server.New(server.Deps{
		Config:      cfg,
		Logger:      log,
		Router:      router,
		Registry:    registry,
		Controllers: controllers,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing server", "error", closeErr)
		}
	}()
	log.Info("server started",
		"address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"ws_path", cfg.Server.Path,
	)

	// Status poller
	poller := relay.NewPoller(registry, cfg.GetPollInterval())
	poller.SetLogger(log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	log.Info("relay hub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RELAYHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RELAYHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
