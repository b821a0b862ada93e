// Homepulse Core - Smart Home Readings Service
//
// This is the main entry point for the Homepulse Core application.
// Homepulse collects temperature and environment readings from several
// device ecosystems into one durable local store:
//   - Zigbee motion sensors (temperature, humidity, battery)
//   - Cloud air-quality monitors (temperature, PM2.5, VOC, CO, AQI)
//   - Cloud thermostats (ambient temperature, HVAC mode/state)
//
// SQLite is the source of truth; MQTT ingest and the InfluxDB mirror are
// optional extras configured in configs/config.yaml.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/homepulse/homepulse-core/migrations"

	"github.com/homepulse/homepulse-core/internal/api"
	"github.com/homepulse/homepulse-core/internal/infrastructure/config"
	"github.com/homepulse/homepulse-core/internal/infrastructure/database"
	"github.com/homepulse/homepulse-core/internal/infrastructure/influxdb"
	"github.com/homepulse/homepulse-core/internal/infrastructure/logging"
	"github.com/homepulse/homepulse-core/internal/infrastructure/mqtt"
	"github.com/homepulse/homepulse-core/internal/ingest"
	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/registry"
	"github.com/homepulse/homepulse-core/internal/retry"
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
	log.Info("starting Homepulse Core",
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

	// Run migrations. A failed migration is fatal: starting against a
	// half-migrated schema would corrupt the readings store.
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Shared backoff policy for storage inserts and registry writes
	policy := retry.New(cfg.Retry.MaxAttempts, cfg.RetryBaseDelay())
	policy.SetLogger(log.With("component", "retry"))

	// Readings store
	store := reading.NewStore(db, policy)
	store.SetLogger(log.With("component", "store"))

	// Device registry (human-editable YAML document)
	deviceRegistry, err := registry.New(cfg.Registry.Path, policy)
	if err != nil {
		return fmt.Errorf("creating device registry: %w", err)
	}
	deviceRegistry.SetLogger(log.With("component", "registry"))
	deviceRegistry.SetHistoryRewriter(store)
	log.Info("device registry initialised", "path", cfg.Registry.Path)

	// Ingest pipeline
	normalizer := reading.NewNormalizer(deviceRegistry)
	service := ingest.NewService(normalizer, deviceRegistry, store)
	service.SetLogger(log.With("component", "ingest"))

	// Connect to InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		service.SetMirror(influxClient)
		log.Info("InfluxDB mirror connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	// Connect to MQTT broker and start the ingest bridge (optional)
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
		mqttClient.SetLogger(log.With("component", "mqtt"))
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

		bridge := ingest.NewBridge(ctx, service, mqttClient, byte(cfg.MQTT.QoS))
		bridge.SetLogger(log.With("component", "ingest-bridge"))
		if startErr := bridge.Start(mqttClient); startErr != nil {
			return fmt.Errorf("starting ingest bridge: %w", startErr)
		}
	} else {
		log.Info("MQTT ingest bridge disabled")
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:          cfg.API,
			Logger:          log.With("component", "api"),
			Store:           store,
			Registry:        deviceRegistry,
			StalenessWindow: cfg.Registry.StalenessWindow,
			Database:        db,
			Version:         version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

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
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("Homepulse Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEPULSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEPULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
