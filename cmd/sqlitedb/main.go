// sqlitedb serves a SQLite database over an HTTP statement console.
//
// Every statement opens a connection, prepares, steps, finalizes and
// closes. Statement events can be written to InfluxDB and successful changes
// published over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhkashizadeh/sqlitedb/internal/api"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/config"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/influxdb"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/logging"
	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting sqlitedb",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	if err := seedDatabase(cfg.Database, log); err != nil {
		return err
	}

	stats := api.NewStats()
	observers := database.Observers{stats}

	influxClient, err := connectInfluxDB(ctx, cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		observers = append(observers, influxClient)
	}

	mqttClient, err := connectMQTT(cfg.MQTT, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		notifier := mqtt.NewNotifier(mqttClient, mqttClient.Topics(), log, 0)
		defer notifier.Close()
		observers = append(observers, notifier)
	}

	loc, err := cfg.Database.Location()
	if err != nil {
		return fmt.Errorf("database timezone: %w", err)
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		Driver:      cfg.Database.Driver,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Persistent:  cfg.Database.Persistent,
		Location:    loc,
	}, database.WithLogger(log), database.WithObserver(observers))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready",
		"path", db.Path(),
		"driver", db.Driver(),
		"persistent", cfg.Database.Persistent,
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Store:   db,
		Version: version,
		Stats:   stats,
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

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// seedDatabase copies the configured template into place on first run.
func seedDatabase(cfg config.DatabaseConfig, log *logging.Logger) error {
	if cfg.SeedPath == "" {
		return nil
	}
	if cfg.Path == database.MemoryPath {
		log.Warn("seed_path ignored for in-memory database", "seed_path", cfg.SeedPath)
		return nil
	}

	created, err := database.Seed(cfg.SeedPath, cfg.Path)
	if err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	if created {
		log.Info("database seeded from template", "template", cfg.SeedPath, "path", cfg.Path)
	}
	return nil
}

// connectInfluxDB returns nil when telemetry is disabled.
func connectInfluxDB(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// connectMQTT returns nil when change notifications are disabled.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"status_topic", client.Topics().Status(),
	)
	return client, nil
}

// healthCheck probes every connected component; nil clients are skipped.
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
