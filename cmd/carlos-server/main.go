// Carlos server. Accepts device websocket connections, ingests their
// buffered sensor readings into the partitioned timeseries store and
// serves the query API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/flxdot/carlos-sub000/migrations"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/config"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/database"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/influxdb"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/mqtt"
	"github.com/flxdot/carlos-sub000/internal/server"
	"github.com/flxdot/carlos-sub000/internal/store"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// edgeVersion is the edge software release the server announces to
// every connecting device. Devices running something older exit and
// let their supervisor install this version.
var edgeVersion = "0.1.0"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting carlos server", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	devices := store.NewDeviceStore(db.DB)
	timeseries := store.NewTimeseriesStore(db.DB, log)

	var ingest *influxdb.Client
	if cfg.InfluxDB.Enabled {
		ingest, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			log.Info("closing influxdb connection")
			if closeErr := ingest.Close(); closeErr != nil {
				log.Error("closing influxdb", "error", closeErr)
			}
		}()
		ingest.SetOnError(func(err error) {
			log.Error("influxdb write error", "error", err)
		})
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("influxdb disabled")
	}

	var lifecycle server.LifecycleNotifier
	if cfg.MQTT.Enabled {
		broker, brokerErr := mqtt.Connect(cfg.MQTT)
		if brokerErr != nil {
			return fmt.Errorf("connecting to mqtt: %w", brokerErr)
		}
		defer func() {
			log.Info("disconnecting from mqtt")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("closing mqtt", "error", closeErr)
			}
		}()
		lifecycle = broker
		log.Info("mqtt connected", "host", cfg.MQTT.Host, "port", cfg.MQTT.Port)
	} else {
		log.Info("mqtt disabled")
	}

	srv, err := server.New(server.Deps{
		Config:      cfg.API,
		Logger:      log,
		DB:          db,
		Devices:     devices,
		Timeseries:  timeseries,
		Auth:        server.StaticBearerVerifier(cfg.API.DeviceToken),
		EdgeVersion: edgeVersion,
		Ingest:      ingest,
		Lifecycle:   lifecycle,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("shutting down server", "error", closeErr)
		}
	}()

	if err := db.HealthCheck(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("health check: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path, preferring the
// CARLOS_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("CARLOS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
