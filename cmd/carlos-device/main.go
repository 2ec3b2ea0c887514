// Carlos device agent. Samples the configured sensor drivers into the
// local blackbox buffer and ships the readings to the server over a
// websocket, surviving outages on both ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/flxdot/carlos-sub000/internal/driver/builtin"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/device"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

// version is the edge software version, set at build time via ldflags.
// The runtime exits for a supervisor-driven update when the server
// announces a newer one.
var version = "0.1.0"

// Exit codes understood by the supervisor unit.
const (
	exitConfigError = 2
	exitUpdate      = 3
)

const (
	defaultConfigPath   = "configs/device.yaml"
	defaultSettingsPath = "configs/connection.yaml"
	defaultBlackboxPath = "data/blackbox.db"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logging.Default()
	log.Info("starting carlos device agent", "version", version)

	cfg, err := device.LoadConfig(envOr("CARLOS_DEVICE_CONFIG", defaultConfigPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}
	settings, err := device.LoadConnectionSettings(envOr("CARLOS_DEVICE_SETTINGS", defaultSettingsPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}

	if err := run(ctx, log, cfg, settings); err != nil {
		if errors.Is(err, device.ErrUpdateRequested) {
			log.Info("exiting for software update")
			os.Exit(exitUpdate)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logging.Logger, cfg *device.Config, settings *device.ConnectionSettings) error {
	db, err := blackbox.Open(envOr("CARLOS_BLACKBOX_PATH", defaultBlackboxPath))
	if err != nil {
		return fmt.Errorf("opening blackbox: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("closing blackbox", "error", closeErr)
		}
	}()

	box := blackbox.New(db, log)
	runtime, err := device.NewRuntime(device.RuntimeDeps{
		Config:   cfg,
		Settings: settings,
		DB:       db,
		Blackbox: box,
		Logger:   log,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}

	log.Info("runtime ready", "device_id", cfg.DeviceID, "server", settings.ServerURL)
	return runtime.Run(ctx)
}

// envOr returns the environment variable's value, or the fallback when
// it is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
