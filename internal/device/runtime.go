package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flxdot/carlos-sub000/internal/blackbox"
	"github.com/flxdot/carlos-sub000/internal/driver"
	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
	"github.com/flxdot/carlos-sub000/internal/retry"
)

// Runtime intervals.
const (
	// DefaultStageInterval is how often buffered samples are staged
	// and shipped.
	DefaultStageInterval = 150 * time.Second

	// pingInterval keeps the connection and the server-side liveness
	// tracking alive between data batches.
	pingInterval = time.Minute
)

// RuntimeDeps holds everything the runtime composes.
type RuntimeDeps struct {
	Config   *Config
	Settings *ConnectionSettings
	Registry *driver.Registry
	DB       *sql.DB
	Blackbox *blackbox.Blackbox
	Logger   *logging.Logger

	// Version is the running edge software version.
	Version string

	// Updater handles EDGE_VERSION announcements newer than Version.
	// Optional; without one the runtime still exits with
	// ErrUpdateRequested and leaves the restart to the supervisor.
	Updater Updater

	// SampleInterval and StageInterval default when zero.
	SampleInterval time.Duration
	StageInterval  time.Duration
}

// Runtime is the device's composition root. Run blocks until the
// context is cancelled or an update is requested.
type Runtime struct {
	cfg           *Config
	logger        *logging.Logger
	box           *blackbox.Blackbox
	client        *Client
	handler       *edge.CommunicationHandler
	handlers      *deviceHandlers
	manager       *DriverManager
	connectRetry  retry.Strategy
	stageInterval time.Duration
}

// NewRuntime wires the runtime together. Driver construction and
// address-space validation happen here, so an unusable configuration
// fails before anything touches the network.
func NewRuntime(deps RuntimeDeps) (*Runtime, error) {
	if deps.Config == nil || deps.Settings == nil {
		return nil, fmt.Errorf("%w: config and settings are required", ErrInvalidSettings)
	}
	if deps.Logger == nil || deps.Blackbox == nil || deps.DB == nil {
		return nil, fmt.Errorf("%w: logger, blackbox and database are required", ErrInvalidSettings)
	}
	if deps.Registry == nil {
		deps.Registry = driver.Default()
	}

	manager, err := NewDriverManager(deps.Registry, deps.Config.Drivers,
		deps.Blackbox, deps.Logger, deps.SampleInterval)
	if err != nil {
		return nil, err
	}

	client := NewClient(*deps.Settings, deps.Config.DeviceID, deps.DB, deps.Logger)
	handlers := newDeviceHandlers(deps.Blackbox, deps.Logger, deps.Version, deps.Updater)

	handler := edge.NewCommunicationHandler(client, deps.Config.DeviceID.String())
	handler.SetLogger(deps.Logger)
	if err := handler.RegisterHandlers(handlers.handlers()); err != nil {
		return nil, err
	}
	handlers.onUpdate = handler.Stop

	stageInterval := deps.StageInterval
	if stageInterval <= 0 {
		stageInterval = DefaultStageInterval
	}

	runtime := &Runtime{
		cfg:      deps.Config,
		logger:   deps.Logger,
		box:      deps.Blackbox,
		client:   client,
		handler:  handler,
		handlers: handlers,
		manager:  manager,
		connectRetry: &retry.BackOff{
			Expected: []error{edge.ErrConnectionFailed},
			OnRetry: func(attempt int, err error, delay time.Duration) {
				deps.Logger.Warn("connection attempt failed",
					"attempt", attempt, "retry_in", delay, "error", err)
			},
		},
		stageInterval: stageInterval,
	}
	client.SetOnConnect(runtime.sendDeviceConfig)
	return runtime, nil
}

// Run starts sampling, staging and the dispatch loop, reconnecting on
// every disconnect. It returns ErrUpdateRequested when the server
// announced a newer edge version, or the context error on shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.manager.Setup(); err != nil {
		return err
	}

	if err := r.connectRetry.Execute(ctx, r.client.Connect); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		r.manager.Run(loopCtx)
	}()
	go func() {
		defer wg.Done()
		r.stageLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		r.pingLoop(loopCtx)
	}()
	defer wg.Wait()

	for {
		err := r.handler.Listen(ctx)

		if r.handlers.updateRequested.Load() {
			r.logger.Info("shutting down for software update")
			//nolint:errcheck // Connection is torn down for the update anyway
			r.client.Disconnect()
			return ErrUpdateRequested
		}

		switch {
		case err == nil:
			// Stopped explicitly.
			return nil
		case errors.Is(err, edge.ErrDisconnected):
			r.logger.Warn("connection lost, reconnecting")
			if err := r.connectRetry.Execute(ctx, r.client.Connect); err != nil {
				return err
			}
		default:
			// Context cancellation.
			return err
		}
	}
}

// sendDeviceConfig announces the configured drivers. Fired after every
// successful connect so the server can answer with the current signal
// identity map.
func (r *Runtime) sendDeviceConfig(ctx context.Context, p edge.Protocol) error {
	return p.Send(ctx, edge.Message{
		Type:    edge.MessageTypeDeviceConfig,
		Payload: &edge.DeviceConfigPayload{Drivers: r.manager.Metadata()},
	})
}

// stageLoop periodically stages a page of buffered samples and ships
// it. Send errors are left alone: the staged rows turn stale after the
// staging timeout and get re-sent, which is the at-least-once path.
func (r *Runtime) stageLoop(ctx context.Context) {
	ticker := time.NewTicker(r.stageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		payload, err := r.box.Stage(ctx, blackbox.DefaultStageValues)
		if err != nil {
			r.logger.Error("staging samples failed", "error", err)
			continue
		}
		if payload == nil {
			continue
		}

		msg := edge.Message{Type: edge.MessageTypeDeviceData, Payload: payload}
		if err := r.handler.Send(ctx, msg); err != nil {
			r.logger.Warn("sending staged batch failed",
				"staging_id", payload.StagingID, "error", err)
		}
	}
}

// pingLoop sends a PING every minute. The reply keeps the server's
// last-seen stamp fresh for devices that rarely produce data.
func (r *Runtime) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !r.client.IsConnected() {
			continue
		}
		if err := r.handler.Send(ctx, edge.Message{Type: edge.MessageTypePing}); err != nil {
			r.logger.Debug("ping failed", "error", err)
		}
	}
}
