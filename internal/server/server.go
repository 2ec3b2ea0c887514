package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/config"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/database"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/influxdb"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
	"github.com/flxdot/carlos-sub000/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	DB          *database.DB
	Devices     *store.DeviceStore
	Timeseries  *store.TimeseriesStore
	Auth        BearerVerifier
	EdgeVersion string

	// Ingest optionally mirrors accepted samples into InfluxDB. Nil
	// disables the mirror.
	Ingest *influxdb.Client

	// Lifecycle optionally receives device connect and disconnect
	// events, typically the MQTT publisher.
	Lifecycle LifecycleNotifier
}

// Server is the HTTP and websocket server devices report to.
//
// It is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	db          *database.DB
	devices     *store.DeviceStore
	timeseries  *store.TimeseriesStore
	auth        BearerVerifier
	ingest      *influxdb.Client
	tokens      *TokenService
	manager     *ConnectionManager
	edgeVersion string
	server      *http.Server
}

// New creates a server with the given dependencies. The server is not
// started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Devices == nil || deps.Timeseries == nil {
		return nil, fmt.Errorf("stores are required")
	}
	if deps.Config.Secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("bearer verifier is required")
	}

	manager := NewConnectionManager(deps.Logger, deps.EdgeVersion)
	if deps.Lifecycle != nil {
		manager.SetNotifier(deps.Lifecycle)
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		db:          deps.DB,
		devices:     deps.Devices,
		timeseries:  deps.Timeseries,
		auth:        deps.Auth,
		ingest:      deps.Ingest,
		tokens:      NewTokenService([]byte(deps.Config.Secret)),
		manager:     manager,
		edgeVersion: deps.EdgeVersion,
	}, nil
}

// Manager returns the connection manager, used by callers that need to
// address connected devices directly.
func (s *Server) Manager() *ConnectionManager { return s.manager }

// Start begins listening for HTTP connections in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server. In-flight requests get up to
// the shutdown timeout to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
