// Package api provides the HTTP REST API and relay WebSocket endpoint for
// LabGate Core.
//
// It exposes credential login, pairing session introspection, the audit
// trail, and system management endpoints, and terminates the WebSocket
// connections the relay pairs desktops and mobiles over.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labgate/labgate-core/internal/audit"
	"github.com/labgate/labgate-core/internal/auth"
	"github.com/labgate/labgate-core/internal/infrastructure/config"
	"github.com/labgate/labgate-core/internal/infrastructure/database"
	"github.com/labgate/labgate-core/internal/infrastructure/logging"
	"github.com/labgate/labgate-core/internal/infrastructure/mqtt"
	"github.com/labgate/labgate-core/internal/relay"
	"github.com/labgate/labgate-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Auth        config.AuthConfig
	Logger      *logging.Logger
	DB          *database.DB
	Registry    *relay.Registry
	Store       *relay.Store
	RelayRouter *relay.Router
	AuthService *auth.Service
	Labs        auth.LabRepository
	Audit       audit.Repository
	MQTT        *mqtt.Client      // optional
	Telemetry   *telemetry.Client // optional
	Version     string
}

// Server is the HTTP API server for LabGate Core.
//
// It manages the HTTP listener, routes, middleware, and the relay
// WebSocket endpoint. The server is created with New() and started with
// Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	authCfg     config.AuthConfig
	logger      *logging.Logger
	db          *database.DB
	registry    *relay.Registry
	store       *relay.Store
	relayRouter *relay.Router
	authService *auth.Service
	labs        auth.LabRepository
	audit       audit.Repository
	mqtt        *mqtt.Client
	telemetry   *telemetry.Client
	version     string
	startTime   time.Time
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil || deps.Store == nil || deps.RelayRouter == nil {
		return nil, fmt.Errorf("relay registry, store and router are required")
	}
	if deps.AuthService == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	// MQTT and telemetry are optional; the relay functions without them.

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		authCfg:     deps.Auth,
		logger:      deps.Logger,
		db:          deps.DB,
		registry:    deps.Registry,
		store:       deps.Store,
		relayRouter: deps.RelayRouter,
		authService: deps.AuthService,
		labs:        deps.Labs,
		audit:       deps.Audit,
		mqtt:        deps.MQTT,
		telemetry:   deps.Telemetry,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections. Open WebSocket connections are
// closed by the listener teardown; their read pumps detach the sessions.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
