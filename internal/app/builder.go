package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/nearby-sync/internal/api"
	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/control"
	"github.com/stacklok/nearby-sync/internal/session"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Option configures the daemon builder
type Option func(*daemonConfig) error

type daemonConfig struct {
	config *config.Config

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	sessionOptions []session.Option
}

func baseConfig(opts ...Option) (*daemonConfig, error) {
	cfg := &daemonConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAPIAddress()
	}
	return cfg, nil
}

// NewDaemon builds the session and the HTTP server for the given options
func NewDaemon(ctx context.Context, opts ...Option) (*Daemon, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	sessionOpts := append([]session.Option{
		session.WithConfig(cfg.config),
		session.WithMeterProvider(cfg.meterProvider),
		session.WithTracerProvider(cfg.tracerProvider),
	}, cfg.sessionOptions...)

	s, err := session.New(sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build session: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	d := newDaemon(ctx, cfg.config, s, httpServer)
	d.controller = s
	return d, nil
}

func newDaemon(ctx context.Context, cfg *config.Config, s sessionRunner, server *http.Server) *Daemon {
	daemonCtx, cancel := context.WithCancel(ctx)
	return &Daemon{
		config:      cfg,
		session:     s,
		httpServer:  server,
		ctx:         daemonCtx,
		cancelFunc:  cancel,
		sessionDone: make(chan struct{}),
	}
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Option {
	return func(cfg *daemonConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the configured API address
func WithAddress(addr string) Option {
	return func(cfg *daemonConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}
		if err := validateAddress(addr); err != nil {
			return err
		}
		cfg.address = addr
		return nil
	}
}

func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("address is not a valid host:port: %w", err)
	}
	if port == "" {
		return fmt.Errorf("address has no port: %s", addr)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("address has an invalid port: %w", err)
	}
	return nil
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *daemonConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithMeterProvider enables session and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *daemonConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider enables HTTP and directory tracing
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *daemonConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves a scrape endpoint on /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *daemonConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// WithSessionOptions passes extra options to the session, mostly for tests
func WithSessionOptions(opts ...session.Option) Option {
	return func(cfg *daemonConfig) error {
		cfg.sessionOptions = append(cfg.sessionOptions, opts...)
		return nil
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *daemonConfig, ctrl control.Controller) (*http.Server, error) {
	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Outermost so rejected and timed out requests are still measured
	if b.tracerProvider != nil {
		middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, middlewares...)
	}
	if b.meterProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		if httpMetrics != nil {
			middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      api.NewServer(ctrl, serverOpts...),
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
