package session

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/prefs"
	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/status"
)

// Clock is what the session's schedulers and network probe need from a clock.
// clock.RealClock and the testing FakeClock satisfy it.
type Clock interface {
	clock.WithDelayedExecution
	NewTicker(d time.Duration) clock.Ticker
}

// Option configures a Session
type Option func(*sessionConfig) error

// sessionConfig collects the overrides applied before the session is built.
// Anything left nil is created from config.
type sessionConfig struct {
	config *config.Config

	runner            sequence.Runner
	prefs             prefs.Store
	directory         directory.Client
	transport         advertising.Transport
	publicStore       certificates.PublicStore
	statusPersistence status.StatusPersistence
	clock             Clock

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithConfig sets the configuration. Required.
func WithConfig(c *config.Config) Option {
	return func(cfg *sessionConfig) error {
		if c == nil {
			return fmt.Errorf("config cannot be nil")
		}
		cfg.config = c
		return nil
	}
}

// WithRunner runs the session on r instead of an owned loop. The caller is
// then responsible for draining r.
func WithRunner(r sequence.Runner) Option {
	return func(cfg *sessionConfig) error {
		cfg.runner = r
		return nil
	}
}

// WithPrefs uses store instead of the file store in the data directory. The
// session does not close an injected store.
func WithPrefs(store prefs.Store) Option {
	return func(cfg *sessionConfig) error {
		cfg.prefs = store
		return nil
	}
}

// WithDirectoryClient replaces the HTTP directory client
func WithDirectoryClient(c directory.Client) Option {
	return func(cfg *sessionConfig) error {
		cfg.directory = c
		return nil
	}
}

// WithTransport replaces the connections manager. The session does not shut
// down an injected transport on Close.
func WithTransport(t advertising.Transport) Option {
	return func(cfg *sessionConfig) error {
		cfg.transport = t
		return nil
	}
}

// WithPublicStore replaces the file-backed public certificate store
func WithPublicStore(s certificates.PublicStore) Option {
	return func(cfg *sessionConfig) error {
		cfg.publicStore = s
		return nil
	}
}

// WithStatusPersistence replaces the file-backed task status store
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(cfg *sessionConfig) error {
		cfg.statusPersistence = p
		return nil
	}
}

// WithClock drives schedulers, certificate validity and the network probe
func WithClock(c Clock) Option {
	return func(cfg *sessionConfig) error {
		cfg.clock = c
		return nil
	}
}

// WithMeterProvider enables sync and advertising metrics
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *sessionConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider traces directory RPCs
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *sessionConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}
