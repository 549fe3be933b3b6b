// Package session wires the contact sync, certificate and advertising
// components of one device into a single owned unit and manages their
// lifecycle on one sequence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/connections"
	"github.com/stacklok/nearby-sync/internal/device"
	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/environment"
	"github.com/stacklok/nearby-sync/internal/prefs"
	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/sharing"
	"github.com/stacklok/nearby-sync/internal/status"
	pkgsync "github.com/stacklok/nearby-sync/internal/sync"
	"github.com/stacklok/nearby-sync/internal/sync/coordinator"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
	"github.com/stacklok/nearby-sync/internal/sync/state"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

const (
	statusDirName = "status"

	// teardownTimeout bounds the final stop posted to the loop on shutdown
	teardownTimeout = 10 * time.Second
)

// Session owns every component of one device. Unless stated otherwise its
// methods must be called on the session's sequence.
type Session struct {
	config *config.Config

	runner sequence.Runner
	// loop is set when the session owns its sequence
	loop *sequence.Loop

	prefs      prefs.Store
	ownsPrefs  bool
	schedulers *trackingFactory

	device       *device.Manager
	coordinator  coordinator.Coordinator
	storage      *certificates.Storage
	certificates *certificates.Manager
	sharing      *sharing.Preferences
	environment  *environment.Settable
	probe        *environment.NetworkProbe
	transport    advertising.Transport
	connections  *connections.Manager
	machine      *advertising.Machine

	stopObservingPrefs func()
	started            bool
}

// New builds a session from the configuration. Nothing runs until Start.
func New(opts ...Option) (*Session, error) {
	cfg := &sessionConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.clock == nil {
		cfg.clock = clock.RealClock{}
	}

	s := &Session{config: cfg.config, runner: cfg.runner}
	if s.runner == nil {
		s.loop = sequence.NewLoop()
		s.runner = s.loop
	}

	// Release what was opened so far if a later step fails
	built := false
	defer func() {
		if !built {
			_ = s.release()
		}
	}()

	s.prefs = cfg.prefs
	if s.prefs == nil {
		store, err := prefs.NewFileStore(cfg.config.DataDir, prefs.WithRunner(s.runner))
		if err != nil {
			return nil, fmt.Errorf("failed to open preferences: %w", err)
		}
		s.prefs = store
		s.ownsPrefs = true
	}

	client := cfg.directory
	if client == nil {
		clientOpts := []directory.Option{
			directory.WithTimeout(cfg.config.GetRPCTimeout()),
			directory.WithTracerProvider(cfg.tracerProvider),
		}
		if creds := cfg.config.GetDirectoryCredentials(); creds != nil {
			ts, err := creds.TokenSource(context.Background())
			if err != nil {
				return nil, fmt.Errorf("failed to load directory credentials: %w", err)
			}
			clientOpts = append(clientOpts, directory.WithTokenSource(ts))
		}
		client = directory.NewHTTPClient(cfg.config.Directory.Endpoint, clientOpts...)
	}

	var err error
	s.device, err = device.NewManager(s.prefs, client,
		device.WithRPCTimeout(cfg.config.GetRPCTimeout()),
		device.WithDefaultName(cfg.config.DeviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create device manager: %w", err)
	}

	s.environment = environment.NewSettable(s.runner, cfg.config.GetInitialEnvironment())
	s.schedulers = newTrackingFactory(s.runner, s.environment, schedulerOptions(cfg, s.environment)...)

	if err := s.buildSync(cfg, client); err != nil {
		return nil, err
	}
	s.buildCertificates(cfg, client)
	if err := s.buildAdvertising(cfg); err != nil {
		return nil, err
	}

	built = true
	slog.Info("Session created",
		"device_id", s.device.ID(),
		"data_dir", cfg.config.DataDir)
	return s, nil
}

func schedulerOptions(cfg *sessionConfig, env *environment.Settable) []scheduler.Option {
	persistence := cfg.statusPersistence
	if persistence == nil {
		persistence = status.NewFileStatusPersistence(filepath.Join(cfg.config.DataDir, statusDirName))
	}
	initial, maxDelay, multiplier := cfg.config.GetBackoff()

	opts := []scheduler.Option{
		scheduler.WithClock(cfg.clock),
		scheduler.WithStatusPersistence(persistence),
		scheduler.WithBackoff(initial, maxDelay, multiplier),
	}
	if cfg.config.RequireConnectivity() {
		opts = append(opts, scheduler.WithConnectivity(env))
	}
	return opts
}

func (s *Session) buildSync(cfg *sessionConfig, client directory.Client) error {
	syncMetrics, err := telemetry.NewSyncMetrics(cfg.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	downloader := pkgsync.NewDownloader(client, s.device.ID(),
		pkgsync.WithRPCTimeout(cfg.config.GetRPCTimeout()),
		pkgsync.WithPageSize(cfg.config.GetPageSize()))

	s.coordinator = coordinator.New(s.runner, s.schedulers,
		downloader, s.device, state.NewPrefsAllowlistService(s.prefs),
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithDownloadInterval(cfg.config.GetContactsDownloadInterval()),
		coordinator.WithClock(cfg.clock))
	return nil
}

func (s *Session) buildCertificates(cfg *sessionConfig, client directory.Client) {
	public := cfg.publicStore
	if public == nil {
		public = certificates.NewFilePublicStore(cfg.config.DataDir)
	}
	s.storage = certificates.NewStorage(s.runner, s.prefs, public)

	s.certificates = certificates.NewManager(s.runner, s.schedulers, s.storage, client, s.device.ID(),
		certificates.WithClock(cfg.clock),
		certificates.WithDownloadInterval(cfg.config.GetCertificatesDownloadInterval()),
		certificates.WithValidity(cfg.config.GetCertificateValidity()),
		certificates.WithRPCTimeout(cfg.config.GetRPCTimeout()))

	// allow-list removals rotate the selected-contacts certificate and
	// uploads refresh the public catalog
	s.coordinator.AddObserver(s.certificates)
}

func (s *Session) buildAdvertising(cfg *sessionConfig) error {
	advMetrics, err := telemetry.NewAdvertisingMetrics(cfg.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create advertising metrics: %w", err)
	}

	s.sharing = sharing.NewPreferences(s.prefs)

	s.transport = cfg.transport
	if s.transport == nil {
		s.connections = connections.NewManager(cfg.clock)
		s.transport = s.connections
	}

	s.machine = advertising.NewMachine(s.runner, s.environment, s.sharing, s.transport, s.certificates,
		advertising.WithDeviceName(s.device.Name),
		advertising.WithMetrics(advMetrics))

	if interval := cfg.config.GetProbeInterval(); interval > 0 {
		s.probe = environment.NewNetworkProbe(s.environment,
			environment.WithProbeInterval(interval),
			environment.WithProbeClock(cfg.clock))
	}
	return nil
}

// Start starts every component. Must be called on the sequence.
func (s *Session) Start() error {
	if s.started {
		return nil
	}

	enabled, visibility, dataUsage := s.config.GetAdvertisingDefaults()
	if err := s.sharing.SetDefaults(enabled, visibility, dataUsage); err != nil {
		return fmt.Errorf("failed to write sharing defaults: %w", err)
	}

	s.environment.AddListener(s.machine)
	s.environment.AddListener(s.schedulers)
	s.certificates.AddObserver(s.machine)
	s.stopObservingPrefs = s.sharing.Observe(s.machine.OnPreferencesChanged)

	s.certificates.Start()
	s.coordinator.Start()
	s.machine.Invalidate()

	s.started = true
	slog.Info("Session started", "device_id", s.device.ID())
	return nil
}

// Stop stops every component in reverse start order and drops the results
// of in-flight work. A stopped session cannot be restarted. Must be called on
// the sequence.
func (s *Session) Stop() {
	if !s.started {
		return
	}
	s.started = false

	s.machine.Close()
	if s.stopObservingPrefs != nil {
		s.stopObservingPrefs()
	}
	s.certificates.RemoveObserver(s.machine)
	s.environment.RemoveListener(s.schedulers)
	s.environment.RemoveListener(s.machine)

	s.certificates.Close()
	s.coordinator.Close()

	slog.Info("Session stopped")
}

// Run owns the session's loop: it starts the session, runs until ctx is done
// and then stops it. Only valid for sessions without WithRunner.
func (s *Session) Run(ctx context.Context) error {
	if s.loop == nil {
		return fmt.Errorf("session runs on an external sequence")
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop.Run(loopCtx) })
	if s.probe != nil {
		g.Go(func() error { return s.probe.Run(gctx) })
	}

	var startErr error
	if err := sequence.Do(ctx, s.runner, func() { startErr = s.Start() }); err == nil && startErr != nil {
		stopLoop()
		_ = g.Wait()
		return startErr
	}

	<-gctx.Done()

	// The loop outlives ctx so the teardown can run on it
	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := sequence.Do(teardownCtx, s.runner, s.Stop); err != nil {
		slog.Error("Session teardown did not complete", "error", err)
	}
	stopLoop()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the preferences lock, certificate storage and the owned
// transport. Call after Stop. Safe from any goroutine.
func (s *Session) Close() error {
	return s.release()
}

func (s *Session) release() error {
	var errs []error
	if s.storage != nil {
		s.storage.Close()
	}
	if s.connections != nil {
		if err := s.connections.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connections: %w", err))
		}
	}
	if s.ownsPrefs && s.prefs != nil {
		if err := s.prefs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close preferences: %w", err))
		}
		s.prefs = nil
	}
	return errors.Join(errs...)
}

// Runner returns the sequence the session runs on. Safe from any goroutine.
func (s *Session) Runner() sequence.Runner { return s.runner }

// Device returns the local device data
func (s *Session) Device() *device.Manager { return s.device }

// Coordinator returns the contact sync coordinator
func (s *Session) Coordinator() coordinator.Coordinator { return s.coordinator }

// Certificates returns the certificate manager
func (s *Session) Certificates() *certificates.Manager { return s.certificates }

// Sharing returns the user's sharing preferences
func (s *Session) Sharing() *sharing.Preferences { return s.sharing }

// Environment returns the settable device conditions. Safe from any goroutine.
func (s *Session) Environment() *environment.Settable { return s.environment }

// Machine returns the advertising state machine
func (s *Session) Machine() *advertising.Machine { return s.machine }

// Connections returns the owned connections manager, or nil when a transport
// was injected
func (s *Session) Connections() *connections.Manager { return s.connections }

// IsStarted reports whether Start has run
func (s *Session) IsStarted() bool { return s.started }
