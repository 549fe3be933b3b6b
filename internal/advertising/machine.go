package advertising

import (
	"context"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/sharing"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

// Snapshot is the machine's state as last evaluated
type Snapshot struct {
	Session    Session                    `json:"session"`
	Reason     Reason                     `json:"reason"`
	Conditions Conditions                 `json:"conditions"`
	Surfaces   map[SurfaceID]SurfaceState `json:"-"`
}

// Option configures a Machine
type Option func(*Machine)

// WithDeviceName sets the source of the advertised device name. Without it
// the name is hidden.
func WithDeviceName(name func() string) Option {
	return func(m *Machine) {
		m.deviceName = name
	}
}

// WithMetrics records transitions
func WithMetrics(metrics *telemetry.AdvertisingMetrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// Machine keeps the transport's advertising state in line with Evaluate.
// All methods must be called on the machine's sequence.
type Machine struct {
	runner sequence.Runner
	token  *sequence.Token

	env        Environment
	prefs      Preferences
	transport  Transport
	payloads   certificates.PayloadProvider
	deviceName func() string
	metrics    *telemetry.AdvertisingMetrics

	scanning     bool
	transferring bool
	surfaces     map[SurfaceID]SurfaceState

	session    Session
	visibility sharing.Visibility
	reason     Reason
	conditions Conditions
	// Last transition reported to metrics
	recorded Session
	attempt  int
	// Set once Shutdown has been called and cleared when advertising restarts
	shutDown bool
}

// NewMachine creates a machine in the NotAdvertising state. Call Invalidate
// to perform the first evaluation.
func NewMachine(
	runner sequence.Runner,
	env Environment,
	prefs Preferences,
	transport Transport,
	payloads certificates.PayloadProvider,
	opts ...Option,
) *Machine {
	m := &Machine{
		runner:     runner,
		token:      sequence.NewToken(),
		env:        env,
		prefs:      prefs,
		transport:  transport,
		payloads:   payloads,
		deviceName: func() string { return "" },
		surfaces:   make(map[SurfaceID]SurfaceState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close stops advertising and drops pending transport callbacks
func (m *Machine) Close() {
	m.stop()
	m.token.Invalidate()
}

// Session returns the current session
func (m *Machine) Session() Session {
	return m.session
}

// LastReason returns the reason for the current session
func (m *Machine) LastReason() Reason {
	return m.reason
}

// Snapshot returns the current session together with the conditions it was
// derived from
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Session:    m.session,
		Reason:     m.reason,
		Conditions: m.conditions,
		Surfaces:   maps.Clone(m.surfaces),
	}
}

// Invalidate re-evaluates every condition and updates the transport
func (m *Machine) Invalidate() {
	m.evaluate(false)
}

func (m *Machine) evaluate(forceRestart bool) {
	c := m.gatherConditions()
	m.conditions = c
	target, reason := Evaluate(c)

	switch {
	case reason == ReasonDisabled:
		m.stop()
		if !m.shutDown {
			slog.Info("Shutting down connections because sharing is disabled")
			m.transport.Shutdown()
			m.shutDown = true
		}
		m.setReason(reason)
		return
	case !target.Active:
		m.stop()
		m.setReason(reason)
		return
	case !forceRestart && target == m.session && c.Visibility == m.visibility:
		slog.Debug("Advertising target unchanged", "session", m.session)
		return
	}

	payload, err := m.payloads.AdvertisementPayload(c.Visibility)
	if err != nil {
		slog.Warn("Not advertising without a certificate",
			"visibility", c.Visibility, "error", err)
		m.stop()
		m.setReason(ReasonNoCertificate)
		return
	}
	info, err := EncodeEndpointInfo(payload, m.deviceName())
	if err != nil {
		slog.Error("Failed to encode endpoint info", "error", err)
		m.stop()
		m.setReason(ReasonStartFailed)
		return
	}

	m.stop()
	m.start(target, c.Visibility, info)
}

func (m *Machine) start(target Session, visibility sharing.Visibility, info []byte) {
	m.attempt++
	attempt := m.attempt
	m.session = target
	m.visibility = visibility
	m.shutDown = false
	m.setReason(ReasonAdvertising)

	slog.Info("Starting advertising",
		"power_level", target.PowerLevel,
		"data_usage", target.DataUsage,
		"visibility", visibility)
	m.transport.StartAdvertising(info, target.PowerLevel, target.DataUsage, func(err error) {
		m.token.Post(m.runner, func() {
			if err == nil {
				return
			}
			slog.Warn("Advertising failed to start", "error", err)
			// A late failure only ends the attempt it belongs to
			if attempt != m.attempt || !m.session.Active {
				return
			}
			m.stop()
			m.setReason(ReasonStartFailed)
		})
	})
}

func (m *Machine) stop() {
	if !m.session.Active {
		return
	}
	m.transport.StopAdvertising()
	slog.Info("Stopped advertising", "session", m.session)
	m.session = Session{}
	m.visibility = sharing.VisibilityUnknown
}

func (m *Machine) setReason(reason Reason) {
	if reason == m.reason && m.session == m.recorded {
		return
	}
	m.reason = reason
	m.recorded = m.session
	state := "not_advertising"
	if m.session.Active {
		state = "advertising"
	}
	slog.Debug("Advertising state changed", "session", m.session, "reason", reason)
	m.metrics.RecordTransition(context.Background(), state, string(reason))
}

func (m *Machine) gatherConditions() Conditions {
	c := Conditions{
		BluetoothPresent: m.env.IsBluetoothPresent(),
		BluetoothPowered: m.env.IsBluetoothPowered(),
		Connection:       m.env.ConnectionType(),
		ScreenLocked:     m.env.IsScreenLocked(),
		Enabled:          m.prefs.IsEnabled(),
		Visibility:       m.prefs.Visibility(),
		DataUsage:        m.prefs.DataUsage(),
		Scanning:         m.scanning,
		Transferring:     m.transferring,
	}
	for _, state := range m.surfaces {
		if state == SurfaceForeground {
			c.ForegroundSurfaces++
		} else {
			c.BackgroundSurfaces++
		}
	}
	return c
}

// RegisterReceiveSurface registers a surface under a new id
func (m *Machine) RegisterReceiveSurface(state SurfaceState) (SurfaceID, error) {
	id := SurfaceID(uuid.NewString())
	if err := m.RegisterReceiveSurfaceWithID(id, state); err != nil {
		return "", err
	}
	return id, nil
}

// RegisterReceiveSurfaceWithID registers a surface under id
func (m *Machine) RegisterReceiveSurfaceWithID(id SurfaceID, state SurfaceState) error {
	if _, ok := m.surfaces[id]; ok {
		return ErrAlreadyRegistered
	}
	m.surfaces[id] = state
	slog.Debug("Receive surface registered", "id", id, "state", state)
	m.Invalidate()
	return nil
}

// UnregisterReceiveSurface removes the surface registered under id
func (m *Machine) UnregisterReceiveSurface(id SurfaceID) error {
	if _, ok := m.surfaces[id]; !ok {
		return ErrUnknownSurface
	}
	delete(m.surfaces, id)
	slog.Debug("Receive surface unregistered", "id", id)
	m.Invalidate()
	return nil
}

// SetScanning records whether discovery is running
func (m *Machine) SetScanning(scanning bool) {
	m.scanning = scanning
	m.Invalidate()
}

// SetTransferring records whether a transfer is in progress
func (m *Machine) SetTransferring(transferring bool) {
	m.transferring = transferring
	m.Invalidate()
}

// OnScreenLockChanged re-evaluates after the screen is locked or unlocked
func (m *Machine) OnScreenLockChanged() { m.Invalidate() }

// OnNetworkChanged re-evaluates after the network connection changed
func (m *Machine) OnNetworkChanged() { m.Invalidate() }

// OnBluetoothChanged re-evaluates after bluetooth presence or power changed
func (m *Machine) OnBluetoothChanged() { m.Invalidate() }

// OnPreferencesChanged re-evaluates after a sharing preference changed
func (m *Machine) OnPreferencesChanged() { m.Invalidate() }

// OnCertificatesChanged re-evaluates and, if advertising, restarts with a
// payload from the new certificates
func (m *Machine) OnCertificatesChanged() {
	m.evaluate(m.session.Active)
}

// OnPrivateCertificatesChanged implements certificates.Observer
func (m *Machine) OnPrivateCertificatesChanged() {
	m.OnCertificatesChanged()
}

// OnPublicCertificatesDownloaded implements certificates.Observer
func (*Machine) OnPublicCertificatesDownloaded() {}

var _ certificates.Observer = (*Machine)(nil)
