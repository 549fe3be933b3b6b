// Package connections owns the connection layer used for advertising. Radio
// binding is platform specific and not provided here; Manager tracks the
// advertisement that would be broadcast and logs every request.
package connections

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/sharing"
)

// ErrClosed is reported to StartAdvertising after Close
var ErrClosed = errors.New("connections manager is closed")

// Advertisement is the advertisement currently being broadcast
type Advertisement struct {
	EndpointInfo []byte                 `json:"endpointInfo"`
	DeviceName   string                 `json:"deviceName,omitempty"`
	PowerLevel   advertising.PowerLevel `json:"powerLevel"`
	DataUsage    sharing.DataUsage      `json:"dataUsage"`
	Since        time.Time              `json:"since"`
}

// Stats counts requests made to the manager
type Stats struct {
	Starts    int `json:"starts"`
	Stops     int `json:"stops"`
	Shutdowns int `json:"shutdowns"`
}

// Manager implements advertising.Transport. It is owned by one session and
// closed when that session ends.
type Manager struct {
	mu      sync.Mutex
	clock   clock.PassiveClock
	current *Advertisement
	stats   Stats
	closed  bool
}

// NewManager returns an idle manager
func NewManager(clk clock.PassiveClock) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{clock: clk}
}

// StartAdvertising implements advertising.Transport
func (m *Manager) StartAdvertising(
	endpointInfo []byte,
	power advertising.PowerLevel,
	dataUsage sharing.DataUsage,
	done func(error),
) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		done(ErrClosed)
		return
	}

	ad := &Advertisement{
		EndpointInfo: slices.Clone(endpointInfo),
		PowerLevel:   power,
		DataUsage:    dataUsage,
		Since:        m.clock.Now(),
	}
	if decoded, err := advertising.DecodeEndpointInfo(endpointInfo); err == nil {
		ad.DeviceName = decoded.DeviceName
	}
	m.current = ad
	m.stats.Starts++
	m.mu.Unlock()

	slog.Info("Advertising started",
		"power_level", power,
		"data_usage", dataUsage,
		"endpoint_info_bytes", len(endpointInfo))
	done(nil)
}

// StopAdvertising implements advertising.Transport
func (m *Manager) StopAdvertising() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Stops++
	if m.current == nil {
		return
	}
	slog.Info("Advertising stopped", "duration", m.clock.Since(m.current.Since))
	m.current = nil
}

// Shutdown implements advertising.Transport. The manager stays usable.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Shutdowns++
	m.current = nil
	slog.Info("Connection layer shut down")
}

// Close shuts the manager down for good
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.current = nil
	return nil
}

// Advertising returns the current advertisement, if any
func (m *Manager) Advertising() (Advertisement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Advertisement{}, false
	}
	ad := *m.current
	ad.EndpointInfo = slices.Clone(ad.EndpointInfo)
	return ad, true
}

// ShutdownCount returns how often Shutdown was called
func (m *Manager) ShutdownCount() int {
	return m.Stats().Shutdowns
}

// Stats returns request counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

var _ advertising.Transport = (*Manager)(nil)
