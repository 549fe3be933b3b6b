// Package environment provides the device conditions polled by the
// advertising machine and notifies listeners when they change.
package environment

import (
	"sync"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/observer"
	"github.com/stacklok/nearby-sync/internal/sequence"
)

// Listener is notified on the sequence after a condition changed
type Listener interface {
	OnScreenLockChanged()
	OnNetworkChanged()
	OnBluetoothChanged()
}

// State is a full set of conditions
type State struct {
	BluetoothPresent bool                       `json:"bluetoothPresent"`
	BluetoothPowered bool                       `json:"bluetoothPowered"`
	Connection       advertising.ConnectionType `json:"connection"`
	ScreenLocked     bool                       `json:"screenLocked"`
}

// Settable is an advertising.Environment whose conditions are set
// explicitly. Setters may be called from any goroutine; listeners run on the
// sequence.
type Settable struct {
	mu    sync.RWMutex
	state State

	runner sequence.Runner
	// Only touched on the sequence
	listeners observer.List[Listener]
}

// NewSettable returns an environment holding initial, notifying on runner
func NewSettable(runner sequence.Runner, initial State) *Settable {
	return &Settable{runner: runner, state: initial}
}

// AddListener registers l. Must be called on the sequence.
func (s *Settable) AddListener(l Listener) {
	s.listeners.Add(l)
}

// RemoveListener unregisters l. Must be called on the sequence.
func (s *Settable) RemoveListener(l Listener) {
	s.listeners.Remove(l)
}

// State returns the current conditions
func (s *Settable) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsBluetoothPresent implements advertising.Environment
func (s *Settable) IsBluetoothPresent() bool {
	return s.State().BluetoothPresent
}

// IsBluetoothPowered implements advertising.Environment. An absent adapter is
// never powered.
func (s *Settable) IsBluetoothPowered() bool {
	st := s.State()
	return st.BluetoothPresent && st.BluetoothPowered
}

// ConnectionType implements advertising.Environment
func (s *Settable) ConnectionType() advertising.ConnectionType {
	return s.State().Connection
}

// IsScreenLocked implements advertising.Environment
func (s *Settable) IsScreenLocked() bool {
	return s.State().ScreenLocked
}

// IsOnline reports whether any network is connected
func (s *Settable) IsOnline() bool {
	c := s.State().Connection
	return c != advertising.ConnectionNone && c != advertising.ConnectionUnknown
}

// SetBluetooth sets the adapter's presence and power
func (s *Settable) SetBluetooth(present, powered bool) {
	s.Set(func(st *State) {
		st.BluetoothPresent = present
		st.BluetoothPowered = powered
	})
}

// SetConnection sets the active network type
func (s *Settable) SetConnection(c advertising.ConnectionType) {
	s.Set(func(st *State) { st.Connection = c })
}

// SetScreenLocked sets whether the screen is locked
func (s *Settable) SetScreenLocked(locked bool) {
	s.Set(func(st *State) { st.ScreenLocked = locked })
}

// Set applies update and notifies listeners of each condition that changed
func (s *Settable) Set(update func(st *State)) {
	s.mu.Lock()
	before := s.state
	update(&s.state)
	after := s.state
	s.mu.Unlock()

	bluetooth := before.BluetoothPresent != after.BluetoothPresent ||
		before.BluetoothPowered != after.BluetoothPowered
	network := before.Connection != after.Connection
	lock := before.ScreenLocked != after.ScreenLocked
	if !bluetooth && !network && !lock {
		return
	}

	s.runner.Post(func() {
		s.listeners.Notify(func(l Listener) {
			if lock {
				l.OnScreenLockChanged()
			}
			if network {
				l.OnNetworkChanged()
			}
			if bluetooth {
				l.OnBluetoothChanged()
			}
		})
	})
}

var _ advertising.Environment = (*Settable)(nil)
