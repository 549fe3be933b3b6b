package advertising

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/nearby-sync/internal/sharing"
)

var (
	// ErrAlreadyRegistered is returned when a receive surface id is reused
	ErrAlreadyRegistered = errors.New("receive surface already registered")
	// ErrUnknownSurface is returned when unregistering an id that is not registered
	ErrUnknownSurface = errors.New("unknown receive surface")
)

// PowerLevel is the radio power used for advertising
type PowerLevel int

// Power levels
const (
	PowerLevelUnknown PowerLevel = iota
	PowerLevelLow
	PowerLevelHigh
)

func (p PowerLevel) String() string {
	switch p {
	case PowerLevelLow:
		return "low"
	case PowerLevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (p PowerLevel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ConnectionType is the kind of the active IP network
type ConnectionType int

// Connection types
const (
	ConnectionUnknown ConnectionType = iota
	ConnectionNone
	ConnectionWifi
	ConnectionEthernet
	ConnectionCellular
)

var connectionNames = map[ConnectionType]string{
	ConnectionUnknown:  "unknown",
	ConnectionNone:     "none",
	ConnectionWifi:     "wifi",
	ConnectionEthernet: "ethernet",
	ConnectionCellular: "cellular",
}

func (c ConnectionType) String() string {
	if name, ok := connectionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("connection(%d)", int(c))
}

// IsLAN reports whether the connection can carry nearby LAN traffic
func (c ConnectionType) IsLAN() bool {
	return c == ConnectionWifi || c == ConnectionEthernet
}

// ParseConnectionType parses the String form of a connection type
func ParseConnectionType(s string) (ConnectionType, error) {
	for c, name := range connectionNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return ConnectionUnknown, fmt.Errorf("unknown connection type %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (c ConnectionType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ConnectionType) UnmarshalText(text []byte) error {
	parsed, err := ParseConnectionType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SurfaceState tells whether a receive surface is in the foreground
type SurfaceState int

// Surface states
const (
	SurfaceBackground SurfaceState = iota
	SurfaceForeground
)

func (s SurfaceState) String() string {
	if s == SurfaceForeground {
		return "foreground"
	}
	return "background"
}

// ParseSurfaceState parses "foreground" or "background"
func ParseSurfaceState(s string) (SurfaceState, error) {
	switch strings.ToLower(s) {
	case "foreground":
		return SurfaceForeground, nil
	case "background":
		return SurfaceBackground, nil
	default:
		return SurfaceBackground, fmt.Errorf("unknown surface state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s SurfaceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SurfaceState) UnmarshalText(text []byte) error {
	parsed, err := ParseSurfaceState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SurfaceID identifies a registered receive surface
type SurfaceID string

// Reason explains the current advertising decision
type Reason string

// Reasons, in evaluation priority order
const (
	ReasonNone          Reason = ""
	ReasonScreenLocked  Reason = "screen_locked"
	ReasonNoTransport   Reason = "no_transport"
	ReasonDisabled      Reason = "disabled"
	ReasonScanning      Reason = "scanning"
	ReasonTransferring  Reason = "transferring"
	ReasonNoSurfaces    Reason = "no_receive_surfaces"
	ReasonNotVisible    Reason = "not_visible"
	ReasonNoCertificate Reason = "no_certificate"
	ReasonStartFailed   Reason = "start_failed"
	ReasonAdvertising   Reason = "advertising"
)

// Conditions is everything the advertising decision depends on
type Conditions struct {
	BluetoothPresent   bool               `json:"bluetoothPresent"`
	BluetoothPowered   bool               `json:"bluetoothPowered"`
	Connection         ConnectionType     `json:"connection"`
	ScreenLocked       bool               `json:"screenLocked"`
	Enabled            bool               `json:"enabled"`
	Visibility         sharing.Visibility `json:"visibility"`
	DataUsage          sharing.DataUsage  `json:"dataUsage"`
	Scanning           bool               `json:"scanning"`
	Transferring       bool               `json:"transferring"`
	ForegroundSurfaces int                `json:"foregroundSurfaces"`
	BackgroundSurfaces int                `json:"backgroundSurfaces"`
}

// Session is an advertising state. The zero value is NotAdvertising.
type Session struct {
	Active     bool              `json:"active"`
	PowerLevel PowerLevel        `json:"powerLevel"`
	DataUsage  sharing.DataUsage `json:"dataUsage"`
}

func (s Session) String() string {
	if !s.Active {
		return "NotAdvertising"
	}
	return fmt.Sprintf("Advertising(%s, %s)", s.PowerLevel, s.DataUsage)
}

// Environment reports device conditions. It is polled on every evaluation.
type Environment interface {
	IsBluetoothPresent() bool
	IsBluetoothPowered() bool
	ConnectionType() ConnectionType
	IsScreenLocked() bool
}

// Preferences reports the user's sharing preferences
type Preferences interface {
	IsEnabled() bool
	Visibility() sharing.Visibility
	DataUsage() sharing.DataUsage
}

// Transport broadcasts advertisements. It is owned by the caller and outlives
// no session it is given to.
type Transport interface {
	// StartAdvertising begins broadcasting endpointInfo. done runs once with
	// the outcome, possibly on another goroutine.
	StartAdvertising(endpointInfo []byte, power PowerLevel, dataUsage sharing.DataUsage, done func(error))
	StopAdvertising()
	// Shutdown tears down the whole connection layer, not just advertising
	Shutdown()
}
