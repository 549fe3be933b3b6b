package environment

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/advertising"
)

// DefaultProbeInterval is how often network interfaces are inspected
const DefaultProbeInterval = 10 * time.Second

// NetworkProbe derives the connection type from the host's network
// interfaces and feeds it into a Settable
type NetworkProbe struct {
	target     *Settable
	interval   time.Duration
	clock      clock.WithTicker
	interfaces func() ([]net.Interface, error)
}

// ProbeOption configures a NetworkProbe
type ProbeOption func(*NetworkProbe)

// WithProbeInterval sets the polling interval
func WithProbeInterval(interval time.Duration) ProbeOption {
	return func(p *NetworkProbe) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithProbeClock sets the clock driving the polling ticker
func WithProbeClock(clk clock.WithTicker) ProbeOption {
	return func(p *NetworkProbe) {
		p.clock = clk
	}
}

// WithInterfaces replaces the interface lister
func WithInterfaces(list func() ([]net.Interface, error)) ProbeOption {
	return func(p *NetworkProbe) {
		p.interfaces = list
	}
}

// NewNetworkProbe creates a probe updating target
func NewNetworkProbe(target *Settable, opts ...ProbeOption) *NetworkProbe {
	p := &NetworkProbe{
		target:     target,
		interval:   DefaultProbeInterval,
		clock:      clock.RealClock{},
		interfaces: net.Interfaces,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run probes immediately and then on every tick until ctx is done
func (p *NetworkProbe) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			p.Probe()
		}
	}
}

// Probe inspects the interfaces once
func (p *NetworkProbe) Probe() {
	ifaces, err := p.interfaces()
	if err != nil {
		slog.Warn("Failed to list network interfaces", "error", err)
		return
	}
	connection := ClassifyInterfaces(ifaces)
	if connection != p.target.ConnectionType() {
		slog.Info("Network connection changed", "connection", connection)
	}
	p.target.SetConnection(connection)
}

// ClassifyInterfaces returns the best connection among the up, non-loopback
// interfaces. Ethernet beats wifi, which beats cellular.
func ClassifyInterfaces(ifaces []net.Interface) advertising.ConnectionType {
	rank := map[advertising.ConnectionType]int{
		advertising.ConnectionNone:     0,
		advertising.ConnectionUnknown:  1,
		advertising.ConnectionCellular: 2,
		advertising.ConnectionWifi:     3,
		advertising.ConnectionEthernet: 4,
	}

	best := advertising.ConnectionNone
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if c := classifyName(iface.Name); rank[c] > rank[best] {
			best = c
		}
	}
	return best
}

func classifyName(name string) advertising.ConnectionType {
	switch {
	case strings.HasPrefix(name, "wl"):
		return advertising.ConnectionWifi
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return advertising.ConnectionEthernet
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ppp"):
		return advertising.ConnectionCellular
	default:
		return advertising.ConnectionUnknown
	}
}
