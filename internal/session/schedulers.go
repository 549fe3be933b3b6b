package session

import (
	"log/slog"
	"time"

	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
)

// connectivity reports whether the device has a network
type connectivity interface {
	IsOnline() bool
}

// trackingFactory remembers every scheduler it creates so network changes
// can be forwarded to all of them. It is an environment.Listener.
type trackingFactory struct {
	scheduler.Factory
	network connectivity
	created map[string]scheduler.Scheduler
	online  bool
}

func newTrackingFactory(runner sequence.Runner, network connectivity, opts ...scheduler.Option) *trackingFactory {
	return &trackingFactory{
		Factory: scheduler.NewFactory(runner, opts...),
		network: network,
		created: make(map[string]scheduler.Scheduler),
		online:  network.IsOnline(),
	}
}

func (f *trackingFactory) CreatePeriodicScheduler(name string, interval time.Duration, onRequestReady func()) scheduler.Scheduler {
	s := f.Factory.CreatePeriodicScheduler(name, interval, onRequestReady)
	f.created[name] = s
	return s
}

func (f *trackingFactory) CreateOnDemandScheduler(name string, onRequestReady func()) scheduler.Scheduler {
	s := f.Factory.CreateOnDemandScheduler(name, onRequestReady)
	f.created[name] = s
	return s
}

// Scheduler returns the scheduler created under name
func (f *trackingFactory) Scheduler(name string) (scheduler.Scheduler, bool) {
	s, ok := f.created[name]
	return s, ok
}

// OnNetworkChanged forwards connectivity transitions to every scheduler
func (f *trackingFactory) OnNetworkChanged() {
	online := f.network.IsOnline()
	if online == f.online {
		return
	}
	f.online = online
	slog.Info("Connectivity changed", "online", online, "schedulers", len(f.created))
	for _, s := range f.created {
		s.NotifyConnectivityChanged(online)
	}
}

func (*trackingFactory) OnScreenLockChanged() {}

func (*trackingFactory) OnBluetoothChanged() {}
