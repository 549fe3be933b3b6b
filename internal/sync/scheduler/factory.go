package scheduler

import (
	"time"

	"github.com/stacklok/nearby-sync/internal/sequence"
)

// Factory creates schedulers bound to one sequence with shared options
type Factory interface {
	CreatePeriodicScheduler(name string, interval time.Duration, onRequestReady func()) Scheduler
	CreateOnDemandScheduler(name string, onRequestReady func()) Scheduler
}

type factory struct {
	runner sequence.Runner
	opts   []Option
}

// NewFactory returns a Factory whose schedulers post to runner and share opts
func NewFactory(runner sequence.Runner, opts ...Option) Factory {
	return &factory{runner: runner, opts: opts}
}

func (f *factory) CreatePeriodicScheduler(name string, interval time.Duration, onRequestReady func()) Scheduler {
	return NewPeriodic(name, interval, f.runner, onRequestReady, f.opts...)
}

func (f *factory) CreateOnDemandScheduler(name string, onRequestReady func()) Scheduler {
	return NewOnDemand(name, f.runner, onRequestReady, f.opts...)
}
