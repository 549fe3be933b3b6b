// Package schedulertest provides a scheduler whose requests are fired by the
// test and whose reported results can be inspected.
package schedulertest

import (
	"time"

	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
)

// Scheduler is a manually driven scheduler.Scheduler
type Scheduler struct {
	OnReady           func()
	Running           bool
	Waiting           bool
	ImmediateRequests int
	Results           []bool
	// Connectivity notifications in order
	Connectivity []bool
}

// Start implements scheduler.Scheduler
func (s *Scheduler) Start() { s.Running = true }

// Stop implements scheduler.Scheduler
func (s *Scheduler) Stop() { s.Running = false }

// IsRunning implements scheduler.Scheduler
func (s *Scheduler) IsRunning() bool { return s.Running }

// MakeImmediateRequest implements scheduler.Scheduler
func (s *Scheduler) MakeImmediateRequest() { s.ImmediateRequests++ }

// NotifyConnectivityChanged implements scheduler.Scheduler
func (s *Scheduler) NotifyConnectivityChanged(online bool) {
	s.Connectivity = append(s.Connectivity, online)
}

// IsWaitingForResult implements scheduler.Scheduler
func (s *Scheduler) IsWaitingForResult() bool { return s.Waiting }

// NumConsecutiveFailures implements scheduler.Scheduler
func (*Scheduler) NumConsecutiveFailures() int { return 0 }

// HandleResult implements scheduler.Scheduler and records success
func (s *Scheduler) HandleResult(success bool) {
	s.Waiting = false
	s.Results = append(s.Results, success)
}

// LastSuccessTime implements scheduler.Scheduler
func (*Scheduler) LastSuccessTime() (time.Time, bool) { return time.Time{}, false }

// TimeUntilNextRequest implements scheduler.Scheduler
func (*Scheduler) TimeUntilNextRequest() (time.Duration, bool) { return 0, false }

// Fire marks the scheduler as waiting and runs the request callback
func (s *Scheduler) Fire() {
	s.Waiting = true
	s.OnReady()
}

// Factory records every scheduler it creates by name
type Factory struct {
	Periodic  map[string]*Scheduler
	OnDemand  map[string]*Scheduler
	Intervals map[string]time.Duration
}

// NewFactory returns an empty factory
func NewFactory() *Factory {
	return &Factory{
		Periodic:  make(map[string]*Scheduler),
		OnDemand:  make(map[string]*Scheduler),
		Intervals: make(map[string]time.Duration),
	}
}

// CreatePeriodicScheduler implements scheduler.Factory
func (f *Factory) CreatePeriodicScheduler(name string, interval time.Duration, onReady func()) scheduler.Scheduler {
	s := &Scheduler{OnReady: onReady}
	f.Periodic[name] = s
	f.Intervals[name] = interval
	return s
}

// CreateOnDemandScheduler implements scheduler.Factory
func (f *Factory) CreateOnDemandScheduler(name string, onReady func()) scheduler.Scheduler {
	s := &Scheduler{OnReady: onReady}
	f.OnDemand[name] = s
	return s
}

var (
	_ scheduler.Scheduler = (*Scheduler)(nil)
	_ scheduler.Factory   = (*Factory)(nil)
)
