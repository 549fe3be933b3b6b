// Package scheduler provides the retryable-task primitive used by contact sync.
//
// A Scheduler decides when a task should run and hands the attempt to its
// owner through the OnRequestReady callback. The owner reports the outcome with
// HandleResult. Retry and backoff live entirely here; owners never retry.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/invariant"
	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/status"
)

const (
	// DefaultInitialBackoff is the first retry delay after a failure
	DefaultInitialBackoff = 30 * time.Second
	// DefaultMaxBackoff caps the retry delay
	DefaultMaxBackoff = time.Hour
	// DefaultMultiplier grows the retry delay after each consecutive failure
	DefaultMultiplier = 2.0
)

// Scheduler manages when a retryable task runs
type Scheduler interface {
	// Start enables scheduling. Requests made while stopped are kept and
	// honored once started.
	Start()
	// Stop disables scheduling. An outstanding attempt still needs a result.
	Stop()
	// IsRunning reports whether the scheduler is started
	IsRunning() bool
	// MakeImmediateRequest asks for an attempt as soon as possible. While an
	// attempt is outstanding the request is held until HandleResult.
	MakeImmediateRequest()
	// HandleResult reports the outcome of the outstanding attempt
	HandleResult(success bool)
	// NotifyConnectivityChanged re-evaluates a request deferred while offline
	NotifyConnectivityChanged(online bool)
	// IsWaitingForResult reports whether an attempt is outstanding
	IsWaitingForResult() bool
	// NumConsecutiveFailures returns the failures since the last success
	NumConsecutiveFailures() int
	// LastSuccessTime returns the time of the last successful attempt
	LastSuccessTime() (time.Time, bool)
	// TimeUntilNextRequest returns the delay before the next attempt, if one is scheduled
	TimeUntilNextRequest() (time.Duration, bool)
}

// ConnectivityChecker reports whether the network is reachable
type ConnectivityChecker interface {
	IsOnline() bool
}

// Option configures a scheduler
type Option func(*options)

type options struct {
	clock          clock.WithDelayedExecution
	persistence    status.StatusPersistence
	retryFailures  bool
	connectivity   ConnectivityChecker
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

// WithClock sets the clock used for timing. Defaults to the real clock
func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithStatusPersistence sets where the task status is persisted.
// Defaults to an in-memory persistence
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(o *options) {
		o.persistence = p
	}
}

// WithRetryFailures controls whether failed attempts are retried with backoff
func WithRetryFailures(retry bool) Option {
	return func(o *options) {
		o.retryFailures = retry
	}
}

// WithConnectivity defers attempts while checker reports offline
func WithConnectivity(checker ConnectivityChecker) Option {
	return func(o *options) {
		o.connectivity = checker
	}
}

// WithBackoff configures the exponential retry delay
func WithBackoff(initial, maxDelay time.Duration, multiplier float64) Option {
	return func(o *options) {
		if initial > 0 {
			o.initialBackoff = initial
		}
		if maxDelay > 0 {
			o.maxBackoff = maxDelay
		}
		if multiplier >= 1 {
			o.multiplier = multiplier
		}
	}
}

// taskScheduler is the shared implementation behind the periodic and
// on-demand schedulers. All methods run on the owner's sequence.
type taskScheduler struct {
	name           string
	interval       time.Duration
	runner         sequence.Runner
	token          *sequence.Token
	onRequestReady func()
	opts           options

	status     status.TaskStatus
	running    bool
	waiting    bool
	backoff    *backoff.ExponentialBackOff
	retryDelay time.Duration

	timer      clock.Timer
	timerEpoch uint64
}

// NewPeriodic creates a scheduler that requests an attempt every interval
// after the last success, in addition to immediate requests
func NewPeriodic(
	name string,
	interval time.Duration,
	runner sequence.Runner,
	onRequestReady func(),
	opts ...Option,
) Scheduler {
	return newTaskScheduler(name, interval, runner, onRequestReady, opts...)
}

// NewOnDemand creates a scheduler that only runs on immediate requests and
// failure retries
func NewOnDemand(
	name string,
	runner sequence.Runner,
	onRequestReady func(),
	opts ...Option,
) Scheduler {
	return newTaskScheduler(name, 0, runner, onRequestReady, opts...)
}

func newTaskScheduler(
	name string,
	interval time.Duration,
	runner sequence.Runner,
	onRequestReady func(),
	opts ...Option,
) *taskScheduler {
	o := options{
		clock:          clock.RealClock{},
		retryFailures:  true,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		multiplier:     DefaultMultiplier,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.persistence == nil {
		o.persistence = status.NewMemoryStatusPersistence()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initialBackoff
	b.MaxInterval = o.maxBackoff
	b.Multiplier = o.multiplier
	b.RandomizationFactor = 0

	s := &taskScheduler{
		name:           name,
		interval:       interval,
		runner:         runner,
		token:          sequence.NewToken(),
		onRequestReady: onRequestReady,
		opts:           o,
		backoff:        b,
	}
	s.loadStatus()
	return s
}

func (s *taskScheduler) loadStatus() {
	loaded, err := s.opts.persistence.LoadStatus(context.Background(), s.name)
	if err != nil {
		slog.Warn("Failed to load scheduler status, starting fresh", "task", s.name, "error", err)
		loaded = &status.TaskStatus{}
	}
	s.status = *loaded

	// An attempt that was running when the process stopped never reported a
	// result. Count it as a failure so it is retried.
	if s.status.Phase == status.TaskPhaseRunning {
		slog.Warn("Previous attempt was interrupted, counting it as failed", "task", s.name)
		s.status.Phase = status.TaskPhaseFailed
		s.status.ConsecutiveFailures++
		s.persist()
	}
	if s.status.Phase == "" {
		s.status.Phase = status.TaskPhaseIdle
	}

	s.backoff.Reset()
	for i := 0; i < s.status.ConsecutiveFailures; i++ {
		s.retryDelay = s.backoff.NextBackOff()
	}
}

func (s *taskScheduler) Start() {
	if s.running {
		return
	}
	s.running = true
	slog.Debug("Scheduler started", "task", s.name)
	s.reschedule()
}

func (s *taskScheduler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.cancelTimer()
	slog.Debug("Scheduler stopped", "task", s.name)
}

func (s *taskScheduler) IsRunning() bool {
	return s.running
}

func (s *taskScheduler) MakeImmediateRequest() {
	if !s.status.HasPendingImmediateRequest {
		s.status.HasPendingImmediateRequest = true
		s.persist()
	}
	s.reschedule()
}

func (s *taskScheduler) HandleResult(success bool) {
	invariant.Check(s.waiting, "scheduler result reported with no outstanding attempt", "task", s.name)
	s.waiting = false

	if success {
		now := s.opts.clock.Now()
		s.status.LastSuccess = &now
		s.status.ConsecutiveFailures = 0
		s.status.Phase = status.TaskPhaseIdle
		s.backoff.Reset()
		s.retryDelay = 0
	} else {
		s.status.ConsecutiveFailures++
		s.status.Phase = status.TaskPhaseFailed
		s.retryDelay = s.backoff.NextBackOff()
		slog.Info("Scheduled task failed",
			"task", s.name,
			"consecutive_failures", s.status.ConsecutiveFailures,
			"retry_in", s.retryDelay)
	}
	s.persist()
	s.reschedule()
}

func (s *taskScheduler) IsWaitingForResult() bool {
	return s.waiting
}

func (s *taskScheduler) NumConsecutiveFailures() int {
	return s.status.ConsecutiveFailures
}

func (s *taskScheduler) LastSuccessTime() (time.Time, bool) {
	if s.status.LastSuccess == nil {
		return time.Time{}, false
	}
	return *s.status.LastSuccess, true
}

func (s *taskScheduler) TimeUntilNextRequest() (time.Duration, bool) {
	if !s.running || s.waiting {
		return 0, false
	}
	if s.status.HasPendingImmediateRequest {
		return 0, true
	}

	now := s.opts.clock.Now()
	if s.status.ConsecutiveFailures > 0 && s.opts.retryFailures {
		return untilDeadline(now, s.status.LastAttempt, s.retryDelay), true
	}

	if s.interval > 0 {
		if s.status.LastSuccess == nil {
			return 0, true
		}
		return untilDeadline(now, s.status.LastSuccess, s.interval), true
	}

	return 0, false
}

func (s *taskScheduler) NotifyConnectivityChanged(online bool) {
	if !online {
		return
	}
	s.reschedule()
}

func untilDeadline(now time.Time, since *time.Time, delay time.Duration) time.Duration {
	if since == nil {
		return 0
	}
	remaining := since.Add(delay).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *taskScheduler) reschedule() {
	s.cancelTimer()

	delay, ok := s.TimeUntilNextRequest()
	if !ok {
		return
	}

	s.timerEpoch++
	epoch := s.timerEpoch
	s.timer = s.opts.clock.AfterFunc(delay, func() {
		s.token.Post(s.runner, func() {
			if epoch != s.timerEpoch {
				return
			}
			s.onTimerFired()
		})
	})
}

func (s *taskScheduler) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// A fired timer may already have posted its task; bumping the epoch turns it into a no-op.
	s.timerEpoch++
}

func (s *taskScheduler) onTimerFired() {
	s.timer = nil
	if !s.running || s.waiting {
		return
	}

	if s.opts.connectivity != nil && !s.opts.connectivity.IsOnline() {
		slog.Info("Deferring scheduled task until network is online", "task", s.name)
		return
	}

	now := s.opts.clock.Now()
	s.waiting = true
	s.status.LastAttempt = &now
	s.status.HasPendingImmediateRequest = false
	s.status.Phase = status.TaskPhaseRunning
	s.persist()

	slog.Debug("Scheduled task ready", "task", s.name)
	s.onRequestReady()
}

func (s *taskScheduler) persist() {
	statusCopy := s.status
	if err := s.opts.persistence.SaveStatus(context.Background(), s.name, &statusCopy); err != nil {
		slog.Error("Failed to persist scheduler status", "task", s.name, "error", err)
	}
}
