package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/status"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeConnectivity struct {
	online bool
}

func (f *fakeConnectivity) IsOnline() bool {
	return f.online
}

type harness struct {
	clock  *testingclock.FakeClock
	runner *sequence.Manual
	fired  int
}

func newHarness() *harness {
	return &harness{
		clock:  testingclock.NewFakeClock(epoch),
		runner: sequence.NewManual(),
	}
}

func (h *harness) onReady() {
	h.fired++
}

func (h *harness) options(extra ...Option) []Option {
	return append([]Option{
		WithClock(h.clock),
		WithBackoff(10*time.Second, time.Minute, 2),
	}, extra...)
}

// advance moves the clock and runs the timer task it is expected to post
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Step(d)
	require.Eventually(t, func() bool { return h.runner.Pending() > 0 }, time.Second, time.Millisecond)
	h.runner.RunUntilIdle()
}

// advanceQuiet moves the clock when no timer is expected to fire
func (h *harness) advanceQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Step(d)
	assert.Never(t, func() bool { return h.runner.Pending() > 0 }, 20*time.Millisecond, time.Millisecond)
	h.runner.RunUntilIdle()
}

func TestPeriodic_FirstRunIsImmediate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewPeriodic("download", time.Hour, h.runner, h.onReady, h.options()...)
	s.Start()

	delay, ok := s.TimeUntilNextRequest()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), delay)

	h.advance(t, 0)
	assert.Equal(t, 1, h.fired)
	assert.True(t, s.IsWaitingForResult())

	_, ok = s.TimeUntilNextRequest()
	assert.False(t, ok, "no request is scheduled while waiting for a result")

	s.HandleResult(true)
	assert.False(t, s.IsWaitingForResult())
	last, ok := s.LastSuccessTime()
	require.True(t, ok)
	assert.Equal(t, epoch, last)

	delay, ok = s.TimeUntilNextRequest()
	require.True(t, ok)
	assert.Equal(t, time.Hour, delay)

	h.advanceQuiet(t, 30*time.Minute)
	assert.Equal(t, 1, h.fired)

	h.advance(t, 30*time.Minute)
	assert.Equal(t, 2, h.fired)
}

func TestImmediateRequestWhileWaitingIsHeld(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewOnDemand("upload", h.runner, h.onReady, h.options()...)
	s.Start()

	s.MakeImmediateRequest()
	h.advance(t, 0)
	require.Equal(t, 1, h.fired)

	s.MakeImmediateRequest()
	s.MakeImmediateRequest()
	h.advanceQuiet(t, time.Minute)
	assert.Equal(t, 1, h.fired, "at most one outstanding request")

	s.HandleResult(true)
	h.advance(t, 0)
	assert.Equal(t, 2, h.fired, "held requests collapse into one attempt")

	s.HandleResult(true)
	h.advanceQuiet(t, time.Minute)
	assert.Equal(t, 2, h.fired)
}

func TestFailureBackoff(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewOnDemand("upload", h.runner, h.onReady, h.options()...)
	s.Start()
	s.MakeImmediateRequest()
	h.advance(t, 0)

	s.HandleResult(false)
	assert.Equal(t, 1, s.NumConsecutiveFailures())
	delay, ok := s.TimeUntilNextRequest()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, delay)

	h.advanceQuiet(t, 9*time.Second)
	h.advance(t, time.Second)
	require.Equal(t, 2, h.fired)

	s.HandleResult(false)
	assert.Equal(t, 2, s.NumConsecutiveFailures())
	delay, ok = s.TimeUntilNextRequest()
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, delay)

	h.advance(t, 20*time.Second)
	s.HandleResult(true)
	assert.Equal(t, 0, s.NumConsecutiveFailures())
	_, ok = s.TimeUntilNextRequest()
	assert.False(t, ok, "on-demand scheduler idles after success")
}

func TestFailureWithoutRetry(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewOnDemand("upload", h.runner, h.onReady, h.options(WithRetryFailures(false))...)
	s.Start()
	s.MakeImmediateRequest()
	h.advance(t, 0)

	s.HandleResult(false)
	assert.Equal(t, 1, s.NumConsecutiveFailures())
	_, ok := s.TimeUntilNextRequest()
	assert.False(t, ok)
}

func TestRequestWhileStoppedIsKept(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewOnDemand("upload", h.runner, h.onReady, h.options()...)

	s.MakeImmediateRequest()
	h.advanceQuiet(t, time.Minute)
	assert.Equal(t, 0, h.fired)
	assert.False(t, s.IsRunning())

	s.Start()
	assert.True(t, s.IsRunning())
	h.advance(t, 0)
	assert.Equal(t, 1, h.fired)
}

func TestStopCancelsPendingTimer(t *testing.T) {
	t.Parallel()

	h := newHarness()
	s := NewPeriodic("download", time.Hour, h.runner, h.onReady, h.options()...)
	s.Start()
	s.Stop()

	h.clock.Step(0)
	h.runner.RunUntilIdle()
	assert.Equal(t, 0, h.fired)
}

func TestConnectivityDefersRequest(t *testing.T) {
	t.Parallel()

	h := newHarness()
	conn := &fakeConnectivity{}
	s := NewOnDemand("upload", h.runner, h.onReady, h.options(WithConnectivity(conn))...)
	s.Start()
	s.MakeImmediateRequest()

	h.advance(t, 0)
	assert.Equal(t, 0, h.fired, "deferred while offline")
	assert.False(t, s.IsWaitingForResult())

	s.NotifyConnectivityChanged(false)
	h.advanceQuiet(t, 0)
	assert.Equal(t, 0, h.fired)

	conn.online = true
	s.NotifyConnectivityChanged(true)
	h.advance(t, 0)
	assert.Equal(t, 1, h.fired)
}

func TestStatusSurvivesRestart(t *testing.T) {
	t.Parallel()

	h := newHarness()
	persistence := status.NewMemoryStatusPersistence()
	opts := h.options(WithStatusPersistence(persistence))

	s := NewOnDemand("upload", h.runner, h.onReady, opts...)
	s.MakeImmediateRequest()

	saved, err := persistence.LoadStatus(context.Background(), "upload")
	require.NoError(t, err)
	assert.True(t, saved.HasPendingImmediateRequest)

	restarted := NewOnDemand("upload", h.runner, h.onReady, opts...)
	restarted.Start()
	h.advance(t, 0)
	assert.Equal(t, 1, h.fired)
}

func TestInterruptedAttemptCountsAsFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	persistence := status.NewMemoryStatusPersistence()
	attempt := epoch.Add(-5 * time.Second)
	require.NoError(t, persistence.SaveStatus(context.Background(), "download", &status.TaskStatus{
		Phase:       status.TaskPhaseRunning,
		LastAttempt: &attempt,
	}))

	s := NewPeriodic("download", time.Hour, h.runner, h.onReady, h.options(WithStatusPersistence(persistence))...)
	assert.Equal(t, 1, s.NumConsecutiveFailures())

	loaded, err := persistence.LoadStatus(context.Background(), "download")
	require.NoError(t, err)
	assert.Equal(t, status.TaskPhaseFailed, loaded.Phase)

	s.Start()
	delay, ok := s.TimeUntilNextRequest()
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, delay, "retry backoff counts from the interrupted attempt")
}

func TestFactory(t *testing.T) {
	t.Parallel()

	h := newHarness()
	f := NewFactory(h.runner, h.options()...)

	periodic := f.CreatePeriodicScheduler("download", time.Hour, h.onReady)
	onDemand := f.CreateOnDemandScheduler("upload", h.onReady)

	periodic.Start()
	onDemand.Start()

	_, ok := periodic.TimeUntilNextRequest()
	assert.True(t, ok)
	_, ok = onDemand.TimeUntilNextRequest()
	assert.False(t, ok)
}
