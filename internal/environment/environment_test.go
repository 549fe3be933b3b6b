package environment

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/nearby-sync/internal/advertising"
	"github.com/stacklok/nearby-sync/internal/sequence"
)

type recordingListener struct {
	events []string
}

func (r *recordingListener) OnScreenLockChanged() { r.events = append(r.events, "lock") }
func (r *recordingListener) OnNetworkChanged()    { r.events = append(r.events, "network") }
func (r *recordingListener) OnBluetoothChanged()  { r.events = append(r.events, "bluetooth") }

func TestSettable(t *testing.T) {
	t.Parallel()

	runner := sequence.NewManual()
	env := NewSettable(runner, State{Connection: advertising.ConnectionNone})
	listener := &recordingListener{}
	env.AddListener(listener)

	assert.False(t, env.IsOnline())

	env.SetConnection(advertising.ConnectionWifi)
	env.SetBluetooth(true, false)
	env.SetScreenLocked(true)
	env.SetScreenLocked(true)
	assert.Empty(t, listener.events, "listeners run on the sequence")

	runner.RunUntilIdle()
	assert.Equal(t, []string{"network", "bluetooth", "lock"}, listener.events)

	assert.True(t, env.IsOnline())
	assert.True(t, env.IsBluetoothPresent())
	assert.False(t, env.IsBluetoothPowered())
	assert.True(t, env.IsScreenLocked())
	assert.Equal(t, advertising.ConnectionWifi, env.ConnectionType())

	env.SetBluetooth(false, true)
	runner.RunUntilIdle()
	assert.False(t, env.IsBluetoothPowered(), "an absent adapter is never powered")

	env.RemoveListener(listener)
	env.SetScreenLocked(false)
	runner.RunUntilIdle()
	assert.Len(t, listener.events, 4)
}

func TestSettable_SetReportsEveryChange(t *testing.T) {
	t.Parallel()

	runner := sequence.NewManual()
	env := NewSettable(runner, State{})
	listener := &recordingListener{}
	env.AddListener(listener)

	env.Set(func(st *State) {
		st.ScreenLocked = true
		st.Connection = advertising.ConnectionEthernet
	})
	runner.RunUntilIdle()
	assert.Equal(t, []string{"lock", "network"}, listener.events)
}

func TestClassifyInterfaces(t *testing.T) {
	t.Parallel()

	up := net.FlagUp
	tests := []struct {
		name     string
		ifaces   []net.Interface
		expected advertising.ConnectionType
	}{
		{name: "nothing", expected: advertising.ConnectionNone},
		{
			name:     "loopback only",
			ifaces:   []net.Interface{{Name: "lo", Flags: up | net.FlagLoopback}},
			expected: advertising.ConnectionNone,
		},
		{
			name:     "wifi down",
			ifaces:   []net.Interface{{Name: "wlan0"}},
			expected: advertising.ConnectionNone,
		},
		{
			name:     "wifi",
			ifaces:   []net.Interface{{Name: "wlp2s0", Flags: up}},
			expected: advertising.ConnectionWifi,
		},
		{
			name:     "ethernet beats wifi",
			ifaces:   []net.Interface{{Name: "wlan0", Flags: up}, {Name: "enp0s31f6", Flags: up}},
			expected: advertising.ConnectionEthernet,
		},
		{
			name:     "cellular",
			ifaces:   []net.Interface{{Name: "wwan0", Flags: up}},
			expected: advertising.ConnectionCellular,
		},
		{
			name:     "unrecognized",
			ifaces:   []net.Interface{{Name: "tun0", Flags: up}},
			expected: advertising.ConnectionUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ClassifyInterfaces(tt.ifaces))
		})
	}
}

func TestNetworkProbe(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	ifaces := []net.Interface{{Name: "wlan0", Flags: net.FlagUp}}
	list := func() ([]net.Interface, error) {
		mu.Lock()
		defer mu.Unlock()
		return ifaces, nil
	}

	clk := testingclock.NewFakeClock(time.Now())
	env := NewSettable(sequence.NewManual(), State{})
	probe := NewNetworkProbe(env,
		WithProbeClock(clk),
		WithProbeInterval(time.Second),
		WithInterfaces(list),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- probe.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.ConnectionType() == advertising.ConnectionWifi
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	ifaces = nil
	mu.Unlock()
	require.Eventually(t, func() bool {
		clk.Step(time.Second)
		return env.ConnectionType() == advertising.ConnectionNone
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNetworkProbe_ListError(t *testing.T) {
	t.Parallel()

	env := NewSettable(sequence.NewManual(), State{Connection: advertising.ConnectionWifi})
	probe := NewNetworkProbe(env, WithInterfaces(func() ([]net.Interface, error) {
		return nil, errors.New("netlink unavailable")
	}))

	probe.Probe()
	assert.Equal(t, advertising.ConnectionWifi, env.ConnectionType(), "errors leave the state untouched")
}
