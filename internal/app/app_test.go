package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/nearby-sync/internal/config"
	"github.com/stacklok/nearby-sync/internal/control/mocks"
)

// fakeSession implements sessionRunner for testing
type fakeSession struct {
	runErr error
	ran    atomic.Bool
	closed atomic.Bool
}

func (f *fakeSession) Run(ctx context.Context) error {
	f.ran.Store(true)
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DeviceName:  "test-laptop",
		DataDir:     t.TempDir(),
		Directory:   config.DirectoryConfig{Endpoint: "http://directory.invalid"},
		Environment: &config.EnvironmentConfig{DisableProbe: true},
	}
}

func createTestDaemon(t *testing.T, s sessionRunner) *Daemon {
	t.Helper()
	ctrl := gomock.NewController(t)

	cfg, err := baseConfig(WithConfig(testConfig(t)), WithAddress(freeAddress(t)))
	require.NoError(t, err)
	server, err := buildHTTPServer(cfg, mocks.NewMockController(ctrl))
	require.NoError(t, err)

	return newDaemon(context.Background(), cfg.config, s, server)
}

func TestDaemon_StartStop(t *testing.T) {
	t.Parallel()

	s := &fakeSession{}
	d := createTestDaemon(t, s)

	startErr := make(chan error, 1)
	go func() { startErr <- d.Start() }()

	url := fmt.Sprintf("http://%s/health", d.GetHTTPServer().Addr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec // test URL
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Stop(5*time.Second))
	require.NoError(t, <-startErr)
	assert.True(t, s.ran.Load())
	assert.True(t, s.closed.Load())

	require.EqualError(t, d.Start(), "daemon already started")
}

func TestDaemon_SessionFailureStopsServer(t *testing.T) {
	t.Parallel()

	s := &fakeSession{runErr: errors.New("directory unreachable")}
	d := createTestDaemon(t, s)

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "directory unreachable")
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after the session failed")
	}

	require.NoError(t, d.Stop(time.Second))
	assert.True(t, s.closed.Load())
}

func TestDaemon_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := &fakeSession{}
	d := createTestDaemon(t, s)

	require.NoError(t, d.Stop(time.Second))
	assert.False(t, s.ran.Load())
	assert.True(t, s.closed.Load())
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "loopback", addr: "127.0.0.1:8787"},
		{name: "all interfaces", addr: ":8787"},
		{name: "hostname", addr: "localhost:9000"},
		{name: "ipv6", addr: "[::1]:8787"},
		{name: "empty", addr: "", wantErr: true},
		{name: "no port", addr: "127.0.0.1", wantErr: true},
		{name: "empty port", addr: "127.0.0.1:", wantErr: true},
		{name: "bad port", addr: "127.0.0.1:http-ish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &daemonConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	require.EqualError(t, err, "config cannot be nil")

	cfg, err := baseConfig(WithConfig(testConfig(t)))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAPIAddress, cfg.address)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)
}

func TestNewDaemon_ReleasesDataDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctx := context.Background()

	d, err := NewDaemon(ctx, WithConfig(cfg), WithAddress(freeAddress(t)))
	require.NoError(t, err)

	// the first daemon holds the data directory lock
	_, err = NewDaemon(ctx, WithConfig(cfg), WithAddress(freeAddress(t)))
	require.Error(t, err)

	require.NoError(t, d.Stop(time.Second))

	d, err = NewDaemon(ctx, WithConfig(cfg), WithAddress(freeAddress(t)))
	require.NoError(t, err)
	require.NoError(t, d.Stop(time.Second))
}
