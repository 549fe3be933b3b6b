package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/environment"
	"github.com/stacklok/nearby-sync/internal/sharing"
	pkgsync "github.com/stacklok/nearby-sync/internal/sync"
	"github.com/stacklok/nearby-sync/internal/sync/coordinator"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func boolPtr(b bool) *bool { return &b }

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		yaml       string
		wantConfig *Config
		wantErr    string
	}{
		{
			name: "full config",
			yaml: `deviceName: kitchen-laptop
dataDir: /var/lib/nearby
directory:
  endpoint: https://directory.example.com
  rpcTimeout: 30s
  pageSize: 100
contacts:
  downloadInterval: 6h
certificates:
  downloadInterval: 24h
  validity: 48h
scheduler:
  initialBackoff: 5s
  maxBackoff: 10m
  multiplier: 1.5
  requireConnectivity: true
advertising:
  enabled: false
  visibility: selected_contacts
  dataUsage: wifi_only
environment:
  bluetoothPowered: false
  probeInterval: 30s
api:
  address: 127.0.0.1:9000
telemetry:
  enabled: true
  metrics:
    enabled: true
    exporter: prometheus`,
			wantConfig: &Config{
				DeviceName: "kitchen-laptop",
				DataDir:    "/var/lib/nearby",
				Directory: DirectoryConfig{
					Endpoint:   "https://directory.example.com",
					RPCTimeout: "30s",
					PageSize:   100,
				},
				Contacts:     &ContactsConfig{DownloadInterval: "6h"},
				Certificates: &CertificatesConfig{DownloadInterval: "24h", Validity: "48h"},
				Scheduler: &SchedulerConfig{
					InitialBackoff:      "5s",
					MaxBackoff:          "10m",
					Multiplier:          1.5,
					RequireConnectivity: true,
				},
				Advertising: &AdvertisingConfig{
					Enabled:    boolPtr(false),
					Visibility: "selected_contacts",
					DataUsage:  "wifi_only",
				},
				Environment: &EnvironmentConfig{
					BluetoothPowered: boolPtr(false),
					ProbeInterval:    "30s",
				},
				API: &APIConfig{Address: "127.0.0.1:9000"},
				Telemetry: &telemetry.Config{
					Enabled: true,
					Metrics: &telemetry.MetricsConfig{Enabled: true, Exporter: "prometheus"},
				},
			},
		},
		{
			name: "minimal config",
			yaml: `dataDir: ./data
directory:
  endpoint: http://localhost:8080`,
			wantConfig: &Config{
				DataDir:   "./data",
				Directory: DirectoryConfig{Endpoint: "http://localhost:8080"},
			},
		},
		{
			name:    "missing data dir",
			yaml:    "directory:\n  endpoint: http://localhost:8080",
			wantErr: "dataDir",
		},
		{
			name:    "missing endpoint",
			yaml:    "dataDir: /data",
			wantErr: "missing property 'directory'",
		},
		{
			name:    "endpoint without scheme",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: directory.example.com",
			wantErr: "endpoint must use http or https",
		},
		{
			name:    "negative page size",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\n  pageSize: -1",
			wantErr: "/directory/pageSize",
		},
		{
			name:    "shrinking multiplier",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\nscheduler:\n  multiplier: 0.5",
			wantErr: "multiplier must be at least 1",
		},
		{
			name:    "unknown visibility",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\nadvertising:\n  visibility: everyone",
			wantErr: `unknown visibility "everyone"`,
		},
		{
			name:    "unknown data usage",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\nadvertising:\n  dataUsage: unlimited",
			wantErr: "advertising:",
		},
		{
			name:    "invalid telemetry",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\ntelemetry:\n  enabled: true\n  tracing:\n    enabled: true\n    sampling: 2",
			wantErr: "/telemetry/tracing/sampling",
		},
		{
			name:    "unknown key",
			yaml:    "dataDir: /data\ndataDirectory: /other\ndirectory:\n  endpoint: http://d",
			wantErr: "dataDirectory",
		},
		{
			name:    "malformed duration",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\n  rpcTimeout: soon",
			wantErr: "/directory/rpcTimeout",
		},
		{
			name:    "wrongly typed value",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\n  pageSize: many",
			wantErr: "/directory/pageSize",
		},
		{
			name:    "unknown metrics exporter",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\ntelemetry:\n  metrics:\n    exporter: statsd",
			wantErr: "/telemetry/metrics/exporter",
		},
		{
			name:    "auth without client id",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\n  auth:\n    tokenUrl: https://auth/token",
			wantErr: "clientId",
		},
		{
			name:    "auth token url without scheme",
			yaml:    "dataDir: /data\ndirectory:\n  endpoint: http://d\n  auth:\n    tokenUrl: auth/token\n    clientId: c1",
			wantErr: "directory.auth: tokenUrl",
		},
		{
			name: "auth config",
			yaml: `dataDir: /data
directory:
  endpoint: https://directory.example.com
  auth:
    tokenUrl: https://auth.example.com/token
    clientId: laptop
    clientSecretFile: /etc/nearby/secret
    scopes: [contacts, certificates]`,
			wantConfig: &Config{
				DataDir: "/data",
				Directory: DirectoryConfig{
					Endpoint: "https://directory.example.com",
					Auth: &DirectoryAuthConfig{
						TokenURL:         "https://auth.example.com/token",
						ClientID:         "laptop",
						ClientSecretFile: "/etc/nearby/secret",
						Scopes:           []string{"contacts", "certificates"},
					},
				},
			},
		},
		{
			name:    "empty file",
			yaml:    "",
			wantErr: "config file is empty",
		},
		{
			name:    "malformed yaml",
			yaml:    "dataDir: [unterminated",
			wantErr: "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := LoadConfig(WithConfigPath(writeConfig(t, tt.yaml)))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil", cfg: nil, wantErr: "config cannot be nil"},
		{name: "missing data dir", cfg: &Config{Directory: DirectoryConfig{Endpoint: "http://d"}}, wantErr: "dataDir is required"},
		{name: "missing endpoint", cfg: &Config{DataDir: "/d"}, wantErr: "directory: endpoint is required"},
		{
			name:    "negative page size",
			cfg:     &Config{DataDir: "/d", Directory: DirectoryConfig{Endpoint: "http://d", PageSize: -1}},
			wantErr: "pageSize must not be negative",
		},
		{
			name: "errors are joined",
			cfg: &Config{Directory: DirectoryConfig{
				Endpoint: "ftp://d",
				Auth:     &DirectoryAuthConfig{TokenURL: "https://a/token"},
			}},
			wantErr: "dataDir is required\ndirectory: endpoint must use http or https, got \"ftp://d\"\ndirectory.auth: clientId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_GetDirectoryCredentials(t *testing.T) {
	t.Parallel()

	assert.Nil(t, (&Config{}).GetDirectoryCredentials())

	cfg := &Config{Directory: DirectoryConfig{Auth: &DirectoryAuthConfig{
		TokenURL: "https://a/token",
		ClientID: "c1",
		Scopes:   []string{"contacts"},
	}}}
	creds := cfg.GetDirectoryCredentials()
	require.NotNil(t, creds)
	assert.Equal(t, "https://a/token", creds.TokenURL)
	assert.Equal(t, "c1", creds.ClientID)
	assert.Equal(t, []string{"contacts"}, creds.Scopes)
	assert.Empty(t, creds.ClientSecretFile)
}

func TestLoadConfig_Paths(t *testing.T) {
	t.Parallel()

	t.Run("no path", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig()
		require.EqualError(t, err, "path is required")
	})

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(""))
		require.EqualError(t, err, "path is required")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to evaluate symlinks")
	})

	t.Run("symlink is resolved", func(t *testing.T) {
		t.Parallel()

		target := writeConfig(t, "dataDir: /data\ndirectory:\n  endpoint: http://d")
		link := filepath.Join(t.TempDir(), "link.yaml")
		require.NoError(t, os.Symlink(target, link))

		cfg, err := LoadConfig(WithConfigPath(link))
		require.NoError(t, err)
		assert.Equal(t, "/data", cfg.DataDir)
	})
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}

	assert.Equal(t, pkgsync.DefaultRPCTimeout, cfg.GetRPCTimeout())
	assert.Equal(t, pkgsync.DefaultPageSize, cfg.GetPageSize())
	assert.Equal(t, coordinator.DefaultDownloadInterval, cfg.GetContactsDownloadInterval())
	assert.Equal(t, certificates.DefaultDownloadInterval, cfg.GetCertificatesDownloadInterval())
	assert.Equal(t, certificates.DefaultValidity, cfg.GetCertificateValidity())
	assert.False(t, cfg.RequireConnectivity())
	assert.Equal(t, DefaultAPIAddress, cfg.GetAPIAddress())
	assert.Equal(t, environment.DefaultProbeInterval, cfg.GetProbeInterval())

	initial, maxDelay, multiplier := cfg.GetBackoff()
	assert.Equal(t, scheduler.DefaultInitialBackoff, initial)
	assert.Equal(t, scheduler.DefaultMaxBackoff, maxDelay)
	assert.Equal(t, scheduler.DefaultMultiplier, multiplier)

	enabled, visibility, dataUsage := cfg.GetAdvertisingDefaults()
	assert.True(t, enabled)
	assert.Equal(t, sharing.VisibilityAllContacts, visibility)
	assert.Equal(t, sharing.DataUsageOnline, dataUsage)

	state := cfg.GetInitialEnvironment()
	assert.True(t, state.BluetoothPresent)
	assert.True(t, state.BluetoothPowered)
}

func TestConfig_Overrides(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Directory:    DirectoryConfig{RPCTimeout: "5s", PageSize: 20},
		Contacts:     &ContactsConfig{DownloadInterval: "90m"},
		Certificates: &CertificatesConfig{DownloadInterval: "1h", Validity: "24h"},
		Scheduler:    &SchedulerConfig{InitialBackoff: "2m", MaxBackoff: "1m", Multiplier: 3, RequireConnectivity: true},
		Advertising: &AdvertisingConfig{
			Enabled:    boolPtr(false),
			Visibility: "no_one",
			DataUsage:  "offline",
		},
		Environment: &EnvironmentConfig{BluetoothPresent: boolPtr(false), DisableProbe: true},
		API:         &APIConfig{Address: ":0"},
	}

	assert.Equal(t, 5*time.Second, cfg.GetRPCTimeout())
	assert.Equal(t, 20, cfg.GetPageSize())
	assert.Equal(t, 90*time.Minute, cfg.GetContactsDownloadInterval())
	assert.Equal(t, time.Hour, cfg.GetCertificatesDownloadInterval())
	assert.Equal(t, 24*time.Hour, cfg.GetCertificateValidity())
	assert.True(t, cfg.RequireConnectivity())
	assert.Equal(t, ":0", cfg.GetAPIAddress())
	assert.Zero(t, cfg.GetProbeInterval())

	initial, maxDelay, multiplier := cfg.GetBackoff()
	assert.Equal(t, 2*time.Minute, initial)
	assert.Equal(t, 2*time.Minute, maxDelay, "max backoff is raised to the initial backoff")
	assert.Equal(t, 3.0, multiplier)

	enabled, visibility, dataUsage := cfg.GetAdvertisingDefaults()
	assert.False(t, enabled)
	assert.Equal(t, sharing.VisibilityNoOne, visibility)
	assert.Equal(t, sharing.DataUsageOffline, dataUsage)

	assert.False(t, cfg.GetInitialEnvironment().BluetoothPresent)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		expected time.Duration
	}{
		{name: "empty uses default", raw: "", expected: time.Minute},
		{name: "valid", raw: "45s", expected: 45 * time.Second},
		{name: "garbage uses default", raw: "soon", expected: time.Minute},
		{name: "zero uses default", raw: "0s", expected: time.Minute},
		{name: "negative uses default", raw: "-5m", expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, parseDuration("test", tt.raw, time.Minute))
		})
	}
}
