// Package config provides configuration loading for the nearby-sync daemon.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/nearby-sync/internal/certificates"
	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/environment"
	"github.com/stacklok/nearby-sync/internal/sharing"
	pkgsync "github.com/stacklok/nearby-sync/internal/sync"
	"github.com/stacklok/nearby-sync/internal/sync/coordinator"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

const (
	// EnvPrefix prefixes every environment variable read by the daemon
	EnvPrefix = "NEARBY_SYNC"

	// DefaultAPIAddress is where the local control API listens
	DefaultAPIAddress = "127.0.0.1:8787"

	// DefaultVisibility is written to preferences on first start
	DefaultVisibility = sharing.VisibilityAllContacts

	// DefaultDataUsage is written to preferences on first start
	DefaultDataUsage = sharing.DataUsageOnline
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DeviceName is the initial local device name. Ignored once a name has
	// been persisted.
	DeviceName string `yaml:"deviceName,omitempty"`

	// DataDir holds preferences, certificates and task status
	DataDir string `yaml:"dataDir"`

	Directory    DirectoryConfig     `yaml:"directory"`
	Contacts     *ContactsConfig     `yaml:"contacts,omitempty"`
	Certificates *CertificatesConfig `yaml:"certificates,omitempty"`
	Scheduler    *SchedulerConfig    `yaml:"scheduler,omitempty"`
	Advertising  *AdvertisingConfig  `yaml:"advertising,omitempty"`
	Environment  *EnvironmentConfig  `yaml:"environment,omitempty"`
	API          *APIConfig          `yaml:"api,omitempty"`
	Telemetry    *telemetry.Config   `yaml:"telemetry,omitempty"`
}

// DirectoryConfig points at the remote contact and certificate directory
type DirectoryConfig struct {
	// Endpoint is the base URL of the directory service
	Endpoint string `yaml:"endpoint"`

	// RPCTimeout bounds each directory call, e.g. "60s"
	RPCTimeout string `yaml:"rpcTimeout,omitempty"`

	// PageSize is the number of records requested per page
	PageSize int `yaml:"pageSize,omitempty"`

	// Auth enables OAuth2 client credentials for directory calls
	Auth *DirectoryAuthConfig `yaml:"auth,omitempty"`
}

// DirectoryAuthConfig holds OAuth2 client credentials. The client secret is
// read from ClientSecretFile or, when that is empty, from the OS keyring.
type DirectoryAuthConfig struct {
	TokenURL         string   `yaml:"tokenUrl"`
	ClientID         string   `yaml:"clientId"`
	ClientSecretFile string   `yaml:"clientSecretFile,omitempty"`
	Scopes           []string `yaml:"scopes,omitempty"`
}

// ContactsConfig tunes contact synchronization
type ContactsConfig struct {
	DownloadInterval string `yaml:"downloadInterval,omitempty"`
}

// CertificatesConfig tunes the certificate directory
type CertificatesConfig struct {
	DownloadInterval string `yaml:"downloadInterval,omitempty"`
	Validity         string `yaml:"validity,omitempty"`
}

// SchedulerConfig controls retry behaviour shared by all scheduled tasks
type SchedulerConfig struct {
	InitialBackoff string  `yaml:"initialBackoff,omitempty"`
	MaxBackoff     string  `yaml:"maxBackoff,omitempty"`
	Multiplier     float64 `yaml:"multiplier,omitempty"`

	// RequireConnectivity holds tasks back while the device is offline
	RequireConnectivity bool `yaml:"requireConnectivity,omitempty"`
}

// AdvertisingConfig holds the preference values used on first start
type AdvertisingConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	Visibility string `yaml:"visibility,omitempty"`
	DataUsage  string `yaml:"dataUsage,omitempty"`
}

// EnvironmentConfig describes the radios and network sensing
type EnvironmentConfig struct {
	BluetoothPresent *bool `yaml:"bluetoothPresent,omitempty"`
	BluetoothPowered *bool `yaml:"bluetoothPowered,omitempty"`

	// ProbeInterval is how often network interfaces are inspected
	ProbeInterval string `yaml:"probeInterval,omitempty"`

	// DisableProbe leaves the connection type to the control API
	DisableProbe bool `yaml:"disableProbe,omitempty"`
}

// APIConfig configures the local control API
type APIConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("dataDir is required"))
	}
	if err := validateEndpoint(c.Directory.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("directory: %w", err))
	}
	if c.Directory.PageSize < 0 {
		errs = append(errs, fmt.Errorf("directory: pageSize must not be negative, got %d", c.Directory.PageSize))
	}
	if auth := c.Directory.Auth; auth != nil {
		if err := validateEndpoint(auth.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("directory.auth: tokenUrl: %w", err))
		}
		if auth.ClientID == "" {
			errs = append(errs, fmt.Errorf("directory.auth: clientId is required"))
		}
	}
	if c.Scheduler != nil && c.Scheduler.Multiplier != 0 && c.Scheduler.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("scheduler: multiplier must be at least 1, got %g", c.Scheduler.Multiplier))
	}
	if a := c.Advertising; a != nil {
		if a.Visibility != "" {
			if _, err := sharing.ParseVisibility(a.Visibility); err != nil {
				errs = append(errs, fmt.Errorf("advertising: %w", err))
			}
		}
		if a.DataUsage != "" {
			if _, err := sharing.ParseDataUsage(a.DataUsage); err != nil {
				errs = append(errs, fmt.Errorf("advertising: %w", err))
			}
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https, got %q", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a host, got %q", endpoint)
	}
	return nil
}

// parseDuration returns the parsed value, or def when raw is empty or invalid
func parseDuration(field, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	slog.Warn("Invalid duration, using default",
		"field", field,
		"value", raw,
		"default", def.String())
	return def
}

// GetDirectoryCredentials returns the directory OAuth2 credentials, or nil
// when directory calls are unauthenticated
func (c *Config) GetDirectoryCredentials() *directory.Credentials {
	auth := c.Directory.Auth
	if auth == nil {
		return nil
	}
	return &directory.Credentials{
		TokenURL:         auth.TokenURL,
		ClientID:         auth.ClientID,
		Scopes:           auth.Scopes,
		ClientSecretFile: auth.ClientSecretFile,
	}
}

// GetRPCTimeout returns the directory call timeout
func (c *Config) GetRPCTimeout() time.Duration {
	return parseDuration("directory.rpcTimeout", c.Directory.RPCTimeout, pkgsync.DefaultRPCTimeout)
}

// GetPageSize returns the directory page size
func (c *Config) GetPageSize() int {
	if c.Directory.PageSize == 0 {
		return pkgsync.DefaultPageSize
	}
	return c.Directory.PageSize
}

// GetContactsDownloadInterval returns the periodic contact download interval
func (c *Config) GetContactsDownloadInterval() time.Duration {
	var raw string
	if c.Contacts != nil {
		raw = c.Contacts.DownloadInterval
	}
	return parseDuration("contacts.downloadInterval", raw, coordinator.DefaultDownloadInterval)
}

// GetCertificatesDownloadInterval returns the public certificate download interval
func (c *Config) GetCertificatesDownloadInterval() time.Duration {
	var raw string
	if c.Certificates != nil {
		raw = c.Certificates.DownloadInterval
	}
	return parseDuration("certificates.downloadInterval", raw, certificates.DefaultDownloadInterval)
}

// GetCertificateValidity returns how long generated private certificates stay valid
func (c *Config) GetCertificateValidity() time.Duration {
	var raw string
	if c.Certificates != nil {
		raw = c.Certificates.Validity
	}
	return parseDuration("certificates.validity", raw, certificates.DefaultValidity)
}

// GetBackoff returns the scheduler retry parameters
func (c *Config) GetBackoff() (initial, maxDelay time.Duration, multiplier float64) {
	s := c.Scheduler
	if s == nil {
		s = &SchedulerConfig{}
	}
	initial = parseDuration("scheduler.initialBackoff", s.InitialBackoff, scheduler.DefaultInitialBackoff)
	maxDelay = parseDuration("scheduler.maxBackoff", s.MaxBackoff, scheduler.DefaultMaxBackoff)
	if maxDelay < initial {
		maxDelay = initial
	}
	multiplier = s.Multiplier
	if multiplier == 0 {
		multiplier = scheduler.DefaultMultiplier
	}
	return initial, maxDelay, multiplier
}

// RequireConnectivity reports whether scheduled tasks wait for a network
func (c *Config) RequireConnectivity() bool {
	return c.Scheduler != nil && c.Scheduler.RequireConnectivity
}

// GetAdvertisingDefaults returns the first-start preference values
func (c *Config) GetAdvertisingDefaults() (enabled bool, visibility sharing.Visibility, dataUsage sharing.DataUsage) {
	enabled, visibility, dataUsage = true, DefaultVisibility, DefaultDataUsage
	a := c.Advertising
	if a == nil {
		return
	}
	if a.Enabled != nil {
		enabled = *a.Enabled
	}
	// values were checked by validate
	if v, err := sharing.ParseVisibility(a.Visibility); err == nil {
		visibility = v
	}
	if d, err := sharing.ParseDataUsage(a.DataUsage); err == nil {
		dataUsage = d
	}
	return
}

// GetInitialEnvironment returns the environment state before any probe runs
func (c *Config) GetInitialEnvironment() environment.State {
	state := environment.State{BluetoothPresent: true, BluetoothPowered: true}
	if e := c.Environment; e != nil {
		if e.BluetoothPresent != nil {
			state.BluetoothPresent = *e.BluetoothPresent
		}
		if e.BluetoothPowered != nil {
			state.BluetoothPowered = *e.BluetoothPowered
		}
	}
	return state
}

// GetProbeInterval returns the network probe interval, or zero when disabled
func (c *Config) GetProbeInterval() time.Duration {
	if c.Environment == nil {
		return environment.DefaultProbeInterval
	}
	if c.Environment.DisableProbe {
		return 0
	}
	return parseDuration("environment.probeInterval", c.Environment.ProbeInterval, environment.DefaultProbeInterval)
}

// GetAPIAddress returns the control API listen address
func (c *Config) GetAPIAddress() string {
	if c.API == nil || c.API.Address == "" {
		return DefaultAPIAddress
	}
	return c.API.Address
}
