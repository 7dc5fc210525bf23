// Package config builds the immutable runtime configuration of a till.
//
// Values are layered: built-in defaults, then an optional YAML tuning file,
// then environment overrides (process environment first, then the
// credential record), then the credentials themselves.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotProvisioned is returned when no API key is configured.
var ErrNotProvisioned = errors.New("device not provisioned")

// Config is constructed once at startup and passed by value.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path"`

	// CredentialsPath is the .env credential record.
	CredentialsPath string `yaml:"credentials_path"`

	// ListenAddr is the local front-end API address. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	SyncInterval         time.Duration `yaml:"sync_interval"`
	CacheRefreshInterval time.Duration `yaml:"cache_refresh_interval"`

	HealthTimeout        time.Duration `yaml:"health_timeout"`
	HealthConnectTimeout time.Duration `yaml:"health_connect_timeout"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	EventsConnectTimeout time.Duration `yaml:"events_connect_timeout"`

	EventBackoffInitial time.Duration `yaml:"event_backoff_initial"`
	EventBackoffMax     time.Duration `yaml:"event_backoff_max"`

	// Relay is used when no lock configuration has been cached yet.
	Relay RelayFallback `yaml:"relay"`

	// Credentials come from the credential record, never from YAML.
	Credentials Credentials `yaml:"-"`
}

// RelayFallback describes a locally wired relay.
type RelayFallback struct {
	Enabled      bool          `yaml:"enabled"`
	GPIOPin      int           `yaml:"gpio_pin"`
	OpenDuration time.Duration `yaml:"open_duration"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath:         "tillsync.db",
		CredentialsPath:      ".env",
		ListenAddr:           "127.0.0.1:8787",
		SyncInterval:         60 * time.Second,
		CacheRefreshInterval: 300 * time.Second,
		HealthTimeout:        5 * time.Second,
		HealthConnectTimeout: 3 * time.Second,
		RequestTimeout:       10 * time.Second,
		ConnectTimeout:       5 * time.Second,
		EventsConnectTimeout: 10 * time.Second,
		EventBackoffInitial:  1 * time.Second,
		EventBackoffMax:      30 * time.Second,
		Relay: RelayFallback{
			Enabled:      false,
			GPIOPin:      18,
			OpenDuration: 3 * time.Second,
		},
	}
}

// Load builds the configuration. tuningPath may be empty. A missing
// credential record is not an error; callers check Provisioned.
func Load(tuningPath, credentialsPath string) (Config, error) {
	cfg, err := LoadFile(tuningPath)
	if err != nil {
		return Config{}, err
	}
	if credentialsPath != "" {
		cfg.CredentialsPath = credentialsPath
	}

	creds := CredentialFile{Path: cfg.CredentialsPath}
	record, err := creds.Read()
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := record[key]
		return v, ok
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.Credentials = credentialsFrom(lookup)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile returns the defaults overlaid with the YAML file at path.
// Unknown keys are rejected. An empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Environment keys that override tuning values.
const (
	EnvDatabasePath         = "LOCAL_DB_PATH"
	EnvListenAddr           = "LISTEN_ADDR"
	EnvSyncInterval         = "SYNC_INTERVAL_SECONDS"
	EnvCacheRefreshInterval = "CACHE_REFRESH_INTERVAL_SECONDS"
	EnvHasRelay             = "HAS_RELAY"
	EnvRelayGPIOPin         = "RELAY_GPIO_PIN"
	EnvRelayOpenDuration    = "RELAY_OPEN_DURATION_MS"
)

// ApplyEnv overrides tuning values from lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		c.DatabasePath = v
	}
	if v, ok := lookup(EnvListenAddr); ok {
		c.ListenAddr = v
	}

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{EnvSyncInterval, time.Second, &c.SyncInterval},
		{EnvCacheRefreshInterval, time.Second, &c.CacheRefreshInterval},
		{EnvRelayOpenDuration, time.Millisecond, &c.Relay.OpenDuration},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = time.Duration(n) * d.unit
	}

	if v, ok := lookup(EnvHasRelay); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHasRelay, v, err)
		}
		c.Relay.Enabled = enabled
	}
	if v, ok := lookup(EnvRelayGPIOPin); ok && v != "" {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRelayGPIOPin, v, err)
		}
		c.Relay.GPIOPin = pin
	}
	return nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("invalid config: database_path is empty")
	}
	positive := map[string]time.Duration{
		"sync_interval":          c.SyncInterval,
		"cache_refresh_interval": c.CacheRefreshInterval,
		"health_timeout":         c.HealthTimeout,
		"request_timeout":        c.RequestTimeout,
		"event_backoff_initial":  c.EventBackoffInitial,
		"event_backoff_max":      c.EventBackoffMax,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", name, d)
		}
	}
	if c.EventBackoffMax < c.EventBackoffInitial {
		return fmt.Errorf("invalid config: event_backoff_max %s is below event_backoff_initial %s",
			c.EventBackoffMax, c.EventBackoffInitial)
	}
	if c.Relay.Enabled && c.Relay.GPIOPin < 0 {
		return fmt.Errorf("invalid config: relay gpio_pin %d is negative", c.Relay.GPIOPin)
	}
	return nil
}

// Provisioned reports whether credentials are present.
func (c Config) Provisioned() bool {
	return c.Credentials.APIKey != ""
}

// RequireProvisioned returns ErrNotProvisioned unless credentials are
// complete.
func (c Config) RequireProvisioned() error {
	if !c.Provisioned() {
		return ErrNotProvisioned
	}
	if c.Credentials.ServerURL == "" || c.Credentials.Tenant == "" {
		return fmt.Errorf("%w: credential record at %s is incomplete", ErrNotProvisioned, c.CredentialsPath)
	}
	return nil
}
