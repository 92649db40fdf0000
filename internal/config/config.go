package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/watchdog/internal/urlutil"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultInterval     = 60 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultAddress      = ":8080"
	DefaultDBPath       = "watchdog.db"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	d.Duration = dur
	return nil
}

// ProbeConfig controls the scheduler cadence and each HTTP probe.
type ProbeConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	// InsecureSkipVerify disables TLS certificate verification for probes.
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	MaxRedirects       int    `yaml:"max_redirects"`
	UserAgent          string `yaml:"user_agent"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig selects the result store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Probe   ProbeConfig   `yaml:"probe"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	// Targets are registered at startup and whenever the file changes.
	Targets []string `yaml:"targets"`
}

// Load reads, parses, and validates the config file at path, then applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	// Unmarshal into a raw intermediate so unset durations can be told
	// apart from explicit zero ones.
	type rawProbe struct {
		Interval           *Duration `yaml:"interval"`
		Timeout            *Duration `yaml:"timeout"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		MaxRedirects       int    `yaml:"max_redirects"`
		UserAgent          string `yaml:"user_agent"`
	}
	type rawConfig struct {
		Probe   rawProbe      `yaml:"probe"`
		Server  ServerConfig  `yaml:"server"`
		Storage StorageConfig `yaml:"storage"`
		Log     LogConfig     `yaml:"log"`
		Targets []string      `yaml:"targets"`
	}

	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// Environment overrides.
	if v, ok := os.LookupEnv("CHECK_INTERVAL"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("CHECK_INTERVAL: invalid duration %q: %w", v, err)
		}
		raw.Probe.Interval = &Duration{d}
	}
	if v, ok := os.LookupEnv("HTTP_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_TIMEOUT: invalid duration %q: %w", v, err)
		}
		raw.Probe.Timeout = &Duration{d}
	}
	if v, ok := os.LookupEnv("WATCHDOG_DB"); ok {
		raw.Storage.Path = v
	}
	if v, ok := os.LookupEnv("WATCHDOG_DSN"); ok {
		raw.Storage.DSN = v
		if raw.Storage.Driver == "" {
			raw.Storage.Driver = "postgres"
		}
	}
	if v, ok := os.LookupEnv("WATCHDOG_INSECURE_SKIP_VERIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("WATCHDOG_INSECURE_SKIP_VERIFY: invalid boolean %q", v)
		}
		raw.Probe.InsecureSkipVerify = b
	}

	// Apply defaults.
	if raw.Server.Address == "" {
		raw.Server.Address = DefaultAddress
	}
	if raw.Storage.Driver == "" {
		raw.Storage.Driver = "sqlite"
	}
	if raw.Storage.Path == "" {
		raw.Storage.Path = DefaultDBPath
	}
	if raw.Probe.MaxRedirects == 0 {
		raw.Probe.MaxRedirects = DefaultMaxRedirects
	}
	if raw.Log.Level == "" {
		raw.Log.Level = "info"
	}
	if raw.Log.Format == "" {
		raw.Log.Format = "text"
	}

	cfg := &Config{
		Probe: ProbeConfig{
			Interval:           Duration{DefaultInterval},
			Timeout:            Duration{DefaultTimeout},
			InsecureSkipVerify: raw.Probe.InsecureSkipVerify,
			MaxRedirects:       raw.Probe.MaxRedirects,
			UserAgent:          raw.Probe.UserAgent,
		},
		Server:  raw.Server,
		Storage: raw.Storage,
		Log:     raw.Log,
	}

	if raw.Probe.Interval != nil {
		cfg.Probe.Interval = *raw.Probe.Interval
	}
	if raw.Probe.Timeout != nil {
		cfg.Probe.Timeout = *raw.Probe.Timeout
	}

	if cfg.Probe.Interval.Duration <= 0 {
		return nil, fmt.Errorf("probe: interval must be positive, got %s", cfg.Probe.Interval.Duration)
	}
	if cfg.Probe.Timeout.Duration <= 0 {
		return nil, fmt.Errorf("probe: timeout must be positive, got %s", cfg.Probe.Timeout.Duration)
	}
	if cfg.Probe.MaxRedirects < 0 {
		return nil, fmt.Errorf("probe: max_redirects must not be negative, got %d", cfg.Probe.MaxRedirects)
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return nil, fmt.Errorf("storage: dsn is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("storage: invalid driver %q (must be sqlite or postgres)", cfg.Storage.Driver)
	}

	if _, err := cfg.Log.SlogLevel(); err != nil {
		return nil, err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return nil, fmt.Errorf("log: invalid format %q (must be text or json)", cfg.Log.Format)
	}

	seen := make(map[string]bool, len(raw.Targets))
	for i, t := range raw.Targets {
		u, err := urlutil.Normalize(t)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		cfg.Targets = append(cfg.Targets, u)
	}

	return cfg, nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log: invalid level %q", l.Level)
	}
	return level, nil
}

// parseDuration accepts Go durations ("90s", "1m") and bare numbers of
// seconds ("60", "2.5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
