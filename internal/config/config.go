// Package config loads linkplanner settings from an optional YAML file and
// PLANNER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/linkplanner/internal/elevation"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"github.com/signalsfoundry/linkplanner/internal/planner"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Elevation ElevationConfig `yaml:"elevation"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// Scenario optionally names a YAML/JSON file of towers and links that
	// seeds the session at startup.
	Scenario string `yaml:"scenario"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type ElevationConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxRetries uint          `yaml:"max_retries"`
	Disabled   bool          `yaml:"disabled"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Elevation: ElevationConfig{
			BaseURL:    elevation.DefaultBaseURL,
			Timeout:    planner.DefaultElevationTimeout,
			CacheTTL:   elevation.DefaultCacheTTL,
			MaxRetries: elevation.DefaultMaxRetries,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "linkplanner",
			SampleRatio: 1,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("PLANNER_HTTP_ADDR", &c.HTTP.Addr)
	str("PLANNER_METRICS_ADDR", &c.Metrics.Addr)
	str("PLANNER_LOG_LEVEL", &c.Log.Level)
	str("PLANNER_LOG_FORMAT", &c.Log.Format)
	str("PLANNER_LOG_FILE", &c.Log.File)
	str("PLANNER_SCENARIO", &c.Scenario)

	str("PLANNER_ELEVATION_BASE_URL", &c.Elevation.BaseURL)
	dur("PLANNER_ELEVATION_TIMEOUT", &c.Elevation.Timeout)
	dur("PLANNER_ELEVATION_CACHE_TTL", &c.Elevation.CacheTTL)
	boolean("PLANNER_ELEVATION_DISABLED", &c.Elevation.Disabled)
	if v, ok := lookup("PLANNER_ELEVATION_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANNER_ELEVATION_MAX_RETRIES: %w", err))
		} else {
			c.Elevation.MaxRetries = uint(n)
		}
	}

	boolean("PLANNER_TRACING_ENABLED", &c.Tracing.Enabled)
	str("PLANNER_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("PLANNER_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	str("PLANNER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	if v, ok := lookup("PLANNER_TRACING_SAMPLE_RATIO"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANNER_TRACING_SAMPLE_RATIO: %w", err))
		} else {
			c.Tracing.SampleRatio = r
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if !c.Elevation.Disabled {
		if u, err := url.Parse(c.Elevation.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("elevation.base_url %q is not an absolute URL", c.Elevation.BaseURL))
		}
	}
	if c.Elevation.Timeout <= 0 {
		errs = append(errs, errors.New("elevation.timeout must be positive"))
	}
	if c.Elevation.CacheTTL <= 0 {
		errs = append(errs, errors.New("elevation.cache_ttl must be positive"))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not stdout or otlp", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v is outside [0,1]", c.Tracing.SampleRatio))
	}
	return errors.Join(errs...)
}

// LoggingConfig converts the log section for logging.Open.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	}
}

// ObservabilityTracing converts the tracing section for InitTracing.
func (c Config) ObservabilityTracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
