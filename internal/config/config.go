package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "CODECHECKOUT"

// Config represents the complete client configuration
type Config struct {
	Client    ClientConfig    `yaml:"client" envconfig:"CLIENT"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// ClientConfig contains the settings shared by every call to the license authority
type ClientConfig struct {
	SoftwareID         string        `yaml:"software_id" envconfig:"SOFTWARE_ID"`
	BaseURL            string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	UserAgent          string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	DefaultSuccessURL  string        `yaml:"default_success_url" envconfig:"DEFAULT_SUCCESS_URL" validate:"omitempty,url"`
	DefaultCancelURL   string        `yaml:"default_cancel_url" envconfig:"DEFAULT_CANCEL_URL" validate:"omitempty,url"`
	CacheDurationHours float64       `yaml:"cache_duration_hours" envconfig:"CACHE_DURATION_HOURS" validate:"gte=0"`
	Breaker            BreakerConfig `yaml:"breaker" envconfig:"BREAKER"`
	Refresh            RefreshConfig `yaml:"refresh" envconfig:"REFRESH"`
}

// BreakerConfig controls the circuit breaker wrapped around authority calls
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled" envconfig:"ENABLED"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" envconfig:"CONSECUTIVE_FAILURES" validate:"gte=1"`
	OpenTimeout         time.Duration `yaml:"open_timeout" envconfig:"OPEN_TIMEOUT" validate:"gt=0"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests" envconfig:"HALF_OPEN_REQUESTS" validate:"gte=1"`
}

// RefreshConfig bounds how often stale-while-revalidate refreshes may hit the authority.
// RPS 0 disables throttling.
type RefreshConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// CacheConfig selects and locates the validation cache backend
type CacheConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" validate:"oneof=auto memory file"`
	Dir     string `yaml:"dir" envconfig:"DIR"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig contains HTTP server configuration for the serve command
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles requests to the local server
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// Overrides are per-call settings layered over the client configuration.
// Zero values leave the configured value untouched.
type Overrides struct {
	SoftwareID        string
	BaseURL           string
	DefaultSuccessURL string
	DefaultCancelURL  string
}

// WithOverrides returns a copy of c with the non-empty override fields applied
func (c ClientConfig) WithOverrides(o Overrides) ClientConfig {
	if o.SoftwareID != "" {
		c.SoftwareID = o.SoftwareID
	}
	if o.BaseURL != "" {
		c.BaseURL = strings.TrimRight(o.BaseURL, "/")
	}
	if o.DefaultSuccessURL != "" {
		c.DefaultSuccessURL = o.DefaultSuccessURL
	}
	if o.DefaultCancelURL != "" {
		c.DefaultCancelURL = o.DefaultCancelURL
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over the file; the file takes precedence
// over struct defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.Client.BaseURL = strings.TrimRight(cfg.Client.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile decodes YAML over the existing values in cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct constraints
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// findConfigFile returns the first config file found in the common locations
func findConfigFile() string {
	locations := []string{
		"codecheckout.yaml",
		"configs/codecheckout.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			BaseURL:            "https://api.riff-tech.com/v1",
			Timeout:            10 * time.Second,
			UserAgent:          "codecheckout-go/1.0",
			DefaultSuccessURL:  "https://codecheckout.dev/activate",
			DefaultCancelURL:   "https://codecheckout.dev",
			CacheDurationHours: 24,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
				HalfOpenRequests:    1,
			},
			Refresh: RefreshConfig{},
		},
		Cache: CacheConfig{
			Backend: "auto",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/codecheckout.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "codecheckout",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
	}
}
