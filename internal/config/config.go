// Package config loads the agent configuration file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/validation"
)

// EnvPrefix prefixes the environment variables overriding the file.
const EnvPrefix = "HWMON_"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Export     ExportConfig     `yaml:"export"`
	Channel    ChannelConfig    `yaml:"channel"`
	Logging    LoggingConfig    `yaml:"logging"`
	Hosts      []HostConfig     `yaml:"hosts" validate:"dive"`
}

type ServerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port" validate:"min=0,max=65535"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type SchedulerConfig struct {
	TickIntervalMS      int  `yaml:"tick_interval_ms" validate:"min=0"`
	Workers             int  `yaml:"workers" validate:"min=0"`
	CollectIntervalMS   int  `yaml:"collect_interval_ms" validate:"min=0"`
	DiscoveryIntervalMS int  `yaml:"discovery_interval_ms" validate:"min=0"`
	DetectionValidityMS int  `yaml:"detection_validity_ms" validate:"min=0"`
	DetectionWorkers    int  `yaml:"detection_workers" validate:"min=0"`
	DiagnosticDetection bool `yaml:"diagnostic_detection"`
	FetchTimeoutMS      int  `yaml:"fetch_timeout_ms" validate:"min=0"`
	HealthTimeoutMS     int  `yaml:"health_timeout_ms" validate:"min=0"`
	DownThreshold       int  `yaml:"down_threshold" validate:"min=0"`
}

type ConnectorsConfig struct {
	Directory string `yaml:"directory"`
	Watch     bool   `yaml:"watch"`
}

type PluginsConfig struct {
	Directory string `yaml:"directory"`
	TimeoutMS int    `yaml:"timeout_ms" validate:"min=0"`
}

type ExportConfig struct {
	OTel         bool   `yaml:"otel"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	IntervalMS   int    `yaml:"interval_ms" validate:"min=0"`
	Prometheus   bool   `yaml:"prometheus"`
	MeterName    string `yaml:"meter_name"`
}

type ChannelConfig struct {
	CycleChannelSize     int `yaml:"cycle_channel_size" validate:"min=0"`
	HostStateChannelSize int `yaml:"host_state_channel_size" validate:"min=0"`
	ConnectorChannelSize int `yaml:"connector_channel_size" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from file, applies environment variable overrides
// and defaults, and validates the result
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills every unset setting
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = 30000
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = 30000
	}

	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if c.Auth.JWTExpiryHours == 0 {
		c.Auth.JWTExpiryHours = 24
	}

	s := &c.Scheduler
	if s.TickIntervalMS == 0 {
		s.TickIntervalMS = 1000
	}
	if s.Workers == 0 {
		s.Workers = 20
	}
	if s.CollectIntervalMS == 0 {
		s.CollectIntervalMS = 120000
	}
	if s.DiscoveryIntervalMS == 0 {
		s.DiscoveryIntervalMS = 3600000
	}
	if s.DetectionValidityMS == 0 {
		s.DetectionValidityMS = 86400000
	}
	if s.DetectionWorkers == 0 {
		s.DetectionWorkers = 4
	}
	if s.FetchTimeoutMS == 0 {
		s.FetchTimeoutMS = 30000
	}
	if s.HealthTimeoutMS == 0 {
		s.HealthTimeoutMS = 10000
	}
	if s.DownThreshold == 0 {
		s.DownThreshold = 3
	}

	if c.Connectors.Directory == "" {
		c.Connectors.Directory = "./connectors"
	}
	if c.Plugins.TimeoutMS == 0 {
		c.Plugins.TimeoutMS = 60000
	}
	if c.Export.IntervalMS == 0 {
		c.Export.IntervalMS = 60000
	}
	if c.Export.MeterName == "" {
		c.Export.MeterName = "github.com/nmslite/hwmon"
	}

	if c.Channel.CycleChannelSize == 0 {
		c.Channel.CycleChannelSize = 100
	}
	if c.Channel.HostStateChannelSize == 0 {
		c.Channel.HostStateChannelSize = 50
	}
	if c.Channel.ConnectorChannelSize == 0 {
		c.Channel.ConnectorChannelSize = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the settings struct tags cannot express
func (c *Config) Validate() error {
	if c.Server.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("jwt_secret must be at least 32 characters when the server is enabled")
		}
		if len(c.Auth.EncryptionKey) != 32 {
			return fmt.Errorf("encryption_key must be exactly 32 bytes")
		}
	}
	if c.Auth.EncryptionKey != "" && len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes")
	}
	if c.Export.OTel && c.Export.OTLPEndpoint == "" {
		return fmt.Errorf("export.otlp_endpoint is required when otel export is enabled")
	}
	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	seen := make(map[string]bool)
	for i, h := range c.Hosts {
		if err := h.validate(); err != nil {
			return fmt.Errorf("hosts[%d]: %w", i, err)
		}
		id := h.Key()
		if seen[id] {
			return fmt.Errorf("hosts[%d]: duplicate host id %q", i, id)
		}
		seen[id] = true
	}
	return nil
}

// applyEnvOverrides checks for environment variables with the HWMON_ prefix
func applyEnvOverrides(cfg *Config) {
	envString("AUTH_ADMIN_USERNAME", &cfg.Auth.AdminUsername)
	envString("AUTH_ADMIN_PASSWORD", &cfg.Auth.AdminPassword)
	envString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	envString("AUTH_ENCRYPTION_KEY", &cfg.Auth.EncryptionKey)

	envBool("SERVER_ENABLED", &cfg.Server.Enabled)
	envString("SERVER_HOST", &cfg.Server.Host)
	envInt("SERVER_PORT", &cfg.Server.Port)

	envInt("SCHEDULER_WORKERS", &cfg.Scheduler.Workers)
	envInt("SCHEDULER_COLLECT_INTERVAL_MS", &cfg.Scheduler.CollectIntervalMS)
	envInt("SCHEDULER_DISCOVERY_INTERVAL_MS", &cfg.Scheduler.DiscoveryIntervalMS)
	envInt("SCHEDULER_FETCH_TIMEOUT_MS", &cfg.Scheduler.FetchTimeoutMS)

	envBool("EXPORT_OTEL", &cfg.Export.OTel)
	envString("EXPORT_OTLP_ENDPOINT", &cfg.Export.OTLPEndpoint)
	envBool("EXPORT_PROMETHEUS", &cfg.Export.Prometheus)

	envString("CONNECTORS_DIRECTORY", &cfg.Connectors.Directory)
	envString("PLUGINS_DIRECTORY", &cfg.Plugins.Directory)

	envString("LOGGING_LEVEL", &cfg.Logging.Level)
	envString("LOGGING_FORMAT", &cfg.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeout returns the read timeout as a duration
func (s *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// JWTExpiry returns JWT expiry as duration
func (a *AuthConfig) JWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// TickInterval returns the tick interval as a duration
func (s *SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMS) * time.Millisecond
}

// CollectInterval returns the collect period as a duration
func (s *SchedulerConfig) CollectInterval() time.Duration {
	return time.Duration(s.CollectIntervalMS) * time.Millisecond
}

// DiscoveryInterval returns the discovery period as a duration
func (s *SchedulerConfig) DiscoveryInterval() time.Duration {
	return time.Duration(s.DiscoveryIntervalMS) * time.Millisecond
}

// DetectionValidity returns how long a detection result is reused
func (s *SchedulerConfig) DetectionValidity() time.Duration {
	return time.Duration(s.DetectionValidityMS) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout as a duration
func (s *SchedulerConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutMS) * time.Millisecond
}

// HealthTimeout returns the health check timeout as a duration
func (s *SchedulerConfig) HealthTimeout() time.Duration {
	return time.Duration(s.HealthTimeoutMS) * time.Millisecond
}

// Interval returns the OTLP export period as a duration
func (e *ExportConfig) Interval() time.Duration {
	return time.Duration(e.IntervalMS) * time.Millisecond
}

// Timeout returns the plugin timeout as a duration
func (p *PluginsConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}

// NewLogger builds the process logger
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
