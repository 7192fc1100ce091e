// Package config handles agent configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level agent configuration. Maps to the `fleetd:` root
// key in YAML; every key can be overridden through FLEETD_* environment
// variables (e.g. FLEETD_DISCOVERY_NEIGHBOR_TTL).
type Config struct {
	// Interfaces lists the network interfaces to monitor.
	Interfaces []string        `mapstructure:"interfaces" yaml:"interfaces"`
	Discovery  DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Capture    CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Report     ReportConfig    `mapstructure:"report" yaml:"report"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
}

// DiscoveryConfig tunes the neighbour table lifecycle.
type DiscoveryConfig struct {
	// NeighborTTL is the age after which an unseen binding is evicted.
	NeighborTTL time.Duration `mapstructure:"neighbor_ttl" yaml:"neighbor_ttl"`
	// SweepInterval is how often the TTL sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// MaxTableSize caps the table; oldest bindings are evicted beyond it.
	// Zero disables the cap.
	MaxTableSize int `mapstructure:"max_table_size" yaml:"max_table_size"`
}

// CaptureConfig tunes the frame sources.
type CaptureConfig struct {
	// Type selects the capture implementation: afpacket | rawsocket.
	Type        string        `mapstructure:"type" yaml:"type"`
	SnapLen     int           `mapstructure:"snaplen" yaml:"snaplen"`
	BufferSize  int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	// Filter is an optional pcap filter expression; leave empty to receive
	// every frame. "arp or (vlan and arp)" keeps kernel-side load minimal.
	Filter   string `mapstructure:"filter" yaml:"filter"`
	FanoutID uint16 `mapstructure:"fanout_id" yaml:"fanout_id"`
}

// ReportConfig tunes event delivery to the controller.
type ReportConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	// RetryLimit is the total number of delivery attempts per batch before
	// the batch is dropped.
	RetryLimit int `mapstructure:"retry_limit" yaml:"retry_limit"`
	// RefreshRateLimit is the minimum gap between reported refresh events
	// for the same identity. New/moved/expired are never limited.
	RefreshRateLimit time.Duration `mapstructure:"refresh_rate_limit" yaml:"refresh_rate_limit"`
	QueueSize        int           `mapstructure:"queue_size" yaml:"queue_size"`
	BatchSize        int           `mapstructure:"batch_size" yaml:"batch_size"`
	Client           ClientConfig  `mapstructure:"client" yaml:"client"`
}

// ClientConfig selects and configures the upstream event client.
type ClientConfig struct {
	// Type is the client implementation: http | log.
	Type string `mapstructure:"type" yaml:"type"`
	// Endpoint is the controller URL for the http client.
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format string        `mapstructure:"format" yaml:"format"` // json / text
	File   FileLogConfig `mapstructure:"file" yaml:"file"`
}

// FileLogConfig configures the optional rotating file output.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// time.Duration renders as raw nanoseconds in YAML, so the duration-bearing
// sections marshal through string views to keep the echoed configuration
// readable (e.g. `neighbor_ttl: 10m0s`).

// MarshalYAML implements yaml.Marshaler.
func (c DiscoveryConfig) MarshalYAML() (any, error) {
	return struct {
		NeighborTTL   string `yaml:"neighbor_ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		MaxTableSize  int    `yaml:"max_table_size"`
	}{c.NeighborTTL.String(), c.SweepInterval.String(), c.MaxTableSize}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (c CaptureConfig) MarshalYAML() (any, error) {
	return struct {
		Type        string `yaml:"type"`
		SnapLen     int    `yaml:"snaplen"`
		BufferSize  int    `yaml:"buffer_size"`
		PollTimeout string `yaml:"poll_timeout"`
		Filter      string `yaml:"filter"`
		FanoutID    uint16 `yaml:"fanout_id"`
	}{c.Type, c.SnapLen, c.BufferSize, c.PollTimeout.String(), c.Filter, c.FanoutID}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (c ReportConfig) MarshalYAML() (any, error) {
	return struct {
		FlushInterval    string       `yaml:"flush_interval"`
		RetryLimit       int          `yaml:"retry_limit"`
		RefreshRateLimit string       `yaml:"refresh_rate_limit"`
		QueueSize        int          `yaml:"queue_size"`
		BatchSize        int          `yaml:"batch_size"`
		Client           ClientConfig `yaml:"client"`
	}{c.FlushInterval.String(), c.RetryLimit, c.RefreshRateLimit.String(), c.QueueSize, c.BatchSize, c.Client}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (c ClientConfig) MarshalYAML() (any, error) {
	return struct {
		Type     string `yaml:"type"`
		Endpoint string `yaml:"endpoint"`
		Timeout  string `yaml:"timeout"`
	}{c.Type, c.Endpoint, c.Timeout.String()}, nil
}

// configRoot is the wrapper matching the YAML structure `fleetd: ...`.
type configRoot struct {
	Fleetd Config `mapstructure:"fleetd"`
}

// Load loads configuration from file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `fleetd.` key prefix maps to FLEETD_ env vars via the replacer
	// (key "fleetd.log.level" → env "FLEETD_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Fleetd

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values; all keys carry the "fleetd." prefix to
// match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("fleetd.discovery.neighbor_ttl", "10m")
	v.SetDefault("fleetd.discovery.sweep_interval", "30s")
	v.SetDefault("fleetd.discovery.max_table_size", 65536)

	v.SetDefault("fleetd.capture.type", "afpacket")
	v.SetDefault("fleetd.capture.snaplen", 65536)
	// Must hold at least one ring block at the default snap length
	// (128 page-aligned frames per block).
	v.SetDefault("fleetd.capture.buffer_size", 16*1024*1024)
	v.SetDefault("fleetd.capture.poll_timeout", "1s")

	v.SetDefault("fleetd.report.flush_interval", "5s")
	v.SetDefault("fleetd.report.retry_limit", 3)
	v.SetDefault("fleetd.report.refresh_rate_limit", "1m")
	v.SetDefault("fleetd.report.queue_size", 4096)
	v.SetDefault("fleetd.report.batch_size", 256)
	v.SetDefault("fleetd.report.client.type", "log")
	v.SetDefault("fleetd.report.client.timeout", "10s")

	v.SetDefault("fleetd.log.level", "info")
	v.SetDefault("fleetd.log.format", "text")
	v.SetDefault("fleetd.log.file.enabled", false)
	v.SetDefault("fleetd.log.file.path", "/var/log/fleetd/fleetd.log")
	v.SetDefault("fleetd.log.file.max_size_mb", 100)
	v.SetDefault("fleetd.log.file.max_age_days", 30)
	v.SetDefault("fleetd.log.file.max_backups", 5)
	v.SetDefault("fleetd.log.file.compress", true)
}

// Validate checks the loaded configuration for values the agent cannot run
// with.
func (c *Config) Validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("at least one interface must be configured")
	}
	seen := make(map[string]struct{}, len(c.Interfaces))
	for _, name := range c.Interfaces {
		if name == "" {
			return fmt.Errorf("interface name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("interface %q configured twice", name)
		}
		seen[name] = struct{}{}
	}

	if c.Discovery.NeighborTTL <= 0 {
		return fmt.Errorf("discovery.neighbor_ttl must be positive")
	}
	if c.Discovery.SweepInterval <= 0 {
		return fmt.Errorf("discovery.sweep_interval must be positive")
	}
	if c.Discovery.MaxTableSize < 0 {
		return fmt.Errorf("discovery.max_table_size must not be negative")
	}

	switch c.Capture.Type {
	case "afpacket", "rawsocket":
	default:
		return fmt.Errorf("capture.type must be afpacket or rawsocket, got %q", c.Capture.Type)
	}
	if c.Capture.SnapLen <= 0 {
		return fmt.Errorf("capture.snaplen must be positive")
	}
	if c.Capture.PollTimeout <= 0 {
		return fmt.Errorf("capture.poll_timeout must be positive")
	}

	if c.Report.FlushInterval <= 0 {
		return fmt.Errorf("report.flush_interval must be positive")
	}
	if c.Report.RetryLimit < 1 {
		return fmt.Errorf("report.retry_limit must be at least 1")
	}
	if c.Report.QueueSize < 1 {
		return fmt.Errorf("report.queue_size must be at least 1")
	}
	if c.Report.BatchSize < 1 {
		return fmt.Errorf("report.batch_size must be at least 1")
	}
	switch c.Report.Client.Type {
	case "log":
	case "http":
		if c.Report.Client.Endpoint == "" {
			return fmt.Errorf("report.client.endpoint is required for the http client")
		}
	default:
		return fmt.Errorf("report.client.type must be http or log, got %q", c.Report.Client.Type)
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of trace/debug/info/warn/error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	return nil
}
