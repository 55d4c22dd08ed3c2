package updates

import (
	"fmt"
	"time"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

// Config holds the orchestration engine settings.
type Config struct {
	MaxSessions    int           `mapstructure:"max_sessions"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	JobRetention   time.Duration `mapstructure:"job_retention"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
	ReprobeDelay   time.Duration `mapstructure:"reprobe_delay"`
	ReprobeTimeout time.Duration `mapstructure:"reprobe_timeout"`
	StreamBuffer   int           `mapstructure:"stream_buffer"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions:    4,
		CacheTTL:       time.Hour,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 15 * time.Minute,
		JobRetention:   5 * time.Minute,
		CheckInterval:  30 * time.Minute,
		ReprobeDelay:   45 * time.Second,
		ReprobeTimeout: 10 * time.Minute,
		StreamBuffer:   256,
	}
}

// LoadConfig overlays configured values onto the defaults.
func LoadConfig(cfg plugin.Config) (Config, error) {
	c := DefaultConfig()
	if cfg != nil {
		if err := cfg.Unmarshal(&c); err != nil {
			return c, fmt.Errorf("unmarshal updates config: %w", err)
		}
	}
	return c, nil
}

// Validate checks the loaded configuration for nonsense values.
func (c Config) Validate() error {
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.CommandTimeout <= c.ConnectTimeout {
		return fmt.Errorf("command_timeout (%s) must exceed connect_timeout (%s)",
			c.CommandTimeout, c.ConnectTimeout)
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("stream_buffer must be at least 1, got %d", c.StreamBuffer)
	}
	return nil
}
