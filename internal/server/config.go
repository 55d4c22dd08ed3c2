package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/fleetpatch.db")

	// Module defaults
	v.SetDefault("plugins.inventory.enabled", true)
	v.SetDefault("plugins.updates.enabled", true)
	v.SetDefault("plugins.updates.max_sessions", 4)
	v.SetDefault("plugins.updates.cache_ttl", "1h")
	v.SetDefault("plugins.updates.connect_timeout", "10s")
	v.SetDefault("plugins.updates.command_timeout", "15m")
	v.SetDefault("plugins.updates.job_retention", "5m")
	v.SetDefault("plugins.updates.check_interval", "30m")
	v.SetDefault("plugins.updates.check_rate", 1.0)
	v.SetDefault("plugins.updates.reprobe_delay", "45s")
	v.SetDefault("plugins.updates.reprobe_timeout", "10m")
	v.SetDefault("plugins.updates.stream_buffer", 256)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fleetpatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleetpatch")
	}

	// Environment variable support: FP_SERVER_PORT=9090
	v.SetEnvPrefix("FP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
