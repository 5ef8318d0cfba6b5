package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config the application's configuration structure
type Config struct {
	Backend          string        `mapstructure:"backend"`
	ConsulAddress    string        `mapstructure:"consul-address"`
	ConsulDatacenter string        `mapstructure:"consul-datacenter"`
	ConsulToken      string        `mapstructure:"consul-token"`
	RedisAddress     string        `mapstructure:"redis-address"`
	RedisPrefix      string        `mapstructure:"redis-prefix"`
	SessionTTL       time.Duration `mapstructure:"session-ttl"`
	PollInterval     time.Duration `mapstructure:"poll-interval"`
	WaitTime         time.Duration `mapstructure:"wait-time"`
	NodeName         string        `mapstructure:"node-name"`
	Verbose          bool          `mapstructure:"verbose"`
	Profiling        bool          `mapstructure:"profiling"`
	ProfilePath      string        `mapstructure:"profile-path"`
}

// LoadConfig loads the config from a file if specified, otherwise from the environment
func LoadConfig(cmd *cobra.Command, envPrefix string) (*Config, error) {
	v := viper.New()

	// Setting defaults for this application
	v.SetDefault("backend", "consul")
	v.SetDefault("consul-address", "")
	v.SetDefault("consul-datacenter", "")
	v.SetDefault("consul-token", "")
	v.SetDefault("redis-address", "localhost:6379")
	v.SetDefault("redis-prefix", "coordination/")
	v.SetDefault("session-ttl", "10s")
	v.SetDefault("poll-interval", "100ms")
	v.SetDefault("wait-time", "5m")
	v.SetDefault("node-name", "")
	v.SetDefault("verbose", false)
	v.SetDefault("profiling", false)
	v.SetDefault("profile-path", ".")

	// Read Config from ENV
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// Read Config from Flags
	err := v.BindPFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}

	// Read Config from file
	if configFile, err := cmd.Flags().GetString("config-file"); err == nil && configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config

	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
