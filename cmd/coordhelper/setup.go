package main

import (
	"os"
	"path/filepath"

	"github.com/go-redis/redis"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cafebazaar/coordination-helper/internal/backend/consul"
	redisBackend "github.com/cafebazaar/coordination-helper/internal/backend/redis"
	"github.com/cafebazaar/coordination-helper/internal/helper"
	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

// setupOrPanic builds the helper for a subcommand. The returned function
// closes the store and stops profiling.
func setupOrPanic(cmd *cobra.Command) (*helper.Helper, func()) {
	config := loadConfigOrPanic(cmd)
	configureLogging(config)

	stopProfiling := startProfiling(config)
	store := connectToStoreOrPanic(config)

	h := helper.New(store,
		helper.WithSessionTTL(config.SessionTTL),
		helper.WithPollInterval(config.PollInterval),
		helper.WithWaitTime(config.WaitTime))

	return h, func() {
		if err := h.Close(); err != nil {
			log.WithError(err).Warn("failed to close store")
		}
		stopProfiling()
	}
}

func loadConfigOrPanic(cmd *cobra.Command) *Config {
	config, err := LoadConfig(cmd, envPrefix)
	if err != nil {
		log.WithError(err).Panic("Failed to load configurations")
	}
	return config
}

func configureLogging(config *Config) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	if config.Verbose {
		log.SetLevel(log.DebugLevel)
	}
}

func startProfiling(config *Config) func() {
	if !config.Profiling {
		return func() {}
	}

	path, err := filepath.Abs(config.ProfilePath)
	if err != nil {
		log.WithError(err).Warn("invalid profile path, profiling disabled")
		return func() {}
	}

	return profile.Start(profile.CPUProfile, profile.ProfilePath(path),
		profile.NoShutdownHook, profile.Quiet).Stop
}

func connectToStoreOrPanic(config *Config) coordination.Store {
	switch config.Backend {
	case "consul":
		return connectToConsulOrPanic(config)

	case "redis":
		return connectToRedisOrPanic(config)

	default:
		log.Panicf("unknown backend: %v", config.Backend)
		return nil
	}
}

func connectToConsulOrPanic(config *Config) coordination.Store {
	store, err := consul.New(consul.Config{
		Address:    config.ConsulAddress,
		Datacenter: config.ConsulDatacenter,
		Token:      config.ConsulToken,
	})
	if err != nil {
		panicWithError(err, "failed to connect to consul")
	}
	return store
}

func connectToRedisOrPanic(config *Config) coordination.Store {
	client := redis.NewClient(&redis.Options{Addr: config.RedisAddress})

	options := []redisBackend.Option{
		redisBackend.WithPrefix(config.RedisPrefix),
		redisBackend.WithPollInterval(config.PollInterval),
	}
	if node := nodeName(config); node != "" {
		options = append(options, redisBackend.WithNode(node))
	}

	return redisBackend.New(client, config.RedisAddress, options...)
}

func nodeName(config *Config) string {
	if config.NodeName != "" {
		return config.NodeName
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.WithError(err).Warn("could not determine hostname")
		return ""
	}
	return hostname
}

func panicWithError(err error, format string, args ...interface{}) {
	log.WithError(err).Panicf(format, args...)
}
