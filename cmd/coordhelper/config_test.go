package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite

	cmd *cobra.Command
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestLoadConfigShouldUseDefaults() {
	config, err := LoadConfig(s.cmd, envPrefix)
	s.Nil(err)
	s.Equal("consul", config.Backend)
	s.Equal(10*time.Second, config.SessionTTL)
	s.Equal(100*time.Millisecond, config.PollInterval)
	s.Equal(5*time.Minute, config.WaitTime)
	s.False(config.Verbose)
}

func (s *ConfigTestSuite) TestLoadConfigShouldReadFlags() {
	s.Require().Nil(s.cmd.ParseFlags([]string{"--verbose", "--session-ttl", "3s", "--backend", "redis"}))

	config, err := LoadConfig(s.cmd, envPrefix)
	s.Nil(err)
	s.True(config.Verbose)
	s.Equal(3*time.Second, config.SessionTTL)
	s.Equal("redis", config.Backend)
}

func (s *ConfigTestSuite) TestLoadConfigShouldReadEnvironment() {
	s.T().Setenv("COORDHELPER_CONSUL_ADDRESS", "10.0.0.1:8500")
	s.T().Setenv("COORDHELPER_POLL_INTERVAL", "250ms")

	config, err := LoadConfig(s.cmd, envPrefix)
	s.Nil(err)
	s.Equal("10.0.0.1:8500", config.ConsulAddress)
	s.Equal(250*time.Millisecond, config.PollInterval)
}

func (s *ConfigTestSuite) TestFlagsShouldTakePrecedenceOverEnvironment() {
	s.T().Setenv("COORDHELPER_BACKEND", "redis")
	s.Require().Nil(s.cmd.ParseFlags([]string{"--backend", "consul"}))

	config, err := LoadConfig(s.cmd, envPrefix)
	s.Nil(err)
	s.Equal("consul", config.Backend)
}

func (s *ConfigTestSuite) TestLoadConfigShouldReadConfigFile() {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().Nil(os.WriteFile(path, []byte("backend: redis\nredis-address: redis:6379\n"), 0o600))
	s.Require().Nil(s.cmd.ParseFlags([]string{"--config-file", path}))

	config, err := LoadConfig(s.cmd, envPrefix)
	s.Nil(err)
	s.Equal("redis", config.Backend)
	s.Equal("redis:6379", config.RedisAddress)
}

func (s *ConfigTestSuite) TestLoadConfigShouldFailOnMissingConfigFile() {
	s.Require().Nil(s.cmd.ParseFlags([]string{"--config-file", "/nonexistent/config.yaml"}))

	_, err := LoadConfig(s.cmd, envPrefix)
	s.NotNil(err)
}

func (s *ConfigTestSuite) SetupTest() {
	s.cmd = &cobra.Command{Use: "test"}
	addGlobalFlags(s.cmd.Flags())
}
