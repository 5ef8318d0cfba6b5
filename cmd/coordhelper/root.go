package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cafebazaar/coordination-helper/internal/helper"
)

const envPrefix = "COORDHELPER"

var rootCmd = &cobra.Command{
	Use:   "coordhelper <subcommand>",
	Short: "coordination primitives for multi-machine bootstrap scripts",
	Long: `coordhelper provides locks, counters, barriers and service readiness
checks on top of a consul cluster (or redis) for scripts that must be run in
step across several machines. The outcome is reported through the exit code.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run:           nil,
}

func init() {
	cobra.OnInitialize()
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("config-file", "c", "", "Path to the config file (eg ./config.yaml) [Optional]")
	flags.BoolP("verbose", "v", false, "Log progress to stderr")
	flags.String("backend", "consul", "Coordination store: consul or redis")
	flags.String("consul-address", "", "Consul agent address; defaults to CONSUL_HTTP_ADDR or the local agent")
	flags.String("consul-datacenter", "", "Consul datacenter [Optional]")
	flags.String("consul-token", "", "Consul ACL token [Optional]")
	flags.String("redis-address", "localhost:6379", "Redis address when the redis backend is used")
	flags.String("redis-prefix", "coordination/", "Prefix of all redis keys")
	flags.Duration("session-ttl", helper.DefaultSessionTTL, "TTL of lock sessions")
	flags.Duration("poll-interval", helper.DefaultPollInterval, "Pause between retries when the store cannot block")
	flags.Duration("wait-time", helper.DefaultWaitTime, "Upper bound of a single blocking read")
	flags.String("node-name", "", "Node name used for service registration with the redis backend (default hostname)")
	flags.Bool("profiling", false, "Write a CPU profile of the invocation")
	flags.String("profile-path", ".", "Directory the CPU profile is written to")
}

// execute runs the selected subcommand and turns its outcome into the
// process exit code.
func execute() int {
	ctx, signals := withSignals(context.Background())
	defer signals.stop()

	err := rootCmd.ExecuteContext(ctx)
	return exitCode(err, signals.received())
}
