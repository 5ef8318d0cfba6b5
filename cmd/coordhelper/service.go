package main

import (
	"github.com/spf13/cobra"

	"github.com/cafebazaar/coordination-helper/internal/helper"
	"github.com/cafebazaar/coordination-helper/pkg/coordination"
)

var waitUntilServiceCmd = &cobra.Command{
	Use:   "waitUntilService",
	Short: "wait until a service is passing with at least one node",
	Args:  cobra.NoArgs,
	RunE:  waitUntilService,
}

var registerServiceCmd = &cobra.Command{
	Use:   "registerService",
	Short: "register a service instance guarded by a TTL check",
	Args:  cobra.NoArgs,
	RunE:  registerService,
}

func init() {
	waitUntilServiceCmd.Flags().String("service", "", "the service to monitor")
	waitUntilServiceCmd.Flags().String("node", "", "only consider instances on the given node")
	waitUntilServiceCmd.Flags().Bool("wait-for-index-change", false,
		"wait until the checks of the service changed at least once before accepting it as passing")
	_ = waitUntilServiceCmd.MarkFlagRequired("service")

	registerServiceCmd.Flags().String("service", "", "the service name")
	registerServiceCmd.Flags().String("service-id", "", "the instance id (default service name)")
	registerServiceCmd.Flags().String("check-id", "", "the id of the TTL check")
	registerServiceCmd.Flags().Duration("ttl", 0, "the TTL of the check")
	registerServiceCmd.Flags().String("node", "", "the node of the instance (redis backend only)")
	_ = registerServiceCmd.MarkFlagRequired("service")
	_ = registerServiceCmd.MarkFlagRequired("check-id")
	_ = registerServiceCmd.MarkFlagRequired("ttl")

	rootCmd.AddCommand(waitUntilServiceCmd)
	rootCmd.AddCommand(registerServiceCmd)
}

func waitUntilService(cmd *cobra.Command, args []string) error {
	query := helper.ServiceQuery{}
	query.Service, _ = cmd.Flags().GetString("service")
	query.Node, _ = cmd.Flags().GetString("node")
	query.WaitForIndexChange, _ = cmd.Flags().GetBool("wait-for-index-change")

	h, done := setupOrPanic(cmd)
	defer done()

	_, err := h.WaitUntilService(cmd.Context(), query)
	return err
}

func registerService(cmd *cobra.Command, args []string) error {
	registration := coordination.ServiceRegistration{}
	registration.Name, _ = cmd.Flags().GetString("service")
	registration.ID, _ = cmd.Flags().GetString("service-id")
	registration.CheckID, _ = cmd.Flags().GetString("check-id")
	registration.TTL, _ = cmd.Flags().GetDuration("ttl")
	registration.Node, _ = cmd.Flags().GetString("node")

	h, done := setupOrPanic(cmd)
	defer done()

	return h.RegisterService(cmd.Context(), registration)
}
