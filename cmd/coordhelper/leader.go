package main

import (
	"github.com/spf13/cobra"
)

var waitForLeaderCmd = &cobra.Command{
	Use:   "waitForLeader",
	Short: "wait until the store has elected a leader",
	Long: `wait until the store has elected a leader, then notify the service
manager. Prefer waitForSession, a leader alone does not mean sessions work.`,
	Args: cobra.NoArgs,
	RunE: waitForLeader,
}

var waitForSessionCmd = &cobra.Command{
	Use:   "waitForSession",
	Short: "wait until a session could be started",
	Args:  cobra.NoArgs,
	RunE:  waitForSession,
}

func init() {
	rootCmd.AddCommand(waitForLeaderCmd)
	rootCmd.AddCommand(waitForSessionCmd)
}

func waitForLeader(cmd *cobra.Command, args []string) error {
	h, done := setupOrPanic(cmd)
	defer done()

	if _, err := h.WaitForLeader(cmd.Context()); err != nil {
		return err
	}

	notifyReady()
	return nil
}

func waitForSession(cmd *cobra.Command, args []string) error {
	h, done := setupOrPanic(cmd)
	defer done()

	if err := h.WaitForSession(cmd.Context()); err != nil {
		return err
	}

	notifyReady()
	return nil
}
