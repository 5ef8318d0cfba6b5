package main

import (
	"github.com/spf13/cobra"

	"github.com/cafebazaar/coordination-helper/internal/helper"
)

var lockedCommandCmd = &cobra.Command{
	Use:   "lockedCommand",
	Short: "run a shell command wrapped in a distributed lock",
	Long: `run a shell command wrapped in a distributed lock; similar to
"consul lock", but exits with the exit code of the child command.`,
	Args: cobra.NoArgs,
	RunE: lockedCommand,
}

func init() {
	lockedCommandCmd.Flags().String("key", "", "the key under which to create the lock")
	lockedCommandCmd.Flags().String("shell-command", "", "command to run")
	lockedCommandCmd.Flags().String("pass-check-id", "", "a check to mark as TTL-passed if the exit code is 0")
	_ = lockedCommandCmd.MarkFlagRequired("key")
	_ = lockedCommandCmd.MarkFlagRequired("shell-command")

	rootCmd.AddCommand(lockedCommandCmd)
}

func lockedCommand(cmd *cobra.Command, args []string) error {
	request := helper.LockedCommandRequest{}
	request.Key, _ = cmd.Flags().GetString("key")
	request.ShellCommand, _ = cmd.Flags().GetString("shell-command")
	request.PassCheckID, _ = cmd.Flags().GetString("pass-check-id")

	h, done := setupOrPanic(cmd)
	defer done()

	code, err := h.LockedCommand(cmd.Context(), request)
	if err != nil {
		return err
	}
	if code != 0 {
		return &commandExitError{code: code}
	}

	return nil
}
