package main

import (
	"github.com/spf13/cobra"
)

var counterIncrementCmd = &cobra.Command{
	Use:   "counterIncrement",
	Short: "atomically increment an integer-as-string counter",
	Args:  cobra.NoArgs,
	RunE:  counterIncrement,
}

func init() {
	counterIncrementCmd.Flags().String("key", "", "the key holding the counter")
	_ = counterIncrementCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(counterIncrementCmd)
}

func counterIncrement(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")

	h, done := setupOrPanic(cmd)
	defer done()

	_, err := h.CounterIncrement(cmd.Context(), key)
	return err
}
