package main

import (
	"github.com/spf13/cobra"
)

var waitUntilValueCmd = &cobra.Command{
	Use:   "waitUntilValue",
	Short: "wait until a key exists (and optionally until it has a given value)",
	Args:  cobra.NoArgs,
	RunE:  waitUntilValue,
}

var ensureValueEqualsCmd = &cobra.Command{
	Use:   "ensureValueEquals",
	Short: "check that a key exists and has a given value; signal result via exit code",
	Args:  cobra.NoArgs,
	RunE:  ensureValueEquals,
}

func init() {
	waitUntilValueCmd.Flags().String("key", "", "the key to monitor")
	waitUntilValueCmd.Flags().String("value", "", "the value to wait for; if not given, just waits until the key exists")
	_ = waitUntilValueCmd.MarkFlagRequired("key")

	ensureValueEqualsCmd.Flags().String("key", "", "the key whose value to check")
	ensureValueEqualsCmd.Flags().String("value", "", "the expected value")
	_ = ensureValueEqualsCmd.MarkFlagRequired("key")
	_ = ensureValueEqualsCmd.MarkFlagRequired("value")

	rootCmd.AddCommand(waitUntilValueCmd)
	rootCmd.AddCommand(ensureValueEqualsCmd)
}

func waitUntilValue(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")

	var value *string
	if cmd.Flags().Changed("value") {
		v, _ := cmd.Flags().GetString("value")
		value = &v
	}

	h, done := setupOrPanic(cmd)
	defer done()

	return h.WaitUntilValue(cmd.Context(), key, value)
}

func ensureValueEquals(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	value, _ := cmd.Flags().GetString("value")

	h, done := setupOrPanic(cmd)
	defer done()

	equal, err := h.EnsureValueEquals(cmd.Context(), key, value)
	if err != nil {
		return err
	}
	if !equal {
		return errPredicateFalse
	}

	return nil
}
