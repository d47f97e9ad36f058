package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"addintestserver/internal/results"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Evaluate a saved results file against a pass condition",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().String("pass-if", "", "Expression the results must satisfy, e.g. 'failed == 0'")
	cmd.MarkFlagRequired("pass-if")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	condition, _ := cmd.Flags().GetString("pass-if")
	evaluator, err := results.NewEvaluator(condition)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read results %s: %w", args[0], err)
	}
	var payload results.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode results %s: %w", args[0], err)
	}

	passed, err := evaluator.Evaluate(payload)
	if err != nil {
		return err
	}
	if !passed {
		fmt.Fprintln(cmd.OutOrStdout(), "FAIL")
		return errTestsFailed
	}
	fmt.Fprintln(cmd.OutOrStdout(), "PASS")
	return nil
}
