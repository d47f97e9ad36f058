package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "addin-test-server",
		Short: "HTTPS server that collects Office add-in test results",
		Long: `addin-test-server runs a small HTTPS server for automated Office add-in tests.

The add-in under test calls GET /ping to confirm the server is reachable and
POST /results?data=<json> once when its run is complete. The serve command
waits for that post, prints the results and exits non-zero when they do not
satisfy the configured pass condition.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default $"+"ADDIN_TEST_SERVER_CONFIG or ~/.config/addin-test-server/config.yaml)")

	rootCmd.AddCommand(
		newServeCommand(),
		newPingCommand(),
		newPostCommand(),
		newCheckCommand(),
		newConfigCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Error is already printed by cobra
		os.Exit(1)
	}
}
