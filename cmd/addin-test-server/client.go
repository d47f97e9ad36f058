package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"addintestserver/internal/client"
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "https://localhost:4201", "Base URL of the test server")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification (self-signed test certificates only)")
	cmd.Flags().Duration("request-timeout", 10*time.Second, "HTTP request timeout")
}

func clientFromFlags(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("url")
	insecure, _ := cmd.Flags().GetBool("insecure")
	timeout, _ := cmd.Flags().GetDuration("request-timeout")
	return client.New(url, client.Options{
		InsecureSkipVerify: insecure,
		Timeout:            timeout,
	})
}

func newPingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a test server is reachable and print its platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := clientFromFlags(cmd).Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post JSON",
		Short: "Post test results to a running test server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[0])) {
				return fmt.Errorf("results must be valid JSON")
			}
			if err := clientFromFlags(cmd).PostRawResults(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "results posted")
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}
