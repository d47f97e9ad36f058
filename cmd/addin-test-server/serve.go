package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"addintestserver/internal/certs"
	"addintestserver/internal/config"
	"addintestserver/internal/results"
	"addintestserver/internal/server"
	"addintestserver/internal/telemetry"
	"addintestserver/pkg/logger"
)

// errTestsFailed is returned when results arrive but fail the pass condition.
var errTestsFailed = errors.New("test results did not satisfy the pass condition")

const stopTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the test server and wait for results",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("port", config.DefaultPort, "Port to listen on (0 picks a free port)")
	cmd.Flags().String("host", "", "Host to bind (empty listens on all interfaces)")
	cmd.Flags().Bool("relax-tls", false, "Skip TLS verification in the server's own client (local test runs only)")
	cmd.Flags().Duration("timeout", 0, "Give up when no results arrive within this duration (0 waits forever)")
	cmd.Flags().String("pass-if", "", "Expression the results must satisfy, e.g. 'failed == 0'")
	cmd.Flags().String("output", "", "Write results JSON to this file instead of stdout")
	cmd.Flags().Bool("self-check", true, "Ping the server through its own client after it starts")
	return cmd
}

// loadServeConfig loads the config file and applies explicitly set flags on top.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("relax-tls") {
		cfg.Server.RelaxTLSValidation, _ = flags.GetBool("relax-tls")
	}
	if flags.Changed("timeout") {
		cfg.Results.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("pass-if") {
		cfg.Results.PassCondition, _ = flags.GetString("pass-if")
	}
	if flags.Changed("output") {
		cfg.Results.OutputPath, _ = flags.GetString("output")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Configure(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	evaluator, err := results.NewEvaluator(cfg.Results.PassCondition)
	if err != nil {
		return err
	}

	sink, closer, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer closer.Close()

	srv := server.New(cfg.Server.Port,
		server.WithHost(cfg.Server.Host),
		server.WithCertProvider(certs.NewProvider(cfg.TLS, cfg.Server.Host)),
		server.WithTelemetry(sink),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := srv.Start(ctx, cfg.Server.RelaxTLSValidation); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if _, err := srv.Stop(stopCtx); err != nil {
			logger.Error("[Serve] stop failed", "error", err)
		}
	}()
	logger.Info("[Serve] Waiting for test results", "url", srv.URL(), "timeout", cfg.Results.Timeout)

	selfCheck, _ := cmd.Flags().GetBool("self-check")
	payload, err := waitForResults(ctx, srv, cfg.Results.Timeout, selfCheck)
	if err != nil {
		return fmt.Errorf("no test results received: %w", err)
	}

	if err := writeResults(cmd.OutOrStdout(), cfg.Results.OutputPath, payload); err != nil {
		return err
	}

	passed, err := evaluator.Evaluate(payload)
	if err != nil {
		return err
	}
	if !passed {
		logger.Warn("[Serve] Test run failed", "condition", evaluator.Condition())
		return errTestsFailed
	}
	logger.Info("[Serve] Test run passed", "condition", evaluator.Condition())
	return nil
}

// waitForResults awaits the results post, optionally pinging the server in
// parallel. A failed self-check is logged and the wait continues: remote
// clients may still reach a server its own client cannot verify.
func waitForResults(ctx context.Context, srv *server.TestServer, timeout time.Duration, selfCheck bool) (results.Payload, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	var payload results.Payload
	g.Go(func() error {
		p, err := srv.AwaitResults(gctx)
		payload = p
		return err
	})
	if selfCheck {
		g.Go(func() error {
			name, err := srv.Client().Ping(gctx)
			if err != nil {
				if gctx.Err() == nil {
					logger.Warn("[Serve] self-check ping failed", "url", srv.URL(), "error", err)
				}
				return nil
			}
			logger.Debug("[Serve] self-check ok", "platform", name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeResults(stdout io.Writer, path string, p results.Payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
