// approval-reminder is the scheduled approval reminder job.
//
// It looks for any orders that have been awaiting approval for more than
// the configured threshold and emails a reminder to the approving users,
// skipping any order whose approvers were already reminded. An external
// scheduler kicks it off hourly; the binary itself is single-shot.
//
// Usage:
//
//	approval-reminder run
//	approval-reminder run --dry-run
//	approval-reminder check-config
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/etundra-bsmith/approval-reminder/internal/config"
	"github.com/etundra-bsmith/approval-reminder/internal/mailer"
	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
	"github.com/etundra-bsmith/approval-reminder/internal/reminder"
)

var version = "dev"

// Exit codes. Per-order failures never change the exit code; only the
// fatal classes do.
const (
	exitOK        = 0
	exitConfig    = 2
	exitAuth      = 3
	exitDiscovery = 4
)

func main() {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rootCmd := &cobra.Command{
		Use:          "approval-reminder",
		Short:        "Send reminder emails for orders stuck awaiting approval",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(runCmd(logger))
	rootCmd.AddCommand(checkConfigCmd(logger))

	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(exitCode(err))
	}
}

// runCmd executes one full reminder pass.
func runCmd(logger *zap.Logger) *cobra.Command {
	var (
		thresholdHours int
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one reminder pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if cmd.Flags().Changed("threshold-hours") {
				cfg.Threshold = time.Duration(thresholdHours) * time.Hour
			}
			cfg.DryRun = dryRun
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().IntVar(&thresholdHours, "threshold-hours", 48, "Hours an order may await approval before a reminder")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Discover and resolve but send nothing and patch nothing")
	return cmd
}

// checkConfigCmd verifies the environment without touching the network.
func checkConfigCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("Verifying config")
			if err := config.FromEnv().Validate(); err != nil {
				logger.Error("Config invalid", zap.Error(err))
				return err
			}
			logger.Info("Config OK")
			return nil
		},
	}
}

// run wires the collaborators and executes the pipeline. Separated from
// the cobra handler for testability.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Verifying config")
	if err := cfg.Validate(); err != nil {
		logger.Error("Config invalid", zap.Error(err))
		return err
	}

	sender, err := mailer.New(logger, mailer.Config{
		APIKey:  cfg.MandrillKey,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return &config.Error{Field: "MANDRILL_API_KEY", Reason: err.Error()}
	}

	deps := reminder.Dependencies{
		Authenticate: func(ctx context.Context) (string, error) {
			return ordercloud.Authenticate(ctx, logger, ordercloud.AuthConfig{
				AuthURL:      cfg.AuthURL,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scope:        cfg.Scope,
				Timeout:      cfg.HTTPTimeout,
			})
		},
		NewPlatform: func(token string) (reminder.PlatformAPI, error) {
			return ordercloud.NewClient(logger, ordercloud.ClientConfig{
				BaseURL: cfg.APIURL,
				Token:   token,
				Timeout: cfg.HTTPTimeout,
			})
		},
		Sender: sender,
	}

	pipeline := reminder.NewPipeline(logger, deps, reminder.PipelineOptions{
		Threshold: cfg.Threshold,
		Template:  cfg.Template,
		DryRun:    cfg.DryRun,
	})

	_, err = pipeline.Run(ctx)
	return err
}

// exitCode maps fatal error classes to distinct process exit codes so the
// scheduler can tell an aborted run from a completed one.
func exitCode(err error) int {
	var (
		cfgErr  *config.Error
		authErr *ordercloud.AuthError
		discErr *reminder.DiscoveryError
	)
	switch {
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &authErr):
		return exitAuth
	case errors.As(err, &discErr):
		return exitDiscovery
	default:
		return 1
	}
}
