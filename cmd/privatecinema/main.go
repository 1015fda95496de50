package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/tracing"
	"github.com/amaumene/privatecinema/internal/utils"
)

const serviceName = "privatecinema"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Private Cinema link and ingest service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd(), newBackfillCmd(), newMintTokenCmd())
	return cmd
}

// setup loads configuration and builds the logger shared by all commands
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLoggerWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Debug("Configuration loaded")
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the backfill scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			logger.Info("Starting Private Cinema")

			shutdownTracing := tracing.Setup(serviceName, cfg.TracingEnabled, logger)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logger.WithError(err).Warn("Failed to flush traces")
				}
			}()

			app, cleanup, err := initializeApp(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer app.Scheduler.Stop()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			serverErrChan := make(chan error, 1)
			go func() {
				serverErrChan <- app.Server.Start(ctx)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			logger.Info("Private Cinema is running")

			select {
			case err := <-serverErrChan:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case sig := <-sigChan:
				logger.WithField("signal", sig).Info("Received shutdown signal")
				cancel()
				if err := <-serverErrChan; err != nil {
					logger.WithError(err).Error("Error during server shutdown")
				}
			}

			logger.Info("Private Cinema stopped")
			return nil
		},
	}
}

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Run one TMDB metadata backfill sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			app, cleanup, err := initializeApp(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			owners, err := app.Enrich.BackfillSweep(ctx)
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}
			logger.WithField("owners", owners).Info("Backfill finished")
			return nil
		},
	}
}

func newMintTokenCmd() *cobra.Command {
	var uid string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Print a signed ID token for a user (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			token, err := provideVerifier(cfg, logger).Mint(uid, ttl)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "user id to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.MarkFlagRequired("uid")
	return cmd
}
