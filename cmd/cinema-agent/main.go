package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amaumene/privatecinema/internal/agent"
	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/utils"
)

var version = "dev"

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
		Use:           "cinema-agent",
		Short:         "Scan local media and push it to Private Cinema",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newScanCmd(), newClaimCmd(), newPushCmd())
	return cmd
}

func setup() (*config.AgentConfig, *logrus.Logger, error) {
	cfg, err := config.LoadAgent()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, utils.NewLogger(cfg.LogLevel), nil
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan MOVIES_PATH and TV_PATH into the local catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.MoviesPath == "" && cfg.TVPath == "" {
				return fmt.Errorf("MOVIES_PATH or TV_PATH must be set")
			}

			ignore, err := utils.LoadIgnoreList(cfg.IgnoreFile)
			if err != nil {
				logger.WithError(err).Warn("Failed to load ignore list, continuing without it")
				ignore = utils.NewIgnoreList()
			}

			catalog := agent.NewScanner(ignore, logger).Scan(cfg.MoviesPath, cfg.TVPath)
			if err := catalog.Save(cfg.DataDir); err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"items":    len(catalog.Items),
				"data_dir": cfg.DataDir,
			}).Info("Scan complete")
			return nil
		},
	}
}

func newClaimCmd() *cobra.Command {
	var publicID, secret, name string

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Link this agent using the claim token shown in the app",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.ServerURL == "" {
				return fmt.Errorf("AGENT_SERVER_URL must be set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := agent.NewClient(cfg, logger).Claim(ctx, publicID, secret, name, version)
			if err != nil {
				return fmt.Errorf("claim failed: %w", err)
			}
			if err := agent.SaveKey(cfg.KeyFile, result.AgentAPIKey); err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"server_id": result.ServerID,
				"key_file":  cfg.KeyFile,
			}).Info("Agent linked, API key saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&publicID, "public-id", "", "claim public id (pub-...)")
	cmd.Flags().StringVar(&secret, "secret", "", "claim secret (sec-...)")
	cmd.Flags().StringVar(&name, "name", "", "name shown for this agent")
	cmd.MarkFlagRequired("public-id")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push the local catalog to agentIngest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.ServerURL == "" {
				return fmt.Errorf("AGENT_SERVER_URL must be set")
			}

			apiKey, err := agent.LoadKey(cfg.KeyFile)
			if err != nil {
				return err
			}
			catalog, err := agent.LoadCatalog(cfg.DataDir)
			if err != nil {
				return err
			}
			if len(catalog.Items) == 0 {
				logger.Info("No items in local catalog to push")
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := agent.NewClient(cfg, logger).Push(ctx, apiKey, catalog.Items)
			if err != nil {
				return err
			}

			for _, failed := range summary.Failed {
				logger.WithFields(logrus.Fields{
					"path":    failed.Path,
					"message": failed.Message,
				}).Warn("Item rejected")
			}
			logger.WithFields(logrus.Fields{
				"pages":    summary.Pages,
				"upserted": summary.Upserted,
				"failed":   len(summary.Failed),
			}).Info("Push complete")
			return nil
		},
	}
}
