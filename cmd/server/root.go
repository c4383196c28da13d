package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/torrecontrole/sentinela/configs"
)

var rootCmd = &cobra.Command{
	Use:   "sentinela",
	Short: "Sistema Sentinela backend",
	Long: `sentinela serves the desvio monitoring dashboard of the control tower.

It reads and writes the SharePoint lists through an expiring cache and keeps
every open dashboard up to date with periodic refreshes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// serve is the default command
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newHashPasswordCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sentinela: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg configs.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

func loadConfig() (*configs.Config, *logrus.Logger, error) {
	cfg, err := configs.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, newLogger(cfg.Log), nil
}
