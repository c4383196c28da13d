package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting Sistema Sentinela...")

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	bg, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.local.Run(bg, cfg.Cache.SweepInterval)
	go a.sessions.Run(bg, cfg.Session.ReapInterval, cfg.Session.IdleTimeout)
	go a.sweeper.Run(bg, cfg.AutoStatus.Interval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()
	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	// close sessions first so open event streams end
	a.sessions.CloseAll()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.notifications.Wait()
	logger.Info("Server exited")
	return nil
}
