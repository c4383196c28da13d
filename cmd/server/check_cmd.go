package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/health"
	"github.com/torrecontrole/sentinela/internal/infrastructure/redis"
	"github.com/torrecontrole/sentinela/internal/infrastructure/sharepoint"
)

func newCheckCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configuration and reachability of SharePoint and Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := sharepoint.NewClient(sharePointConfig(cfg), logger)
			if err != nil {
				return err
			}
			checkers := []ports.HealthChecker{health.NewSharePointHealthChecker(store)}
			if cfg.Redis.Enabled {
				client, err := redis.NewRedisClient(&cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				checkers = append(checkers, health.NewRedisHealthChecker(client))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			failed := 0
			for _, hc := range checkers {
				if err := hc.Check(ctx); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s FAIL  %v\n", hc.Name(), err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s ok\n", hc.Name())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(checkers))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit for the checks")
	return cmd
}
