package health

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/torrecontrole/sentinela/internal/core/ports"
	infraDB "github.com/torrecontrole/sentinela/internal/infrastructure/db"
)

// dbHealthChecker wraps the audit database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string                    { return "database" }
func (d *dbHealthChecker) Check(ctx context.Context) error { return d.db.Ping(ctx) }

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client *redis.Client }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Pinger is anything that can prove it reaches its backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// sharePointHealthChecker checks the list store the desvios are read from.
type sharePointHealthChecker struct{ store Pinger }

func (s *sharePointHealthChecker) Name() string { return "sharepoint" }
func (s *sharePointHealthChecker) Check(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("sharepoint unreachable: %w", err)
	}
	return nil
}

// NewDBHealthChecker creates a health checker for the database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client *redis.Client) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}

// NewSharePointHealthChecker creates a health checker for the remote list store.
func NewSharePointHealthChecker(store Pinger) ports.HealthChecker {
	return &sharePointHealthChecker{store: store}
}
