package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/infrastructure/memcache"
)

const (
	tokenPrefix = "sentinela_tokens"
)

// TokenRedisRepository keeps revoked token hashes in Redis until they expire.
type TokenRedisRepository struct {
	client redis.Cmdable
	logger *logrus.Logger
}

// NewTokenRedisRepository creates a new Redis token repository
func NewTokenRedisRepository(client redis.Cmdable, logger *logrus.Logger) *TokenRedisRepository {
	return &TokenRedisRepository{client: client, logger: logger}
}

func (r *TokenRedisRepository) BlacklistToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	key := fmt.Sprintf("%s:blacklist:%s", tokenPrefix, tokenHash)
	if err := r.client.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token in Redis: %w", err)
	}
	return nil
}

func (r *TokenRedisRepository) IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	key := fmt.Sprintf("%s:blacklist:%s", tokenPrefix, tokenHash)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"token_hash": tokenHash}).WithError(err).Warn("failed to check token blacklist")
		}
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

// TokenMemoryRepository is the single-instance blacklist used without Redis.
type TokenMemoryRepository struct {
	revoked *memcache.Cache[struct{}]
}

func NewTokenMemoryRepository(maxEntries int) (*TokenMemoryRepository, error) {
	c, err := memcache.New[struct{}](memcache.Config{DefaultTTL: time.Hour, MaxEntries: maxEntries})
	if err != nil {
		return nil, err
	}
	return &TokenMemoryRepository{revoked: c}, nil
}

func (r *TokenMemoryRepository) BlacklistToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.revoked.Set(tokenHash, struct{}{}, ttl)
}

func (r *TokenMemoryRepository) IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	_, ok, err := r.revoked.Get(tokenHash)
	return ok, err
}
