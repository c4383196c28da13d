package ports

import (
	"context"
	"time"

	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
	Logout(ctx context.Context, token string) error
	GetTokenHash(token string) string
}

// TokenRepository stores revoked access tokens until they expire.
type TokenRepository interface {
	IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error)
	BlacklistToken(ctx context.Context, tokenHash string, expiresAt time.Time) error
}
