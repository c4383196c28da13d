package middleware

import (
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/metrics"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT       *JWTMiddleware
	Logging   *LoggingMiddleware
	Role      *RoleMiddleware
	Session   *SessionMiddleware
	RateLimit *RateLimitMiddleware
	Metrics   *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware.
// rateLimiterService and m may be nil.
func NewMiddlewareCollection(
	authService ports.AuthService,
	sessionService *services.SessionService,
	rateLimiterService ports.RateLimiterService,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:       NewJWTMiddleware(authService, logger),
		Logging:   NewLoggingMiddleware(logger),
		Role:      NewRoleMiddleware(),
		Session:   NewSessionMiddleware(sessionService),
		RateLimit: NewRateLimitMiddleware(rateLimiterService, logger),
		Metrics:   NewMetricsMiddleware(m),
	}
}
