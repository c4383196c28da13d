package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if m.logger != nil {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
				entry := m.logger.WithFields(logrus.Fields{
					"method":     c.Request().Method,
					"path":       c.Path(),
					"status":     status,
					"latency_ms": time.Since(start).Milliseconds(),
					"actor":      helpers.GetActorFromContext(c).Email,
					"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				})
				if status >= 500 {
					entry.WithError(err).Error("request failed")
				} else {
					entry.Debug("request handled")
				}
			}
			return err
		}
	}
}
