package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/infrastructure/metrics"
)

// MetricsMiddleware feeds the HTTP collectors of the service metrics
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a new metrics middleware instance
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// CollectHTTPMetrics creates middleware that collects HTTP request metrics
func (m *MetricsMiddleware) CollectHTTPMetrics() echo.MiddlewareFunc {
	return echo.MiddlewareFunc(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.metrics == nil {
				return next(c)
			}
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			code := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
			status := strconv.Itoa(code)

			m.metrics.RequestsTotal.WithLabelValues(method, path, status).Inc()
			m.metrics.RequestDuration.WithLabelValues(method, path).Observe(duration)

			return err
		}
	})
}
