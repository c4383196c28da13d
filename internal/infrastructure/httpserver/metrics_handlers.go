package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// LogMetricsInitialization logs that metrics have been initialized
func (s *Server) LogMetricsInitialization() {
	if s.logger != nil && s.metrics != nil {
		s.logger.Info("Prometheus metrics initialized and registered")
		s.logger.WithFields(map[string]interface{}{
			"http_requests_total":   "Counter for HTTP requests by method, endpoint, status",
			"http_request_duration": "Histogram for HTTP request duration by method, endpoint",
			"cache":                 "Cache hits, misses, evictions and expirations",
			"reloads":               "Refresh outcomes and durations by trigger",
			"metrics_endpoint":      "/metrics",
		}).Debug("Available Prometheus metrics")
	}
}

// metricsEndpoint wraps the metrics handler with logging
func (s *Server) metricsEndpoint(c echo.Context) error {
	if s.metrics == nil {
		return echo.NewHTTPError(http.StatusNotFound, "metrics disabled")
	}
	if s.logger != nil {
		s.logger.Debug("Serving Prometheus metrics")
	}
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
