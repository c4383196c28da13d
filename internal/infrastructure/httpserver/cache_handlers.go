package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

func (s *Server) getCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.data.Stats())
}

func (s *Server) clearCache(c echo.Context) error {
	before := s.data.Stats().Size
	s.data.Clear(c.Request().Context())

	s.recordAudit(c, helpers.GetActorFromContext(c), audit.ActionCacheClear, audit.ResourceCache, "", map[string]any{"entries": before})
	if s.logger != nil {
		s.logger.WithField("entries", before).Info("cache cleared")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) invalidateDataset(c echo.Context) error {
	dataset := strings.TrimSpace(c.Param("dataset"))
	if dataset == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dataset is required")
	}
	n := s.data.InvalidateDataset(c.Request().Context(), dataset)

	s.recordAudit(c, helpers.GetActorFromContext(c), audit.ActionCacheClear, audit.ResourceCache, dataset, map[string]any{"entries": n})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dataset":     dataset,
		"invalidated": n,
	})
}
