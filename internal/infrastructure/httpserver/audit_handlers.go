package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

// getAuditLogs answers one page of the admin audit view with the per-class totals.
func (s *Server) getAuditLogs(c echo.Context) error {
	if s.auditSvc == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit log is not configured")
	}
	var filter audit.AuditLogFilter
	if err := c.Bind(&filter); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if filter.Class != "" && filter.Class.Actions() == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action class")
	}
	page, err := s.auditSvc.GetAuditLogs(c.Request().Context(), &filter)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("failed to load audit logs")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load audit logs")
	}
	return c.JSON(http.StatusOK, page)
}

// getItemHistory answers every audit entry of one desvio item, oldest first.
func (s *Server) getItemHistory(c echo.Context) error {
	if s.auditSvc == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit log is not configured")
	}
	itemID, err := helpers.ParseIntParam(c, "id")
	if err != nil {
		return err
	}
	dataset := c.QueryParam("dataset")
	if dataset == "" {
		dataset = s.config.DesviosDataset
	}
	logs, err := s.auditSvc.ItemHistory(c.Request().Context(), dataset, itemID)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("item_id", itemID).Error("failed to load item history")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load item history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item_id": itemID,
		"dataset": dataset,
		"history": logs,
	})
}
