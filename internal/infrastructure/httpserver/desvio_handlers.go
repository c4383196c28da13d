package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

// mapServiceError converts service and data-source errors to HTTP errors.
func (s *Server) mapServiceError(err error, fallback string) error {
	var ve *services.ValidationError
	var fe *desvio.FetchError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"message": "validation failed",
			"errors":  ve.Errors,
		})
	case errors.Is(err, services.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, desvio.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, desvio.ErrMalformedKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &fe):
		if s.logger != nil {
			s.logger.WithError(err).Warn("list store request failed")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "sharepoint request failed")
	}
	if s.logger != nil {
		s.logger.WithError(err).Error(fallback)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}

// listDataset returns a cached snapshot of a list.
func (s *Server) listDataset(c echo.Context) error {
	q := desvio.Query{
		Dataset: c.Param("name"),
		Filter:  strings.TrimSpace(c.QueryParam("filter")),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		q.Limit = limit
	}

	rows, err := s.desvioSvc.List(c.Request().Context(), helpers.GetActorFromContext(c), q)
	if err != nil {
		return s.mapServiceError(err, "failed to load dataset")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dataset": q.Dataset,
		"items":   rows,
		"count":   len(rows),
	})
}

// getMotivos answers the motivo choices for the item's POI.
func (s *Server) getMotivos(c echo.Context) error {
	itemID, err := helpers.ParseIntParam(c, "id")
	if err != nil {
		return err
	}
	place, motivos, err := s.desvioSvc.Motivos(c.Request().Context(), helpers.GetActorFromContext(c), itemID)
	if err != nil {
		return s.mapServiceError(err, "failed to load motivos")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item_id":  itemID,
		"location": place,
		"motivos":  motivos,
	})
}

func (s *Server) submitTratativa(c echo.Context) error {
	itemID, err := helpers.ParseIntParam(c, "id")
	if err != nil {
		return err
	}

	var req desvio.Tratativa
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	status, err := s.desvioSvc.SubmitTratativa(c.Request().Context(), helpers.GetActorFromContext(c), itemID, req)
	if err != nil {
		return s.mapServiceError(err, "failed to save tratativa")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item_id": itemID,
		"status":  status,
	})
}

// reviewDesvios approves or rejects items. A partially applied review answers
// 207 with the number of saved items and the joined error.
func (s *Server) reviewDesvios(c echo.Context) error {
	var req desvio.ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	saved, err := s.desvioSvc.Review(c.Request().Context(), helpers.GetActorFromContext(c), req)
	if err != nil {
		if saved > 0 {
			return c.JSON(http.StatusMultiStatus, map[string]interface{}{
				"saved": saved,
				"total": len(req.ItemIDs),
				"error": err.Error(),
			})
		}
		return s.mapServiceError(err, "failed to save review")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"saved":    saved,
		"total":    len(req.ItemIDs),
		"decision": req.Decision,
	})
}
