package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

// Auth handlers
func (s *Server) login(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tokens, err := s.authSvc.Login(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		if s.logger != nil {
			s.logger.WithError(err).Error("login failed")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "user directory unavailable")
	}

	actor := helpers.GetActorFromContext(c)
	actor.Email = strings.ToLower(strings.TrimSpace(req.Email))
	s.recordAudit(c, actor, audit.ActionLogin, audit.ResourceUser, actor.Email, map[string]any{"method": "password"})

	return c.JSON(http.StatusOK, tokens)
}

func (s *Server) logout(c echo.Context) error {
	token, err := helpers.GetJWTTokenFromContext(c)
	if err != nil {
		return err
	}

	if err := s.authSvc.Logout(c.Request().Context(), token); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to logout")
	}

	actor := helpers.GetActorFromContext(c)
	s.recordAudit(c, actor, audit.ActionLogout, audit.ResourceUser, actor.Email, map[string]any{"token_hash": s.authSvc.GetTokenHash(token)})

	return c.NoContent(http.StatusOK)
}

// recordAudit writes an audit entry for the request. Failures are logged and
// never change the response.
func (s *Server) recordAudit(c echo.Context, actor auth.Actor, action audit.AuditAction, resource audit.AuditResource, resourceID string, details any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.LogAction(context.WithoutCancel(c.Request().Context()), &audit.CreateAuditLogRequest{
		Actor:      actor.Email,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	})
	if err != nil && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"action": action, "actor": actor.Email}).WithError(err).Warn("failed to record audit entry")
	}
}
