package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

type createSessionRequest struct {
	AutoRefresh bool `json:"auto_refresh"`
}

type autoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r *autoRefreshRequest) Validate() error {
	if r.Enabled == nil {
		return errors.New("enabled is required")
	}
	return nil
}

// Field monitor events sent by the form.
const (
	fieldActionRegister = "register"
	fieldActionChange   = "change"
	fieldActionClear    = "clear"
	fieldActionClearAll = "clear_all"
)

type fieldEventRequest struct {
	Action string `json:"action"`
	Field  string `json:"field"`
	Value  any    `json:"value"`
}

func (r *fieldEventRequest) Validate() error {
	switch r.Action {
	case fieldActionClearAll:
		return nil
	case fieldActionRegister, fieldActionChange, fieldActionClear:
		if strings.TrimSpace(r.Field) == "" {
			return errors.New("field is required")
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", r.Action)
}

// createSession opens a dashboard session for the caller.
func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := helpers.GetActorFromContext(c)
	sess, err := s.sessions.Create(c.Request().Context(), actor.Email, req.AutoRefresh)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Error("failed to create session")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}
	if req.AutoRefresh {
		s.recordAudit(c, actor, audit.ActionRefreshEnable, audit.ResourceSession, sess.ID.String(), nil)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":      sess.ID,
		"refresh": sess.Coordinator.Status(),
	})
}

func (s *Server) closeSession(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}
	if err := s.sessions.Close(sess.ID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to close session")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getRefreshStatus(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Coordinator.Status())
}

// setAutoRefresh turns the periodic refresh of a session on or off.
func (s *Server) setAutoRefresh(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}
	var req autoRefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	enabled := *req.Enabled
	sess.Coordinator.Enable(enabled)

	action := audit.ActionRefreshDisable
	if enabled {
		action = audit.ActionRefreshEnable
	}
	s.recordAudit(c, helpers.GetActorFromContext(c), action, audit.ResourceSession, sess.ID.String(), nil)

	return c.JSON(http.StatusOK, sess.Coordinator.Status())
}

// forceRefresh reloads the session datasets now.
func (s *Server) forceRefresh(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}

	res, err := sess.Coordinator.ForceRefresh(c.Request().Context())
	s.recordAudit(c, helpers.GetActorFromContext(c), audit.ActionForceRefresh, audit.ResourceSession, sess.ID.String(), map[string]any{"ok": err == nil})
	switch {
	case errors.Is(err, services.ErrRefreshInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrCoordinatorClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case err != nil:
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

// recordFieldEvent feeds the session field monitor, which suppresses
// automatic refresh while a field differs from its loaded value.
func (s *Server) recordFieldEvent(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}
	var req fieldEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	switch req.Action {
	case fieldActionRegister:
		sess.Fields.RegisterOriginal(req.Field, req.Value)
	case fieldActionChange:
		sess.Fields.RecordChange(req.Field, req.Value)
	case fieldActionClear:
		sess.Fields.ClearField(req.Field)
	case fieldActionClearAll:
		sess.Fields.ClearAll()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"changed_fields": sess.Fields.Changed(),
		"refresh":        sess.Coordinator.Status(),
	})
}

// streamEvents pushes every delivered refresh result to the browser as a
// server-sent event. The last result, if any, is sent first.
func (s *Server) streamEvents(c echo.Context) error {
	sess, err := helpers.GetSessionFromContext(c)
	if err != nil {
		return err
	}

	ch, cancel := sess.Subscribe()
	defer cancel()

	w := c.Response()
	// the server write timeout would cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	if latest, ok := sess.Latest(); ok {
		if err := writeEvent(w, latest); err != nil {
			return nil
		}
	}

	heartbeat := time.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case res, open := <-ch:
			if !open {
				_, _ = fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				w.Flush()
				return nil
			}
			if err := writeEvent(w, res); err != nil {
				if s.logger != nil {
					s.logger.WithFields(logrus.Fields{"session_id": sess.ID}).WithError(err).Debug("event stream write failed")
				}
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, res refresh.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", b); err != nil {
		return err
	}
	w.Flush()
	return nil
}
