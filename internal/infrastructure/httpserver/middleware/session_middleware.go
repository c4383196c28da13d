package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

type SessionMiddleware struct {
	sessions *services.SessionService
}

func NewSessionMiddleware(sessions *services.SessionService) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// PreloadSession resolves the :id session and checks that the caller owns
// it. Administrators may reach any session.
func (m *SessionMiddleware) PreloadSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := helpers.ParseUUIDParam(c, "id")
			if err != nil {
				return err
			}
			sess, err := m.sessions.Get(id)
			if err != nil {
				if errors.Is(err, services.ErrSessionNotFound) {
					return echo.NewHTTPError(http.StatusNotFound, "session not found")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
			}

			actor := helpers.GetActorFromContext(c)
			if !strings.EqualFold(sess.Actor, actor.Email) && !actor.Role.CanAdminister() {
				return echo.NewHTTPError(http.StatusForbidden, "session belongs to another user")
			}
			helpers.SetSession(c, sess)
			return next(c)
		}
	}
}
