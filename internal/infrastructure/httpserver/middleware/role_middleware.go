package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver/helpers"
)

// RoleMiddleware gates routes on the Perfil carried in the token.
type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

func (m *RoleMiddleware) require(allowed func(auth.Role) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, err := helpers.GetUserRoleFromContext(c)
			if err != nil {
				return err
			}
			if !allowed(role) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

// RequireReviewer allows profiles that approve or reject desvios.
func (m *RoleMiddleware) RequireReviewer() echo.MiddlewareFunc {
	return m.require(auth.Role.CanReview)
}

func (m *RoleMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return m.require(auth.Role.CanAdminister)
}
