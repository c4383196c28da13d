package helpers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/application/services"
)

// GetSessionFromContext returns the session preloaded by the session middleware
func GetSessionFromContext(c echo.Context) (*services.Session, error) {
	s, ok := GetSessionRaw(c)
	if !ok || s == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "session not available in context")
	}
	return s, nil
}
