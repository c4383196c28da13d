package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
)

type ctxKey string

const (
	keyClaims    ctxKey = "claims"
	keyUserEmail ctxKey = "user_email"
	keyUserRole  ctxKey = "user_role"
	keyToken     ctxKey = "token"
	keySession   ctxKey = "session"
)

func SetClaims(c echo.Context, claims *auth.Claims) { c.Set(string(keyClaims), claims) }
func GetClaimsRaw(c echo.Context) (*auth.Claims, bool) {
	v := c.Get(string(keyClaims))
	cl, ok := v.(*auth.Claims)
	return cl, ok
}

func SetUserEmail(c echo.Context, email string) { c.Set(string(keyUserEmail), email) }
func GetUserEmailRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyUserEmail))
	s, ok := v.(string)
	return s, ok
}

func SetUserRole(c echo.Context, r auth.Role) { c.Set(string(keyUserRole), r) }
func GetUserRoleRaw(c echo.Context) (auth.Role, bool) {
	v := c.Get(string(keyUserRole))
	r, ok := v.(auth.Role)
	return r, ok
}

func SetToken(c echo.Context, token string) { c.Set(string(keyToken), token) }
func GetTokenRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyToken))
	s, ok := v.(string)
	return s, ok
}

func SetSession(c echo.Context, s *services.Session) { c.Set(string(keySession), s) }
func GetSessionRaw(c echo.Context) (*services.Session, bool) {
	v := c.Get(string(keySession))
	s, ok := v.(*services.Session)
	return s, ok
}
