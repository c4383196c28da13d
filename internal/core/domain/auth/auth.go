package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both credentials were sent.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return errors.New("email and password are required")
	}
	return nil
}

// AuthTokens represents the authentication tokens
type AuthTokens struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Role string

const (
	RoleOperador  Role = "operador"
	RoleAprovador Role = "aprovador"
	RoleAdmin     Role = "admin"
	RoleTorre     Role = "torre" // control tower, reviews and administers
)

// ParseRole reads the Perfil column. Unknown profiles get the least privilege.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAprovador, RoleAdmin, RoleTorre:
		return r
	}
	return RoleOperador
}

// CanReview reports whether the role may approve or reject desvios.
func (r Role) CanReview() bool {
	return r == RoleAprovador || r == RoleTorre
}

// CanAdminister reports whether the role may see audit logs and manage the cache.
func (r Role) CanAdminister() bool {
	return r == RoleAdmin || r == RoleTorre
}

// Claims represents JWT claims of a logged-in user.
type Claims struct {
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  Role     `json:"role"`
	Areas []string `json:"areas,omitempty"`

	jwt.RegisteredClaims
}

// Actor identifies who performed an action, for audit trails.
type Actor struct {
	Email     string
	Role      Role
	Areas     []string
	IPAddress string
	UserAgent string
}

// SeesAllAreas reports whether the actor bypasses the per-area restriction
// on desvios. Administrators and the control tower oversee every POI.
func (a Actor) SeesAllAreas() bool {
	return a.Role.CanAdminister()
}

// SystemActor is used when no user is logged in.
const SystemActor = "sistema@sentinela"
