package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, auth.RoleAprovador, auth.ParseRole(" Aprovador "))
	assert.Equal(t, auth.RoleTorre, auth.ParseRole("TORRE"))
	assert.Equal(t, auth.RoleAdmin, auth.ParseRole("admin"))
	assert.Equal(t, auth.RoleOperador, auth.ParseRole(""))
	assert.Equal(t, auth.RoleOperador, auth.ParseRole("gerente"))
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, auth.RoleAprovador.CanReview())
	assert.True(t, auth.RoleTorre.CanReview())
	assert.False(t, auth.RoleAdmin.CanReview())
	assert.False(t, auth.RoleOperador.CanReview())

	assert.True(t, auth.RoleAdmin.CanAdminister())
	assert.True(t, auth.RoleTorre.CanAdminister())
	assert.False(t, auth.RoleAprovador.CanAdminister())
}

func TestActor_SeesAllAreas(t *testing.T) {
	assert.True(t, auth.Actor{Role: auth.RoleTorre}.SeesAllAreas())
	assert.True(t, auth.Actor{Role: auth.RoleAdmin}.SeesAllAreas())
	assert.False(t, auth.Actor{Role: auth.RoleAprovador, Areas: []string{"Geral"}}.SeesAllAreas())
	assert.False(t, auth.Actor{Role: auth.RoleOperador}.SeesAllAreas())
}
