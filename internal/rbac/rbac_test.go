package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

func userWithPerms(perms ...string) *models.User {
	menus := make([]models.Menu, 0, len(perms))
	for _, p := range perms {
		menus = append(menus, models.Menu{Perms: p, Status: models.StatusEnabled, Type: models.MenuTypeButton})
	}
	return &models.User{Roles: []models.Role{{Status: models.StatusEnabled, Menus: menus}}}
}

func TestVerifyAllowsGrantedCode(t *testing.T) {
	v := NewVerifier(true)
	require.NoError(t, v.Verify(userWithPerms("sys:dept:get"), "sys:dept:get"))
}

func TestVerifyDeniesMissingCode(t *testing.T) {
	v := NewVerifier(true)
	err := v.Verify(userWithPerms("sys:dept:get"), "sys:dept:del")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestVerifySuperuserBypass(t *testing.T) {
	v := NewVerifier(true)
	user := &models.User{IsSuperuser: true}
	require.NoError(t, v.Verify(user, "sys:dept:del"))
}

func TestVerifyFailOpenWhenDisabled(t *testing.T) {
	v := NewVerifier(false)
	require.NoError(t, v.Verify(&models.User{}, "sys:dept:del"))
}

func TestVerifyEmptyCodeIsServerError(t *testing.T) {
	v := NewVerifier(true)
	err := v.Verify(userWithPerms("sys:dept:get"), "  ")
	require.ErrorIs(t, err, apperrors.ErrInternalServer)
}

func TestPermissionCodesSplitsAndSkipsDisabledMenus(t *testing.T) {
	user := &models.User{Roles: []models.Role{{
		Menus: []models.Menu{
			{Perms: "sys:user:get, sys:user:add", Status: models.StatusEnabled},
			{Perms: "sys:user:del", Status: models.StatusDisabled},
		},
	}}}

	codes := PermissionCodes(user)
	require.Contains(t, codes, "sys:user:get")
	require.Contains(t, codes, "sys:user:add")
	require.NotContains(t, codes, "sys:user:del")
}
