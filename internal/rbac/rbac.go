package rbac

import (
	"strings"

	apperrors "github.com/castellan-io/castellan/pkg/errors"

	"github.com/castellan-io/castellan/internal/models"
)

// Verifier checks declared permission codes against a principal's role menus.
type Verifier struct {
	enabled bool
}

// NewVerifier constructs the RBAC gate. When enabled is false the gate is
// fail-open: declared codes are accepted without checking (non-RBAC
// deployments).
func NewVerifier(enabled bool) *Verifier {
	return &Verifier{enabled: enabled}
}

// Enabled reports whether role-menu RBAC enforcement is active.
func (v *Verifier) Enabled() bool {
	return v.enabled
}

// Verify returns nil when the principal may perform the operation declared by
// code. Superusers bypass the check unconditionally. An empty code is a route
// registration mistake and is reported as a server error, not as forbidden.
func (v *Verifier) Verify(user *models.User, code string) error {
	if !v.enabled {
		return nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.ErrInternalServer.WithMessage("Permission code is not declared")
	}

	if user == nil {
		return apperrors.ErrUnauthorized
	}
	if user.IsSuperuser {
		return nil
	}

	if _, ok := PermissionCodes(user)[code]; !ok {
		return apperrors.ErrForbidden
	}
	return nil
}

// PermissionCodes derives the principal's effective permission codes: the union
// of the codes on all menus attached to the principal's roles. Menu perms may
// carry several comma-separated codes.
func PermissionCodes(user *models.User) map[string]struct{} {
	codes := make(map[string]struct{})
	if user == nil {
		return codes
	}

	for _, role := range user.Roles {
		for _, menu := range role.Menus {
			if menu.Status != models.StatusEnabled {
				continue
			}
			for _, code := range strings.Split(menu.Perms, ",") {
				code = strings.TrimSpace(code)
				if code != "" {
					codes[code] = struct{}{}
				}
			}
		}
	}
	return codes
}
