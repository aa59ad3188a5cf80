package auth

import (
	"github.com/civic-desk/complaint-portal/internal/domain"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// Capability names a permission required by a role-gated action.
type Capability string

const (
	CapManageAccounts     Capability = "manage_accounts"
	CapViewAllDepartments Capability = "view_all_departments"
	CapViewOwnDepartment  Capability = "view_own_department"
	CapDeclarePresence    Capability = "declare_presence"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CapManageAccounts,
	CapViewAllDepartments,
	CapViewOwnDepartment,
	CapDeclarePresence,
}

func capabilitiesFor(role domain.Role) map[Capability]bool {
	switch role {
	case domain.RoleSystemManager:
		return map[Capability]bool{
			CapManageAccounts:     true,
			CapViewAllDepartments: true,
			CapViewOwnDepartment:  true,
			CapDeclarePresence:    true,
		}
	case domain.RoleDepartmentManager:
		return map[Capability]bool{
			CapViewOwnDepartment: true,
			CapDeclarePresence:   true,
		}
	}
	return nil
}

// Grants reports whether role carries capability.
func Grants(role domain.Role, capability Capability) bool {
	return capabilitiesFor(role)[capability]
}

// Authorize allows the principal iff its role grants capability.
func Authorize(principal *Principal, capability Capability) error {
	if principal == nil || !Grants(principal.Role, capability) {
		return apperrors.ErrAuthorizationDenied
	}
	return nil
}

// AuthorizeDepartment allows access to a department's room and events.
// System managers reach every department; department managers only their own.
func AuthorizeDepartment(principal *Principal, department string) error {
	if principal == nil || department == "" {
		return apperrors.ErrAuthorizationDenied
	}
	if Grants(principal.Role, CapViewAllDepartments) {
		return nil
	}
	if Grants(principal.Role, CapViewOwnDepartment) && principal.Department == department {
		return nil
	}
	return apperrors.ErrAuthorizationDenied
}
