package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civic-desk/complaint-portal/internal/domain"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

func TestGrants_Table(t *testing.T) {
	want := map[domain.Role]map[Capability]bool{
		domain.RoleSystemManager: {
			CapManageAccounts:     true,
			CapViewAllDepartments: true,
			CapViewOwnDepartment:  true,
			CapDeclarePresence:    true,
		},
		domain.RoleDepartmentManager: {
			CapManageAccounts:     false,
			CapViewAllDepartments: false,
			CapViewOwnDepartment:  true,
			CapDeclarePresence:    true,
		},
		domain.Role("citizen"): {},
	}
	for role, caps := range want {
		for _, capability := range Capabilities {
			assert.Equal(t, caps[capability], Grants(role, capability), "%s/%s", role, capability)
		}
	}
}

func TestAuthorize(t *testing.T) {
	admin := &Principal{Role: domain.RoleSystemManager}
	manager := &Principal{Role: domain.RoleDepartmentManager, Department: domain.DepartmentHealth}

	assert.NoError(t, Authorize(admin, CapManageAccounts))
	assert.ErrorIs(t, Authorize(manager, CapManageAccounts), apperrors.ErrAuthorizationDenied)
	assert.ErrorIs(t, Authorize(nil, CapViewOwnDepartment), apperrors.ErrAuthorizationDenied)
}

func TestAuthorizeDepartment(t *testing.T) {
	admin := &Principal{Role: domain.RoleSystemManager}
	manager := &Principal{Role: domain.RoleDepartmentManager, Department: domain.DepartmentHealth}

	assert.NoError(t, AuthorizeDepartment(admin, domain.DepartmentWater))
	assert.NoError(t, AuthorizeDepartment(manager, domain.DepartmentHealth))
	assert.ErrorIs(t, AuthorizeDepartment(manager, domain.DepartmentWater), apperrors.ErrAuthorizationDenied)
	assert.ErrorIs(t, AuthorizeDepartment(admin, ""), apperrors.ErrAuthorizationDenied)
}
