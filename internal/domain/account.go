package domain

import "time"

// Role enumerates portal account roles.
type Role string

const (
	RoleSystemManager     Role = "system_manager"
	RoleDepartmentManager Role = "department_manager"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystemManager, RoleDepartmentManager:
		return true
	}
	return false
}

// Account is a portal identity managed by the account store.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Department   *string
	Active       bool
	IsOnline     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DepartmentName returns the department or an empty string for system managers.
func (a *Account) DepartmentName() string {
	if a == nil || a.Department == nil {
		return ""
	}
	return *a.Department
}

// LoginHistoryEntry records one session window. LogoutAt is nil while the window is open.
type LoginHistoryEntry struct {
	ID        string
	AccountID string
	LoginAt   time.Time
	LogoutAt  *time.Time
}

// Open reports whether the session window has not been closed yet.
func (e LoginHistoryEntry) Open() bool {
	return e.LogoutAt == nil
}
