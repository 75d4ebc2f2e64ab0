package enums

import "fmt"

// UserRole is the role of the cashier operating the till.
type UserRole string

const (
	UserRoleCashier UserRole = "cashier"
	UserRoleManager UserRole = "manager"
	UserRoleAdmin   UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleCashier,
	UserRoleManager,
	UserRoleAdmin,
}

// String implements fmt.Stringer.
func (v UserRole) String() string {
	return string(v)
}

// IsValid reports whether the value is a known UserRole.
func (v UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}

// CanEditLocked reports whether the role may edit completed, cancelled or locked orders.
func (v UserRole) CanEditLocked() bool {
	return v == UserRoleAdmin || v == UserRoleManager
}
