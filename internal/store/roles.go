// ABOUTME: Role names that gate access to protected operations
// ABOUTME: Closed set checked on every user write and by the auth gate

package store

// RoleName represents a permission class attached to a user
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RoleStudent RoleName = "student"
	RoleStation RoleName = "station"
)

// ValidRoleNames lists all valid role names
var ValidRoleNames = []RoleName{
	RoleAdmin,
	RoleStudent,
	RoleStation,
}

// Valid reports whether r is one of ValidRoleNames.
func (r RoleName) Valid() bool {
	for _, v := range ValidRoleNames {
		if r == v {
			return true
		}
	}
	return false
}

// Roles is a set of roles allowed to perform an operation.
type Roles []RoleName

// Contains reports whether role is a member of the set.
func (rs Roles) Contains(role RoleName) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}
