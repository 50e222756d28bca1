package domain

import "time"

// Role is the caller's authorization level.
type Role string

const (
	RoleUser       Role = "USER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleTechnician || r == RoleAdmin
}

// IsStaff reports whether r may work tickets.
func (r Role) IsStaff() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// User is an account that can authenticate against the service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
