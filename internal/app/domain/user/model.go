// Package user defines accounts and roles.
package user

import (
	"fmt"
	"time"
)

// Role gates which operations an actor may perform.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSeller   Role = "SELLER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Staff reports whether the role may drive the full order status path.
func (r Role) Staff() bool {
	return r == RoleSeller || r == RoleAdmin
}

// User is a registered account. PasswordHash is a bcrypt hash and is never
// serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor is the resolved identity performing a request. The services trust
// this resolution and consult only the role.
type Actor struct {
	UserID string
	Role   Role
}
