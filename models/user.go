package models

import "fmt"

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

func ParseUserRole(s string) (UserRole, error) {
	switch role := UserRole(s); role {
	case RoleAdmin, RoleOrganizer, RolePlayer:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role value %q", s)
	}
}

// ManagesMatches reports whether results submitted under this role are
// confirmed without review.
func (r UserRole) ManagesMatches() bool {
	return r == RoleAdmin || r == RoleOrganizer
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int
	Role   UserRole
}
