// Package user provides the user directory and role-based access scoping.
//
// Roles:
//   - patient: sees own readings and alerts only
//   - provider: sees own data plus the patients assigned to them
//   - admin: unrestricted
//
// Authentication happens upstream; this package only resolves what an
// already-authenticated caller is allowed to see.
package user

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrForbidden is returned when a resource exists but lies outside the caller's scope.
	ErrForbidden = errors.New("access denied")
)

// Role is a caller's authorization role.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// User is an entry in the user directory.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	Role  Role
	Email string
	Name  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the name, falling back to the email address.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Scope is the pre-resolved set of users a caller may act on.
type Scope struct {
	CallerID string
	Role     Role

	// UserIDs lists visible users. Ignored for admins.
	UserIDs []string
}

// Unrestricted reports whether the scope covers every user.
func (s Scope) Unrestricted() bool {
	return s.Role == RoleAdmin
}

// Allows reports whether the scope may read data owned by userID.
func (s Scope) Allows(userID string) bool {
	if s.Unrestricted() {
		return true
	}
	for _, id := range s.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Owns reports whether the caller owns data belonging to userID, or is an admin.
func (s Scope) Owns(userID string) bool {
	return s.Unrestricted() || s.CallerID == userID
}

// Restriction returns the user id list for repository filters.
// Nil means unrestricted.
func (s Scope) Restriction() []string {
	if s.Unrestricted() {
		return nil
	}
	if s.UserIDs == nil {
		return []string{}
	}
	return s.UserIDs
}
