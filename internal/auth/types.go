package auth

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic format check: local part, @, domain with a
// dot. Full RFC 5322 validation is not the goal; catching typos is.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum accepted email address length.
const maxEmailLength = 254

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleMember is a lab member: can pair, authenticate and enter their
	// assigned lab. No administrative access.
	RoleMember Role = "member"

	// RoleAdmin manages members, labs and geofence settings, and can read
	// the audit trail and live session introspection.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid account roles.
var ValidRoles = []Role{RoleMember, RoleAdmin}

// IsValidRole returns true if the role is a valid account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents a lab member account. Members authenticate with a
// passkey on their mobile; the password path exists for enrollment and
// administrative access.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	LabID        string    `json:"lab_id"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Lab represents a physical lab space with its geofence definition. The
// slug is the stable machine identifier used in topics and telemetry.
type Lab struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	RadiusM         float64   `json:"radius_m"`
	RequireLocation bool      `json:"require_location"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrEmailExists        = errors.New("email already registered")
	ErrLabNotFound        = errors.New("lab not found")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
)
