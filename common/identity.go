package common

import "strings"

// RoleType defines the role a user plays on the course platform.
type RoleType string

const (
	RoleStudent    RoleType = "student"
	RoleInstructor RoleType = "instructor"
	RoleAdmin      RoleType = "admin"
	// RoleUser is what the identity service reports for accounts without a course role.
	RoleUser RoleType = "user"
)

// ParseRole normalises a role string coming from a token, a request body or the
// identity service. Anything unrecognised is treated as a student.
//
//	ParseRole("Instructor") => RoleInstructor
//	ParseRole("user")       => RoleStudent
//	ParseRole("")           => RoleStudent
func ParseRole(role string) RoleType {
	switch RoleType(strings.ToLower(strings.TrimSpace(role))) {
	case RoleInstructor:
		return RoleInstructor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// IsStaff reports whether the role may post in instructor-only conversations.
func (r RoleType) IsStaff() bool {
	return r == RoleInstructor || r == RoleAdmin
}

// Actor is the authenticated principal behind an HTTP request or a socket connection.
type Actor struct {
	Id   string
	Role RoleType
}

// IsAdmin reports whether the actor carries the platform admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
