package service

import "strings"

// Roles understood by the coursework services.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Actor is the authenticated caller of an operation. Handlers build it from
// the verified token; services never look up the session themselves.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) normalizedRole() string {
	return strings.ToLower(strings.TrimSpace(a.Role))
}

// IsStudent reports whether the actor acts as a student.
func (a Actor) IsStudent() bool {
	return a.normalizedRole() == RoleStudent
}

// IsStaff reports whether the actor is a teacher or an administrator.
func (a Actor) IsStaff() bool {
	role := a.normalizedRole()
	return role == RoleTeacher || role == RoleAdmin
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.normalizedRole() == RoleAdmin
}
