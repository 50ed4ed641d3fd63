package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

var Roles = []Role{RoleAdmin, RoleHR, RoleManager, RoleEmployee}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return true
	}
	return false
}

type User struct {
	Base
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FullName     string     `json:"fullName" db:"full_name"`
	Role         Role       `json:"role" db:"role"`
	EmployeeID   *uuid.UUID `json:"employeeId" db:"employee_id"`
	Active       bool       `json:"active" db:"active"`
	LastLoginAt  *time.Time `json:"lastLoginAt" db:"last_login_at"`
}

type UserFilter struct {
	Role   *Role
	Active *bool
	PageQuery
}

// UserPatch lists the account fields an admin may change. Nil leaves a
// field untouched; ClearEmployee unlinks the employee record.
type UserPatch struct {
	FullName      *string
	Role          *Role
	Active        *bool
	EmployeeID    *uuid.UUID
	ClearEmployee bool
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    uuid.UUID
	Role  Role
	Email string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
