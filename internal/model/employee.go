package model

import (
	"time"

	"github.com/google/uuid"
)

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeOnLeave    EmployeeStatus = "on_leave"
	EmployeeTerminated EmployeeStatus = "terminated"
)

func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeActive, EmployeeOnLeave, EmployeeTerminated:
		return true
	}
	return false
}

type Employee struct {
	Base
	EmployeeCode    string         `json:"employeeCode" db:"employee_code"`
	FirstName       string         `json:"firstName" db:"first_name"`
	LastName        string         `json:"lastName" db:"last_name"`
	Email           string         `json:"email" db:"email"`
	Phone           *string        `json:"phone" db:"phone"`
	Department      string         `json:"department" db:"department"`
	Position        string         `json:"position" db:"position"`
	ManagerID       *uuid.UUID     `json:"managerId" db:"manager_id"`
	Status          EmployeeStatus `json:"status" db:"status"`
	HireDate        time.Time      `json:"hireDate" db:"hire_date"`
	TerminationDate *time.Time     `json:"terminationDate" db:"termination_date"`
}

func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

type EmployeeFilter struct {
	Department *string
	Status     *EmployeeStatus
	ManagerID  *uuid.UUID
	Search     *string
	PageQuery
}
