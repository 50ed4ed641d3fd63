package handler

import (
	"context"

	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/deppfellow/erm/internal/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type EmployeeService interface {
	Create(ctx context.Context, actor model.Actor, in service.CreateEmployeeInput) (*model.Employee, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	List(ctx context.Context, f service.ListEmployeesInput) (*model.PaginatedResponse[model.Employee], error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, in service.UpdateEmployeeInput) (*model.Employee, error)
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
}

type EmployeeHandler struct {
	Handler
	employees EmployeeService
}

func NewEmployeeHandler(s *server.Server, employees EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{Handler: NewHandler(s), employees: employees}
}

type CreateEmployeeRequest struct {
	EmployeeCode    string               `json:"employeeCode" validate:"required,max=32"`
	FirstName       string               `json:"firstName" validate:"required,max=100"`
	LastName        string               `json:"lastName" validate:"required,max=100"`
	Email           string               `json:"email" validate:"required,email,max=255"`
	Phone           *string              `json:"phone" validate:"omitempty,max=32"`
	Department      string               `json:"department" validate:"required,max=100"`
	Position        string               `json:"position" validate:"required,max=100"`
	ManagerID       *uuid.UUID           `json:"managerId"`
	Status          model.EmployeeStatus `json:"status" validate:"omitempty,oneof=active on_leave terminated"`
	HireDate        string               `json:"hireDate" validate:"required,date"`
	TerminationDate *string              `json:"terminationDate" validate:"omitempty,date"`
}

func (r *CreateEmployeeRequest) Validate() error { return validation.Struct(r) }

func (h *EmployeeHandler) Create(c echo.Context, req *CreateEmployeeRequest) (*model.Employee, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	hired, err := parseDate("hireDate", req.HireDate)
	if err != nil {
		return nil, err
	}
	terminated, err := optionalDate("terminationDate", req.TerminationDate)
	if err != nil {
		return nil, err
	}
	return h.employees.Create(c.Request().Context(), actor, service.CreateEmployeeInput{
		EmployeeCode:    req.EmployeeCode,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		Department:      req.Department,
		Position:        req.Position,
		ManagerID:       req.ManagerID,
		Status:          req.Status,
		HireDate:        hired,
		TerminationDate: terminated,
	})
}

func (h *EmployeeHandler) Get(c echo.Context, req *IDRequest) (*model.Employee, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.employees.Get(c.Request().Context(), id)
}

type ListEmployeesRequest struct {
	Department string `query:"department" validate:"omitempty,max=100"`
	Status     string `query:"status" validate:"omitempty,oneof=active on_leave terminated"`
	ManagerID  string `query:"managerId" validate:"omitempty,uuid"`
	Search     string `query:"search" validate:"omitempty,max=100"`
	model.PageQuery
}

func (r *ListEmployeesRequest) Validate() error { return validation.Struct(r) }

func (h *EmployeeHandler) List(c echo.Context, req *ListEmployeesRequest) (*model.PaginatedResponse[model.Employee], error) {
	managerID, err := optionalID("managerId", req.ManagerID)
	if err != nil {
		return nil, err
	}
	return h.employees.List(c.Request().Context(), service.ListEmployeesInput{
		Department: optionalString(req.Department),
		Status:     optionalEnum[model.EmployeeStatus](req.Status),
		ManagerID:  managerID,
		Search:     optionalString(req.Search),
		PageQuery:  req.PageQuery,
	})
}

type UpdateEmployeeRequest struct {
	ID              string                `param:"id" json:"-" validate:"required,uuid"`
	EmployeeCode    *string               `json:"employeeCode" validate:"omitempty,max=32"`
	FirstName       *string               `json:"firstName" validate:"omitempty,max=100"`
	LastName        *string               `json:"lastName" validate:"omitempty,max=100"`
	Email           *string               `json:"email" validate:"omitempty,email,max=255"`
	Phone           *string               `json:"phone" validate:"omitempty,max=32"`
	Department      *string               `json:"department" validate:"omitempty,max=100"`
	Position        *string               `json:"position" validate:"omitempty,max=100"`
	ManagerID       *uuid.UUID            `json:"managerId"`
	ClearManager    bool                  `json:"clearManager"`
	Status          *model.EmployeeStatus `json:"status" validate:"omitempty,oneof=active on_leave terminated"`
	HireDate        *string               `json:"hireDate" validate:"omitempty,date"`
	TerminationDate *string               `json:"terminationDate" validate:"omitempty,date"`
}

func (r *UpdateEmployeeRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.ClearManager && r.ManagerID != nil {
		return validation.CustomValidationErrors{{Field: "managerId", Message: "cannot be set together with clearManager"}}
	}
	return nil
}

func (h *EmployeeHandler) Update(c echo.Context, req *UpdateEmployeeRequest) (*model.Employee, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	hired, err := optionalDate("hireDate", req.HireDate)
	if err != nil {
		return nil, err
	}
	terminated, err := optionalDate("terminationDate", req.TerminationDate)
	if err != nil {
		return nil, err
	}
	return h.employees.Update(c.Request().Context(), actor, id, service.UpdateEmployeeInput{
		EmployeeCode:    req.EmployeeCode,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           req.Phone,
		Department:      req.Department,
		Position:        req.Position,
		ManagerID:       req.ManagerID,
		ClearManager:    req.ClearManager,
		Status:          req.Status,
		HireDate:        hired,
		TerminationDate: terminated,
	})
}

func (h *EmployeeHandler) Delete(c echo.Context, req *IDRequest) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return err
	}
	return h.employees.Delete(c.Request().Context(), actor, id)
}
