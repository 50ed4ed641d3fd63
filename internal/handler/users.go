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

type UserService interface {
	Create(ctx context.Context, actor *model.Actor, in service.CreateUserInput) (*model.User, error)
	List(ctx context.Context, in service.ListUsersInput) (*model.PaginatedResponse[model.User], error)
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, p model.UserPatch) (*model.User, error)
}

// UserHandler serves account administration. Every route requires
// users:manage.
type UserHandler struct {
	Handler
	users UserService
}

func NewUserHandler(s *server.Server, users UserService) *UserHandler {
	return &UserHandler{Handler: NewHandler(s), users: users}
}

type CreateUserRequest struct {
	Email      string     `json:"email" validate:"required,email,max=255"`
	Password   string     `json:"password" validate:"required,min=8,max=72"`
	FullName   string     `json:"fullName" validate:"required,max=200"`
	Role       model.Role `json:"role" validate:"required,oneof=admin hr manager employee"`
	EmployeeID *uuid.UUID `json:"employeeId"`
}

func (r *CreateUserRequest) Validate() error { return validation.Struct(r) }

func (h *UserHandler) Create(c echo.Context, req *CreateUserRequest) (*model.User, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return h.users.Create(c.Request().Context(), &actor, service.CreateUserInput{
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
		Role:       req.Role,
		EmployeeID: req.EmployeeID,
	})
}

type ListUsersRequest struct {
	Role   string `query:"role" validate:"omitempty,oneof=admin hr manager employee"`
	Active string `query:"active" validate:"omitempty,oneof=true false"`
	model.PageQuery
}

func (r *ListUsersRequest) Validate() error { return validation.Struct(r) }

func (h *UserHandler) List(c echo.Context, req *ListUsersRequest) (*model.PaginatedResponse[model.User], error) {
	active, err := optionalBool("active", req.Active)
	if err != nil {
		return nil, err
	}
	return h.users.List(c.Request().Context(), service.ListUsersInput{
		Role:      optionalEnum[model.Role](req.Role),
		Active:    active,
		PageQuery: req.PageQuery,
	})
}

func (h *UserHandler) Get(c echo.Context, req *IDRequest) (*model.User, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.users.Get(c.Request().Context(), id)
}

type UpdateUserRequest struct {
	ID            string      `param:"id" json:"-" validate:"required,uuid"`
	FullName      *string     `json:"fullName" validate:"omitempty,max=200"`
	Role          *model.Role `json:"role" validate:"omitempty,oneof=admin hr manager employee"`
	Active        *bool       `json:"active"`
	EmployeeID    *uuid.UUID  `json:"employeeId"`
	ClearEmployee bool        `json:"clearEmployee"`
}

func (r *UpdateUserRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.ClearEmployee && r.EmployeeID != nil {
		return validation.CustomValidationErrors{{Field: "employeeId", Message: "cannot be set together with clearEmployee"}}
	}
	return nil
}

func (h *UserHandler) Update(c echo.Context, req *UpdateUserRequest) (*model.User, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.users.Update(c.Request().Context(), actor, id, model.UserPatch{
		FullName:      req.FullName,
		Role:          req.Role,
		Active:        req.Active,
		EmployeeID:    req.EmployeeID,
		ClearEmployee: req.ClearEmployee,
	})
}
