package handler

import (
	"context"

	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/deppfellow/erm/internal/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type ResourceService interface {
	CreateType(ctx context.Context, actor model.Actor, in service.CreateResourceTypeInput) (*model.ResourceType, error)
	GetType(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
	ListTypes(ctx context.Context) ([]model.ResourceType, error)
	UpdateType(ctx context.Context, actor model.Actor, id uuid.UUID, in service.UpdateResourceTypeInput) (*model.ResourceType, error)
	DeleteType(ctx context.Context, actor model.Actor, id uuid.UUID) error

	CreateItem(ctx context.Context, actor model.Actor, in service.CreateResourceItemInput) (*model.ResourceItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error)
	ListItems(ctx context.Context, f model.ResourceItemFilter) (*model.PaginatedResponse[model.ResourceItem], error)
	UpdateItem(ctx context.Context, actor model.Actor, id uuid.UUID, in service.UpdateResourceItemInput) (*model.ResourceItem, error)
	DeleteItem(ctx context.Context, actor model.Actor, id uuid.UUID) error
	Assign(ctx context.Context, actor model.Actor, itemID, employeeID uuid.UUID) (*model.ResourceItem, error)
	Unassign(ctx context.Context, actor model.Actor, itemID uuid.UUID) (*model.ResourceItem, error)
	Request(ctx context.Context, actor model.Actor, itemID uuid.UUID, in service.RequestItemInput) (*model.ApprovalRequest, error)
}

// ResourceHandler serves resource types and the items built on them.
type ResourceHandler struct {
	Handler
	resources ResourceService
}

func NewResourceHandler(s *server.Server, resources ResourceService) *ResourceHandler {
	return &ResourceHandler{Handler: NewHandler(s), resources: resources}
}

// Resource types

type CreateResourceTypeRequest struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Slug        string        `json:"slug" validate:"required,slug,max=64"`
	Description string        `json:"description" validate:"max=1000"`
	Schema      schema.Schema `json:"schema"`
}

func (r *CreateResourceTypeRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) CreateType(c echo.Context, req *CreateResourceTypeRequest) (*model.ResourceType, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return h.resources.CreateType(c.Request().Context(), actor, service.CreateResourceTypeInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Schema:      req.Schema,
	})
}

func (h *ResourceHandler) GetType(c echo.Context, req *IDRequest) (*model.ResourceType, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.GetType(c.Request().Context(), id)
}

type ResourceTypeList struct {
	Data []model.ResourceType `json:"data"`
}

func (h *ResourceHandler) ListTypes(c echo.Context, _ *EmptyRequest) (*ResourceTypeList, error) {
	types, err := h.resources.ListTypes(c.Request().Context())
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []model.ResourceType{}
	}
	return &ResourceTypeList{Data: types}, nil
}

type UpdateResourceTypeRequest struct {
	ID          string         `param:"id" json:"-" validate:"required,uuid"`
	Name        *string        `json:"name" validate:"omitempty,max=100"`
	Slug        *string        `json:"slug" validate:"omitempty,slug,max=64"`
	Description *string        `json:"description" validate:"omitempty,max=1000"`
	Schema      *schema.Schema `json:"schema"`
}

func (r *UpdateResourceTypeRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) UpdateType(c echo.Context, req *UpdateResourceTypeRequest) (*model.ResourceType, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.UpdateType(c.Request().Context(), actor, id, service.UpdateResourceTypeInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Schema:      req.Schema,
	})
}

func (h *ResourceHandler) DeleteType(c echo.Context, req *IDRequest) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return err
	}
	return h.resources.DeleteType(c.Request().Context(), actor, id)
}

// Resource items

type CreateResourceItemRequest struct {
	ResourceTypeID uuid.UUID        `json:"resourceTypeId" validate:"required"`
	Name           string           `json:"name" validate:"required,max=200"`
	Status         model.ItemStatus `json:"status" validate:"omitempty,oneof=available maintenance retired"`
	Properties     map[string]any   `json:"properties"`
}

func (r *CreateResourceItemRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) CreateItem(c echo.Context, req *CreateResourceItemRequest) (*model.ResourceItem, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return h.resources.CreateItem(c.Request().Context(), actor, service.CreateResourceItemInput{
		ResourceTypeID: req.ResourceTypeID,
		Name:           req.Name,
		Status:         req.Status,
		Properties:     req.Properties,
	})
}

func (h *ResourceHandler) GetItem(c echo.Context, req *IDRequest) (*model.ResourceItem, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.GetItem(c.Request().Context(), id)
}

type ListResourceItemsRequest struct {
	ResourceTypeID string `query:"typeId" validate:"omitempty,uuid"`
	Status         string `query:"status" validate:"omitempty,oneof=available assigned maintenance retired"`
	AssignedTo     string `query:"assignedTo" validate:"omitempty,uuid"`
	Search         string `query:"search" validate:"omitempty,max=100"`
	model.PageQuery
}

func (r *ListResourceItemsRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) ListItems(c echo.Context, req *ListResourceItemsRequest) (*model.PaginatedResponse[model.ResourceItem], error) {
	typeID, err := optionalID("typeId", req.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	assignedTo, err := optionalID("assignedTo", req.AssignedTo)
	if err != nil {
		return nil, err
	}
	return h.resources.ListItems(c.Request().Context(), model.ResourceItemFilter{
		ResourceTypeID: typeID,
		Status:         optionalEnum[model.ItemStatus](req.Status),
		AssignedTo:     assignedTo,
		Search:         optionalString(req.Search),
		PageQuery:      req.PageQuery,
	})
}

type UpdateResourceItemRequest struct {
	ID         string            `param:"id" json:"-" validate:"required,uuid"`
	Name       *string           `json:"name" validate:"omitempty,max=200"`
	Status     *model.ItemStatus `json:"status" validate:"omitempty,oneof=available maintenance retired"`
	Properties map[string]any    `json:"properties"`
}

func (r *UpdateResourceItemRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) UpdateItem(c echo.Context, req *UpdateResourceItemRequest) (*model.ResourceItem, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.UpdateItem(c.Request().Context(), actor, id, service.UpdateResourceItemInput{
		Name:       req.Name,
		Status:     req.Status,
		Properties: req.Properties,
	})
}

func (h *ResourceHandler) DeleteItem(c echo.Context, req *IDRequest) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return err
	}
	return h.resources.DeleteItem(c.Request().Context(), actor, id)
}

type AssignItemRequest struct {
	ID         string    `param:"id" json:"-" validate:"required,uuid"`
	EmployeeID uuid.UUID `json:"employeeId" validate:"required"`
}

func (r *AssignItemRequest) Validate() error { return validation.Struct(r) }

func (h *ResourceHandler) Assign(c echo.Context, req *AssignItemRequest) (*model.ResourceItem, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.Assign(c.Request().Context(), actor, id, req.EmployeeID)
}

func (h *ResourceHandler) Unassign(c echo.Context, req *IDRequest) (*model.ResourceItem, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.Unassign(c.Request().Context(), actor, id)
}

type RequestItemRequest struct {
	ID         string     `param:"id" json:"-" validate:"required,uuid"`
	EmployeeID *uuid.UUID `json:"employeeId"`
	Reason     string     `json:"reason" validate:"max=1000"`
}

func (r *RequestItemRequest) Validate() error { return validation.Struct(r) }

// Request opens an assignment approval for the item.
func (h *ResourceHandler) Request(c echo.Context, req *RequestItemRequest) (*model.ApprovalRequest, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.resources.Request(c.Request().Context(), actor, id, service.RequestItemInput{
		EmployeeID: req.EmployeeID,
		Reason:     req.Reason,
	})
}
