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

type PolicyService interface {
	Create(ctx context.Context, actor model.Actor, in service.CreatePolicyInput) (*model.Policy, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Policy, error)
	List(ctx context.Context, f model.PolicyFilter) (*model.PaginatedResponse[model.Policy], error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, in model.PolicyPatch) (*model.Policy, error)
	Submit(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error)
	Archive(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error)
	Revise(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error)
}

type PolicyHandler struct {
	Handler
	policies PolicyService
}

func NewPolicyHandler(s *server.Server, policies PolicyService) *PolicyHandler {
	return &PolicyHandler{Handler: NewHandler(s), policies: policies}
}

type CreatePolicyRequest struct {
	Code          string  `json:"code" validate:"required,max=32"`
	Title         string  `json:"title" validate:"required,max=200"`
	Category      string  `json:"category" validate:"required,max=100"`
	Body          string  `json:"body" validate:"required"`
	EffectiveDate *string `json:"effectiveDate" validate:"omitempty,date"`
	ExpiryDate    *string `json:"expiryDate" validate:"omitempty,date"`
}

func (r *CreatePolicyRequest) Validate() error { return validation.Struct(r) }

func (h *PolicyHandler) Create(c echo.Context, req *CreatePolicyRequest) (*model.Policy, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	effective, err := optionalDate("effectiveDate", req.EffectiveDate)
	if err != nil {
		return nil, err
	}
	expiry, err := optionalDate("expiryDate", req.ExpiryDate)
	if err != nil {
		return nil, err
	}
	return h.policies.Create(c.Request().Context(), actor, service.CreatePolicyInput{
		Code:          req.Code,
		Title:         req.Title,
		Category:      req.Category,
		Body:          req.Body,
		EffectiveDate: effective,
		ExpiryDate:    expiry,
	})
}

func (h *PolicyHandler) Get(c echo.Context, req *IDRequest) (*model.Policy, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.policies.Get(c.Request().Context(), id)
}

type ListPoliciesRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=draft pending_approval active archived"`
	Category string `query:"category" validate:"omitempty,max=100"`
	Code     string `query:"code" validate:"omitempty,max=32"`
	Search   string `query:"search" validate:"omitempty,max=100"`
	model.PageQuery
}

func (r *ListPoliciesRequest) Validate() error { return validation.Struct(r) }

func (h *PolicyHandler) List(c echo.Context, req *ListPoliciesRequest) (*model.PaginatedResponse[model.Policy], error) {
	return h.policies.List(c.Request().Context(), model.PolicyFilter{
		Status:    optionalEnum[model.PolicyStatus](req.Status),
		Category:  optionalString(req.Category),
		Code:      optionalString(req.Code),
		Search:    optionalString(req.Search),
		PageQuery: req.PageQuery,
	})
}

type UpdatePolicyRequest struct {
	ID            string  `param:"id" json:"-" validate:"required,uuid"`
	Title         *string `json:"title" validate:"omitempty,max=200"`
	Category      *string `json:"category" validate:"omitempty,max=100"`
	Body          *string `json:"body"`
	EffectiveDate *string `json:"effectiveDate" validate:"omitempty,date"`
	ExpiryDate    *string `json:"expiryDate" validate:"omitempty,date"`
}

func (r *UpdatePolicyRequest) Validate() error { return validation.Struct(r) }

func (h *PolicyHandler) Update(c echo.Context, req *UpdatePolicyRequest) (*model.Policy, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	effective, err := optionalDate("effectiveDate", req.EffectiveDate)
	if err != nil {
		return nil, err
	}
	expiry, err := optionalDate("expiryDate", req.ExpiryDate)
	if err != nil {
		return nil, err
	}
	return h.policies.Update(c.Request().Context(), actor, id, model.PolicyPatch{
		Title:         req.Title,
		Category:      req.Category,
		Body:          req.Body,
		EffectiveDate: effective,
		ExpiryDate:    expiry,
	})
}

// transition runs one of the id-only lifecycle operations.
func (h *PolicyHandler) transition(c echo.Context, req *IDRequest, op func(context.Context, model.Actor, uuid.UUID) (*model.Policy, error)) (*model.Policy, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return op(c.Request().Context(), actor, id)
}

func (h *PolicyHandler) Submit(c echo.Context, req *IDRequest) (*model.Policy, error) {
	return h.transition(c, req, h.policies.Submit)
}

func (h *PolicyHandler) Archive(c echo.Context, req *IDRequest) (*model.Policy, error) {
	return h.transition(c, req, h.policies.Archive)
}

func (h *PolicyHandler) Revise(c echo.Context, req *IDRequest) (*model.Policy, error) {
	return h.transition(c, req, h.policies.Revise)
}
