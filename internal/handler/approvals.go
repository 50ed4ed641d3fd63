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

type ApprovalService interface {
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, actor model.Actor, in service.ListApprovalsInput) (*model.PaginatedResponse[model.ApprovalRequest], error)
	Decide(ctx context.Context, actor model.Actor, id uuid.UUID, in service.DecideInput) (*model.ApprovalRequest, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ApprovalRequest, error)
}

type ApprovalHandler struct {
	Handler
	approvals ApprovalService
}

func NewApprovalHandler(s *server.Server, approvals ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{Handler: NewHandler(s), approvals: approvals}
}

type ListApprovalsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=pending approved rejected cancelled"`
	Kind   string `query:"kind" validate:"omitempty,oneof=policy_publication resource_assignment"`
	Scope  string `query:"scope" validate:"omitempty,oneof=mine assigned"`
	model.PageQuery
}

func (r *ListApprovalsRequest) Validate() error { return validation.Struct(r) }

func (h *ApprovalHandler) List(c echo.Context, req *ListApprovalsRequest) (*model.PaginatedResponse[model.ApprovalRequest], error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return h.approvals.List(c.Request().Context(), actor, service.ListApprovalsInput{
		Status:    optionalEnum[model.ApprovalStatus](req.Status),
		Kind:      optionalEnum[model.ApprovalKind](req.Kind),
		Scope:     req.Scope,
		PageQuery: req.PageQuery,
	})
}

func (h *ApprovalHandler) Get(c echo.Context, req *IDRequest) (*model.ApprovalRequest, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.approvals.Get(c.Request().Context(), actor, id)
}

type DecideRequest struct {
	ID       string         `param:"id" json:"-" validate:"required,uuid"`
	Decision model.Decision `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string         `json:"comment" validate:"max=2000"`
}

func (r *DecideRequest) Validate() error { return validation.Struct(r) }

func (h *ApprovalHandler) Decide(c echo.Context, req *DecideRequest) (*model.ApprovalRequest, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.approvals.Decide(c.Request().Context(), actor, id, service.DecideInput{
		Decision: req.Decision,
		Comment:  req.Comment,
	})
}

func (h *ApprovalHandler) Cancel(c echo.Context, req *IDRequest) (*model.ApprovalRequest, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	return h.approvals.Cancel(c.Request().Context(), actor, id)
}
