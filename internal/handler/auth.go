package handler

import (
	"context"

	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/deppfellow/erm/internal/validation"
	"github.com/labstack/echo/v4"
)

type AuthService interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Me(ctx context.Context, actor model.Actor) (*service.Profile, error)
}

type AuthHandler struct {
	Handler
	auth AuthService
}

func NewAuthHandler(s *server.Server, auth AuthService) *AuthHandler {
	return &AuthHandler{Handler: NewHandler(s), auth: auth}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r *LoginRequest) Validate() error { return validation.Struct(r) }

func (h *AuthHandler) Login(c echo.Context, req *LoginRequest) (*service.LoginResult, error) {
	return h.auth.Login(c.Request().Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       c.RealIP(),
	})
}

func (h *AuthHandler) Me(c echo.Context, _ *EmptyRequest) (*service.Profile, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return h.auth.Me(c.Request().Context(), actor)
}

type PageAccessRequest struct {
	Path string `query:"path" validate:"required,startswith=/,max=512"`
}

func (r *PageAccessRequest) Validate() error { return validation.Struct(r) }

type PageAccess struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
}

// PageAccess tells the web client whether the caller may open a page.
func (h *AuthHandler) PageAccess(c echo.Context, req *PageAccessRequest) (*PageAccess, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return nil, err
	}
	return &PageAccess{Path: req.Path, Allowed: rbac.CanAccessPage(actor.Role, req.Path)}, nil
}
