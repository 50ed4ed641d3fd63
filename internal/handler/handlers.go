// Package handler is the HTTP layer. Handlers bind and validate requests
// through the validation package, call the service layer and shape the
// response.
package handler

import (
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
)

// Handlers groups every HTTP handler for the router.
type Handlers struct {
	Health    *HealthHandler
	OpenAPI   *OpenAPIHandler
	Auth      *AuthHandler
	Users     *UserHandler
	Employees *EmployeeHandler
	Policies  *PolicyHandler
	Resources *ResourceHandler
	Approvals *ApprovalHandler
	Timeline  *TimelineHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(s),
		OpenAPI:   NewOpenAPIHandler(s),
		Auth:      NewAuthHandler(s, services.Auth),
		Users:     NewUserHandler(s, services.Users),
		Employees: NewEmployeeHandler(s, services.Employees),
		Policies:  NewPolicyHandler(s, services.Policies),
		Resources: NewResourceHandler(s, services.Resources),
		Approvals: NewApprovalHandler(s, services.Approvals),
		Timeline:  NewTimelineHandler(s, services.Activity),
	}
}
