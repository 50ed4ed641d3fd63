// Package router builds the Echo instance: global middleware, system
// routes and the versioned API.
package router

import (
	"net/http"

	"github.com/deppfellow/erm/internal/handler"
	"github.com/deppfellow/erm/internal/middleware"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/labstack/echo/v4"
)

// Global and login rate limits, per client IP.
const (
	globalRatePerSecond = 20
	globalBurst         = 40
	loginRatePerSecond  = 0.2
	loginBurst          = 10
)

func NewRouter(s *server.Server, h *handler.Handlers, services *service.Services) *echo.Echo {
	middlewares := middleware.NewMiddlewares(s, services.Auth)

	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = middlewares.Global.GlobalErrorHandler

	router.Use(
		middlewares.RateLimit.Limit("global", globalRatePerSecond, globalBurst),
		middlewares.Global.CORS(),
		middlewares.Global.Secure(),
		middleware.RequestID(),
		middlewares.Tracing.NewRelicMiddleware(),
		middlewares.Tracing.EnhanceTracing(),
		middlewares.ContextEnhancer.EnhanceContext(),
		middlewares.Global.RequestLogger(),
		middlewares.Global.Recover(),
	)

	registerSystemRoutes(router, h)

	v1 := router.Group("/api/v1")
	registerAuthRoutes(v1, h, middlewares)

	protected := v1.Group("", middlewares.Auth.RequireAuth)
	registerUserRoutes(protected, h)
	registerEmployeeRoutes(protected, h)
	registerPolicyRoutes(protected, h)
	registerResourceRoutes(protected, h)
	registerApprovalRoutes(protected, h)
	registerTimelineRoutes(protected, h)

	return router
}

func registerAuthRoutes(v1 *echo.Group, h *handler.Handlers, m *middleware.Middlewares) {
	a := h.Auth
	auth := v1.Group("/auth")

	auth.POST("/login", handler.Handle(a.Handler, a.Login, http.StatusOK, &handler.LoginRequest{}),
		m.RateLimit.Limit("login", loginRatePerSecond, loginBurst))
	auth.GET("/me", handler.Handle(a.Handler, a.Me, http.StatusOK, &handler.EmptyRequest{}),
		m.Auth.RequireAuth)
	auth.GET("/access", handler.Handle(a.Handler, a.PageAccess, http.StatusOK, &handler.PageAccessRequest{}),
		m.Auth.RequireAuth)
}
