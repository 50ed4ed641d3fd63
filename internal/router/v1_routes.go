package router

import (
	"net/http"

	"github.com/deppfellow/erm/internal/handler"
	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/labstack/echo/v4"

	mw "github.com/deppfellow/erm/internal/middleware"
)

func registerUserRoutes(g *echo.Group, h *handler.Handlers) {
	u := h.Users
	users := g.Group("/users", mw.RequirePermission(rbac.UsersManage))

	users.POST("", handler.Handle(u.Handler, u.Create, http.StatusCreated, &handler.CreateUserRequest{}))
	users.GET("", handler.Handle(u.Handler, u.List, http.StatusOK, &handler.ListUsersRequest{}))
	users.GET("/:id", handler.Handle(u.Handler, u.Get, http.StatusOK, &handler.IDRequest{}))
	users.PATCH("/:id", handler.Handle(u.Handler, u.Update, http.StatusOK, &handler.UpdateUserRequest{}))
}

func registerEmployeeRoutes(g *echo.Group, h *handler.Handlers) {
	e := h.Employees
	employees := g.Group("/employees")

	read := mw.RequirePermission(rbac.EmployeesRead)
	write := mw.RequirePermission(rbac.EmployeesWrite)

	employees.GET("", handler.Handle(e.Handler, e.List, http.StatusOK, &handler.ListEmployeesRequest{}), read)
	employees.GET("/:id", handler.Handle(e.Handler, e.Get, http.StatusOK, &handler.IDRequest{}), read)
	employees.POST("", handler.Handle(e.Handler, e.Create, http.StatusCreated, &handler.CreateEmployeeRequest{}), write)
	employees.PATCH("/:id", handler.Handle(e.Handler, e.Update, http.StatusOK, &handler.UpdateEmployeeRequest{}), write)
	employees.DELETE("/:id", handler.HandleNoContent(e.Handler, e.Delete, http.StatusNoContent, &handler.IDRequest{}),
		mw.RequirePermission(rbac.EmployeesDelete))
}

func registerPolicyRoutes(g *echo.Group, h *handler.Handlers) {
	p := h.Policies
	policies := g.Group("/policies")

	read := mw.RequirePermission(rbac.PoliciesRead)
	write := mw.RequirePermission(rbac.PoliciesWrite)

	policies.GET("", handler.Handle(p.Handler, p.List, http.StatusOK, &handler.ListPoliciesRequest{}), read)
	policies.GET("/:id", handler.Handle(p.Handler, p.Get, http.StatusOK, &handler.IDRequest{}), read)
	policies.POST("", handler.Handle(p.Handler, p.Create, http.StatusCreated, &handler.CreatePolicyRequest{}), write)
	policies.PATCH("/:id", handler.Handle(p.Handler, p.Update, http.StatusOK, &handler.UpdatePolicyRequest{}), write)
	policies.POST("/:id/submit", handler.Handle(p.Handler, p.Submit, http.StatusOK, &handler.IDRequest{}), write)
	policies.POST("/:id/revise", handler.Handle(p.Handler, p.Revise, http.StatusCreated, &handler.IDRequest{}), write)
	policies.POST("/:id/archive", handler.Handle(p.Handler, p.Archive, http.StatusOK, &handler.IDRequest{}),
		mw.RequirePermission(rbac.PoliciesArchive))
}

func registerResourceRoutes(g *echo.Group, h *handler.Handlers) {
	r := h.Resources
	read := mw.RequirePermission(rbac.ResourcesRead)

	types := g.Group("/resource-types")
	typesWrite := mw.RequirePermission(rbac.ResourceTypesWrite)

	types.GET("", handler.Handle(r.Handler, r.ListTypes, http.StatusOK, &handler.EmptyRequest{}), read)
	types.GET("/:id", handler.Handle(r.Handler, r.GetType, http.StatusOK, &handler.IDRequest{}), read)
	types.POST("", handler.Handle(r.Handler, r.CreateType, http.StatusCreated, &handler.CreateResourceTypeRequest{}), typesWrite)
	types.PATCH("/:id", handler.Handle(r.Handler, r.UpdateType, http.StatusOK, &handler.UpdateResourceTypeRequest{}), typesWrite)
	types.DELETE("/:id", handler.HandleNoContent(r.Handler, r.DeleteType, http.StatusNoContent, &handler.IDRequest{}), typesWrite)

	items := g.Group("/resources")
	write := mw.RequirePermission(rbac.ResourcesWrite)
	assign := mw.RequirePermission(rbac.ResourcesAssign)

	items.GET("", handler.Handle(r.Handler, r.ListItems, http.StatusOK, &handler.ListResourceItemsRequest{}), read)
	items.GET("/:id", handler.Handle(r.Handler, r.GetItem, http.StatusOK, &handler.IDRequest{}), read)
	items.POST("", handler.Handle(r.Handler, r.CreateItem, http.StatusCreated, &handler.CreateResourceItemRequest{}), write)
	items.PATCH("/:id", handler.Handle(r.Handler, r.UpdateItem, http.StatusOK, &handler.UpdateResourceItemRequest{}), write)
	items.DELETE("/:id", handler.HandleNoContent(r.Handler, r.DeleteItem, http.StatusNoContent, &handler.IDRequest{}), write)
	items.POST("/:id/assign", handler.Handle(r.Handler, r.Assign, http.StatusOK, &handler.AssignItemRequest{}), assign)
	items.POST("/:id/unassign", handler.Handle(r.Handler, r.Unassign, http.StatusOK, &handler.IDRequest{}), assign)
	items.POST("/:id/request", handler.Handle(r.Handler, r.Request, http.StatusCreated, &handler.RequestItemRequest{}),
		mw.RequirePermission(rbac.ResourcesRequest))
}

func registerApprovalRoutes(g *echo.Group, h *handler.Handlers) {
	a := h.Approvals
	approvals := g.Group("/approvals", mw.RequirePermission(rbac.ApprovalsRead))

	approvals.GET("", handler.Handle(a.Handler, a.List, http.StatusOK, &handler.ListApprovalsRequest{}))
	approvals.GET("/:id", handler.Handle(a.Handler, a.Get, http.StatusOK, &handler.IDRequest{}))
	approvals.POST("/:id/cancel", handler.Handle(a.Handler, a.Cancel, http.StatusOK, &handler.IDRequest{}))
	approvals.POST("/:id/decide", handler.Handle(a.Handler, a.Decide, http.StatusOK, &handler.DecideRequest{}),
		mw.RequirePermission(rbac.ApprovalsDecide))
}

func registerTimelineRoutes(g *echo.Group, h *handler.Handlers) {
	t := h.Timeline
	timeline := g.Group("/timeline", mw.RequirePermission(rbac.TimelineRead))

	timeline.GET("", handler.Handle(t.Handler, t.List, http.StatusOK, &handler.ListTimelineRequest{}))
	timeline.GET("/export", handler.HandleFile(t.Handler, t.Export, http.StatusOK, &handler.ListTimelineRequest{}, "timeline.csv", "text/csv"))
	timeline.GET("/:entityType/:entityId", handler.Handle(t.Handler, t.ListForEntity, http.StatusOK, &handler.EntityTimelineRequest{}))
}
