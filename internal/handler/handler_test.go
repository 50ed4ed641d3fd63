package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/config"
	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/middleware"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	e     *echo.Echo
	srv   *server.Server
	actor *model.Actor
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	l := zerolog.Nop()
	srv := &server.Server{
		Logger: &l,
		Config: &config.Config{Primary: config.Primary{Env: "test"}},
	}

	api := &testAPI{e: echo.New(), srv: srv}
	api.e.HTTPErrorHandler = middleware.NewGlobalMiddlewares(srv).GlobalErrorHandler
	api.e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if api.actor != nil {
				middleware.SetActor(c, *api.actor)
			}
			return next(c)
		}
	})
	return api
}

func (a *testAPI) as(role model.Role) model.Actor {
	actor := model.Actor{ID: uuid.New(), Role: role, Email: string(role) + "@example.com"}
	a.actor = &actor
	return actor
}

func (a *testAPI) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errs.HTTPError {
	t.Helper()
	var body errs.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func fields(e errs.HTTPError) []string {
	out := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		out = append(out, f.Field)
	}
	return out
}

// fakes embed the interface so unused methods need no stubs.

type fakeAuth struct {
	AuthService
	login service.LoginInput
}

func (f *fakeAuth) Login(_ context.Context, in service.LoginInput) (*service.LoginResult, error) {
	f.login = in
	return &service.LoginResult{Token: "tok", User: &model.User{Email: in.Email}}, nil
}

type fakeEmployees struct {
	EmployeeService
	created service.CreateEmployeeInput
	updated service.UpdateEmployeeInput
	filter  service.ListEmployeesInput
	deleted uuid.UUID
}

func (f *fakeEmployees) Create(_ context.Context, _ model.Actor, in service.CreateEmployeeInput) (*model.Employee, error) {
	f.created = in
	return &model.Employee{Base: model.Base{ID: uuid.New()}, EmployeeCode: in.EmployeeCode}, nil
}

func (f *fakeEmployees) Update(_ context.Context, _ model.Actor, id uuid.UUID, in service.UpdateEmployeeInput) (*model.Employee, error) {
	f.updated = in
	return &model.Employee{Base: model.Base{ID: id}}, nil
}

func (f *fakeEmployees) List(_ context.Context, in service.ListEmployeesInput) (*model.PaginatedResponse[model.Employee], error) {
	f.filter = in
	return model.NewPage[model.Employee](nil, in.PageQuery, 0), nil
}

func (f *fakeEmployees) Delete(_ context.Context, _ model.Actor, id uuid.UUID) error {
	f.deleted = id
	return nil
}

func (f *fakeEmployees) Get(_ context.Context, id uuid.UUID) (*model.Employee, error) {
	return nil, errs.NewNotFoundError("Employee not found", true, nil)
}

func TestHandleBindsFreshRequestPerCall(t *testing.T) {
	api := newTestAPI(t)
	api.as(model.RoleHR)
	fake := &fakeEmployees{}
	h := NewEmployeeHandler(api.srv, fake)
	api.e.PATCH("/employees/:id", Handle(h.Handler, h.Update, http.StatusOK, &UpdateEmployeeRequest{}))

	id := uuid.New()
	rec := api.do(http.MethodPatch, "/employees/"+id.String(), `{"department":"Finance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.updated.Department)

	rec = api.do(http.MethodPatch, "/employees/"+id.String(), `{"position":"Analyst"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, fake.updated.Department, "fields from an earlier request must not leak")
	assert.Equal(t, "Analyst", *fake.updated.Position)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	fake := &fakeAuth{}
	h := NewAuthHandler(api.srv, fake)
	api.e.POST("/auth/login", Handle(h.Handler, h.Login, http.StatusOK, &LoginRequest{}))

	rec := api.do(http.MethodPost, "/auth/login", `{"email":"ana@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@example.com", fake.login.Email)
	assert.NotEmpty(t, fake.login.IP)

	rec = api.do(http.MethodPost, "/auth/login", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"email", "password"}, fields(decodeError(t, rec)))

	rec = api.do(http.MethodPost, "/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresActor(t *testing.T) {
	api := newTestAPI(t)
	h := NewAuthHandler(api.srv, &fakeAuth{})
	api.e.GET("/auth/me", Handle(h.Handler, h.Me, http.StatusOK, &EmptyRequest{}))

	rec := api.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPageAccess(t *testing.T) {
	api := newTestAPI(t)
	h := NewAuthHandler(api.srv, &fakeAuth{})
	api.e.GET("/auth/access", Handle(h.Handler, h.PageAccess, http.StatusOK, &PageAccessRequest{}))

	api.as(model.RoleEmployee)
	rec := api.do(http.MethodGet, "/auth/access?path=/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got PageAccess
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Allowed)

	api.as(model.RoleHR)
	rec = api.do(http.MethodGet, "/auth/access?path=/admin/resource-types", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Allowed)

	rec = api.do(http.MethodGet, "/auth/access", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEmployee(t *testing.T) {
	api := newTestAPI(t)
	api.as(model.RoleHR)
	fake := &fakeEmployees{}
	h := NewEmployeeHandler(api.srv, fake)
	api.e.POST("/employees", Handle(h.Handler, h.Create, http.StatusCreated, &CreateEmployeeRequest{}))

	manager := uuid.New()
	rec := api.do(http.MethodPost, "/employees", `{
		"employeeCode": "E-001",
		"firstName": "Ana",
		"lastName": "Doe",
		"email": "ana@example.com",
		"department": "Finance",
		"position": "Analyst",
		"managerId": "`+manager.String()+`",
		"hireDate": "2024-02-29"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), fake.created.HireDate)
	assert.Equal(t, manager, *fake.created.ManagerID)
	assert.Nil(t, fake.created.TerminationDate)

	rec = api.do(http.MethodPost, "/employees", `{"employeeCode":"E-2","firstName":"A","lastName":"B","email":"a@b.co","department":"X","position":"Y","hireDate":"29/02/2024","status":"fired"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"hireDate", "status"}, fields(decodeError(t, rec)))
}

func TestUpdateEmployeeRejectsManagerAndClear(t *testing.T) {
	api := newTestAPI(t)
	api.as(model.RoleHR)
	h := NewEmployeeHandler(api.srv, &fakeEmployees{})
	api.e.PATCH("/employees/:id", Handle(h.Handler, h.Update, http.StatusOK, &UpdateEmployeeRequest{}))

	rec := api.do(http.MethodPatch, "/employees/"+uuid.NewString(), `{"managerId":"`+uuid.NewString()+`","clearManager":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"managerId"}, fields(decodeError(t, rec)))

	rec = api.do(http.MethodPatch, "/employees/not-a-uuid", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"id"}, fields(decodeError(t, rec)))
}

func TestListEmployeesFilters(t *testing.T) {
	api := newTestAPI(t)
	api.as(model.RoleManager)
	fake := &fakeEmployees{}
	h := NewEmployeeHandler(api.srv, fake)
	api.e.GET("/employees", Handle(h.Handler, h.List, http.StatusOK, &ListEmployeesRequest{}))

	manager := uuid.New()
	rec := api.do(http.MethodGet, "/employees?department=Finance&status=on_leave&managerId="+manager.String()+"&search=%20ana%20&page=2&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Finance", *fake.filter.Department)
	assert.Equal(t, model.EmployeeOnLeave, *fake.filter.Status)
	assert.Equal(t, manager, *fake.filter.ManagerID)
	assert.Equal(t, "ana", *fake.filter.Search)
	assert.Equal(t, model.PageQuery{Page: 2, Limit: 5}, fake.filter.PageQuery)

	var page model.PaginatedResponse[model.Employee]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.NotNil(t, page.Data)

	rec = api.do(http.MethodGet, "/employees?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.as(model.RoleHR)
	fake := &fakeEmployees{}
	h := NewEmployeeHandler(api.srv, fake)
	api.e.DELETE("/employees/:id", HandleNoContent(h.Handler, h.Delete, http.StatusNoContent, &IDRequest{}))
	api.e.GET("/employees/:id", Handle(h.Handler, h.Get, http.StatusOK, &IDRequest{}))

	id := uuid.New()
	rec := api.do(http.MethodDelete, "/employees/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, fake.deleted)

	rec = api.do(http.MethodGet, "/employees/"+id.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Employee not found", decodeError(t, rec).Message)
}
