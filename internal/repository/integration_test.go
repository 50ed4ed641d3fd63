//go:build integration

package repository

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/config"
	"github.com/deppfellow/erm/internal/database"
	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/sqlerr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testRepos *Repositories

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Exit(runWithPostgres(m))
}

// runWithPostgres starts one container for the package, migrates it with the
// embedded migrations and runs the tests against it.
func runWithPostgres(m *testing.M) int {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("erm"),
		postgres.WithUsername("erm"),
		postgres.WithPassword("erm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		return 1
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate postgres container: %v\n", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		return 1
	}
	parsed, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse connection string: %v\n", err)
		return 1
	}

	cfg := &config.Config{
		Primary: config.Primary{Env: "test"},
		Database: config.DatabaseConfig{
			Host:            parsed.ConnConfig.Host,
			Port:            int(parsed.ConnConfig.Port),
			User:            "erm",
			Password:        "erm",
			Name:            "erm",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: 300,
			ConnMaxIdleTime: 60,
		},
	}
	logger := zerolog.Nop()

	if err := database.Migrate(ctx, &logger, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	db, err := database.New(cfg, &logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		return 1
	}
	defer db.Close()

	testRepos = NewRepositories(&server.Server{Config: cfg, Logger: &logger, DB: db})

	return m.Run()
}

// setupTestRepos returns the shared repositories and truncates every table
// when the test ends.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	t.Cleanup(func() {
		_, err := testRepos.pool.Exec(context.Background(),
			"TRUNCATE activities, approval_requests, resource_items, resource_types, policies, users, employees CASCADE")
		if err != nil {
			t.Logf("failed to truncate tables: %v", err)
		}
	})

	return testRepos
}

func day(offset int) time.Time {
	return time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, offset)
}

func createEmployee(t *testing.T, r *Repositories, managerID *uuid.UUID) *model.Employee {
	t.Helper()
	suffix := uuid.NewString()[:8]
	e, err := r.Employees.CreateEmployee(context.Background(), &model.Employee{
		EmployeeCode: "E-" + suffix,
		FirstName:    "Test",
		LastName:     suffix,
		Email:        suffix + "@example.com",
		Department:   "Engineering",
		Position:     "Engineer",
		ManagerID:    managerID,
		Status:       model.EmployeeActive,
		HireDate:     day(-365),
	})
	require.NoError(t, err)
	return e
}

func createUser(t *testing.T, r *Repositories, role model.Role) *model.User {
	t.Helper()
	u, err := r.Users.CreateUser(context.Background(), &model.User{
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
		FullName:     "Test User",
		Role:         role,
		Active:       true,
	})
	require.NoError(t, err)
	return u
}

func createPolicy(t *testing.T, r *Repositories, owner uuid.UUID, code string, version int, status model.PolicyStatus, expiry *time.Time) *model.Policy {
	t.Helper()
	p, err := r.Policies.CreatePolicy(context.Background(), &model.Policy{
		Code:       code,
		Title:      code + " policy",
		Category:   "general",
		Body:       "body",
		Version:    version,
		Status:     status,
		OwnerID:    owner,
		ExpiryDate: expiry,
	})
	require.NoError(t, err)
	return p
}

func createResourceType(t *testing.T, r *Repositories) *model.ResourceType {
	t.Helper()
	rt, err := r.ResourceTypes.CreateResourceType(context.Background(), &model.ResourceType{
		Name:   "Laptop " + uuid.NewString()[:8],
		Slug:   "laptop-" + uuid.NewString()[:8],
		Schema: schema.Schema{},
	})
	require.NoError(t, err)
	return rt
}

func createItem(t *testing.T, r *Repositories, typeID uuid.UUID, item model.ResourceItem) *model.ResourceItem {
	t.Helper()
	item.ResourceTypeID = typeID
	if item.Name == "" {
		item.Name = "Item " + uuid.NewString()[:8]
	}
	if item.Status == "" {
		item.Status = model.ItemAvailable
	}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}
	item.SchemaVersion = 1
	created, err := r.ResourceItems.CreateResourceItem(context.Background(), &item)
	require.NoError(t, err)
	return created
}

func TestIsManagerCycle(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()

	top := createEmployee(t, r, nil)
	middle := createEmployee(t, r, &top.ID)
	bottom := createEmployee(t, r, &middle.ID)
	other := createEmployee(t, r, nil)

	tests := []struct {
		name      string
		id        uuid.UUID
		managerID uuid.UUID
		want      bool
	}{
		{"report as manager of its chain top", top.ID, bottom.ID, true},
		{"direct report as manager", middle.ID, bottom.ID, true},
		{"self as manager", top.ID, top.ID, true},
		{"chain top as manager of a report", bottom.ID, top.ID, false},
		{"unrelated manager", top.ID, other.ID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Employees.IsManagerCycle(ctx, tt.id, tt.managerID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReleaseResourceItems(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()

	leaver := createEmployee(t, r, nil)
	stayer := createEmployee(t, r, nil)
	rt := createResourceType(t, r)

	first := createItem(t, r, rt.ID, model.ResourceItem{Status: model.ItemAssigned, AssignedTo: &leaver.ID})
	second := createItem(t, r, rt.ID, model.ResourceItem{Status: model.ItemAssigned, AssignedTo: &leaver.ID})
	kept := createItem(t, r, rt.ID, model.ResourceItem{Status: model.ItemAssigned, AssignedTo: &stayer.ID})

	released, err := r.ResourceItems.ReleaseResourceItems(ctx, leaver.ID)
	require.NoError(t, err)
	require.Len(t, released, 2)

	ids := []uuid.UUID{released[0].ID, released[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, ids)
	for _, item := range released {
		assert.Equal(t, model.ItemAvailable, item.Status)
		assert.Nil(t, item.AssignedTo)
	}

	got, err := r.ResourceItems.GetResourceItemByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemAssigned, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, stayer.ID, *got.AssignedTo)

	again, err := r.ResourceItems.ReleaseResourceItems(ctx, leaver.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestListExpiredPolicies(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	owner := createUser(t, r, model.RoleHR)

	yesterday, today, tomorrow := day(-1), day(0), day(1)

	expiredYesterday := createPolicy(t, r, owner.ID, "EXP-1", 1, model.PolicyActive, &yesterday)
	expiresToday := createPolicy(t, r, owner.ID, "EXP-2", 1, model.PolicyActive, &today)
	createPolicy(t, r, owner.ID, "EXP-3", 1, model.PolicyActive, &tomorrow)
	createPolicy(t, r, owner.ID, "EXP-4", 1, model.PolicyActive, nil)
	createPolicy(t, r, owner.ID, "EXP-5", 1, model.PolicyDraft, &yesterday)

	expired, err := r.Policies.ListExpiredPolicies(ctx, today)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, expiredYesterday.ID, expired[0].ID)
	assert.Equal(t, expiresToday.ID, expired[1].ID)
}

func TestArchiveActiveVersions(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	owner := createUser(t, r, model.RoleHR)

	v1 := createPolicy(t, r, owner.ID, "HR-001", 1, model.PolicyActive, nil)
	v2 := createPolicy(t, r, owner.ID, "HR-001", 2, model.PolicyActive, nil)
	draft := createPolicy(t, r, owner.ID, "HR-001", 3, model.PolicyDraft, nil)
	unrelated := createPolicy(t, r, owner.ID, "IT-001", 1, model.PolicyActive, nil)

	archived, err := r.Policies.ArchiveActiveVersions(ctx, "HR-001", v2.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{v1.ID}, archived)

	want := map[uuid.UUID]model.PolicyStatus{
		v1.ID:        model.PolicyArchived,
		v2.ID:        model.PolicyActive,
		draft.ID:     model.PolicyDraft,
		unrelated.ID: model.PolicyActive,
	}
	for id, status := range want {
		p, err := r.Policies.GetPolicyByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, p.Status, p.Code)
	}
}

func TestPendingApprovalIsUnique(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	requester := createUser(t, r, model.RoleEmployee)
	subject := uuid.New()

	request := func() (*model.ApprovalRequest, error) {
		return r.Approvals.CreateApproval(ctx, &model.ApprovalRequest{
			Kind:         model.ApprovalResourceAssignment,
			SubjectID:    subject,
			Title:        "Laptop request",
			RequestedBy:  requester.ID,
			ApproverRole: model.RoleManager,
		})
	}

	first, err := request()
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, first.Status)

	_, err = request()
	require.Error(t, err)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, sqlerr.HandleError(err), &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, "UNIQUE_APPROVAL_REQUESTS_PENDING", httpErr.Code)

	_, err = r.Approvals.CloseApproval(ctx, first.ID, model.ApprovalCancelled, nil, requester.ID, time.Now())
	require.NoError(t, err)

	_, err = request()
	assert.NoError(t, err, "a closed request frees the subject")
}

func TestResourceItemPurchaseCostRoundTrip(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	rt := createResourceType(t, r)

	serial := "SN-" + uuid.NewString()[:8]
	purchased := day(-30)
	cost := decimal.RequireFromString("123456789012.05")

	created := createItem(t, r, rt.ID, model.ResourceItem{
		SerialNumber: &serial,
		PurchaseDate: &purchased,
		PurchaseCost: decimal.NullDecimal{Decimal: cost, Valid: true},
	})

	got, err := r.ResourceItems.GetResourceItemByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.PurchaseCost.Valid)
	assert.Equal(t, "123456789012.05", got.PurchaseCost.Decimal.StringFixed(2))
	assert.True(t, cost.Equal(got.PurchaseCost.Decimal))
	require.NotNil(t, got.PurchaseDate)
	assert.Equal(t, purchased.Format(time.DateOnly), got.PurchaseDate.Format(time.DateOnly))

	empty := createItem(t, r, rt.ID, model.ResourceItem{})
	assert.False(t, empty.PurchaseCost.Valid)
}

func TestListResourceItemsSearchesPropertyValues(t *testing.T) {
	r := setupTestRepos(t)
	ctx := context.Background()
	rt := createResourceType(t, r)

	match := createItem(t, r, rt.ID, model.ResourceItem{
		Name:       "Workstation",
		Properties: map[string]any{"colour": "graphite"},
	})
	createItem(t, r, rt.ID, model.ResourceItem{
		Name:       "Monitor",
		Properties: map[string]any{"graphite_finish": "no"},
	})

	search := func(term string) []model.ResourceItem {
		items, _, err := r.ResourceItems.ListResourceItems(ctx, model.ResourceItemFilter{
			ResourceTypeID: &rt.ID,
			Search:         &term,
		})
		require.NoError(t, err)
		return items
	}

	found := search("graphite")
	require.Len(t, found, 1)
	assert.Equal(t, match.ID, found[0].ID)

	assert.Empty(t, search("colour"), "keys are not searched")
	assert.Len(t, search("workstation"), 1)
}
