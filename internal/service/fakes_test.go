package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func notFound(table string) error {
	return fmt.Errorf("table:%s: %w", table, pgx.ErrNoRows)
}

// requireHTTPError asserts err is an *errs.HTTPError with the given status
// and code.
func requireHTTPError(t *testing.T, err error, status int, code string) *errs.HTTPError {
	t.Helper()
	require.Error(t, err)
	var httpErr *errs.HTTPError
	require.ErrorAsf(t, err, &httpErr, "expected *errs.HTTPError, got %T: %v", err, err)
	require.Equal(t, status, httpErr.Status)
	if code != "" {
		require.Equal(t, code, httpErr.Code)
	}
	return httpErr
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
	actors  []*model.Actor
}

func (r *recorder) Record(_ context.Context, actor *model.Actor, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.actors = append(r.actors, actor)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type enqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (q *enqueuer) Enqueue(_ context.Context, task *asynq.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *enqueuer) types() []string {
	out := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Type())
	}
	return out
}

// store is an in-memory stand-in for every repository the services use.
type store struct {
	clock clockwork.Clock

	users      map[uuid.UUID]*model.User
	employees  map[uuid.UUID]*model.Employee
	policies   map[uuid.UUID]*model.Policy
	types      map[uuid.UUID]*model.ResourceType
	items      map[uuid.UUID]*model.ResourceItem
	approvals  map[uuid.UUID]*model.ApprovalRequest
	activities []model.Activity

	invalidated []uuid.UUID
	activityErr error
}

func newStore(clock clockwork.Clock) *store {
	return &store{
		clock:     clock,
		users:     map[uuid.UUID]*model.User{},
		employees: map[uuid.UUID]*model.Employee{},
		policies:  map[uuid.UUID]*model.Policy{},
		types:     map[uuid.UUID]*model.ResourceType{},
		items:     map[uuid.UUID]*model.ResourceItem{},
		approvals: map[uuid.UUID]*model.ApprovalRequest{},
	}
}

func (s *store) stamp(b *model.Base) {
	now := s.clock.Now()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Users

func (s *store) CreateUser(_ context.Context, u *model.User) (*model.User, error) {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return nil, errs.NewConflictError("email taken", true, nil)
		}
	}
	u = clone(u)
	s.stamp(&u.Base)
	s.users[u.ID] = u
	return clone(u), nil
}

func (s *store) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("users")
	}
	return clone(u), nil
}

func (s *store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, notFound("users")
}

func (s *store) ListUsers(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	var out []model.User
	for _, u := range s.users {
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *store) ListActiveUsersByRole(_ context.Context, role model.Role) ([]model.User, error) {
	var out []model.User
	for _, u := range s.users {
		if u.Active && u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *store) UpdateUser(_ context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("users")
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	if p.ClearEmployee {
		u.EmployeeID = nil
	} else if p.EmployeeID != nil {
		u.EmployeeID = p.EmployeeID
	}
	s.stamp(&u.Base)
	return clone(u), nil
}

func (s *store) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return notFound("users")
	}
	u.LastLoginAt = &at
	return nil
}

// Employees

func (s *store) CreateEmployee(_ context.Context, e *model.Employee) (*model.Employee, error) {
	e = clone(e)
	s.stamp(&e.Base)
	s.employees[e.ID] = e
	return clone(e), nil
}

func (s *store) GetEmployeeByID(_ context.Context, id uuid.UUID) (*model.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, notFound("employees")
	}
	return clone(e), nil
}

func (s *store) ListEmployees(_ context.Context, f model.EmployeeFilter) ([]model.Employee, int, error) {
	var out []model.Employee
	for _, e := range s.employees {
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *store) UpdateEmployee(_ context.Context, e *model.Employee) (*model.Employee, error) {
	if _, ok := s.employees[e.ID]; !ok {
		return nil, notFound("employees")
	}
	e = clone(e)
	s.stamp(&e.Base)
	s.employees[e.ID] = e
	return clone(e), nil
}

func (s *store) DeleteEmployee(_ context.Context, id uuid.UUID) error {
	if _, ok := s.employees[id]; !ok {
		return notFound("employees")
	}
	delete(s.employees, id)
	return nil
}

// IsManagerCycle walks manager_id upwards from managerID.
func (s *store) IsManagerCycle(_ context.Context, id, managerID uuid.UUID) (bool, error) {
	seen := map[uuid.UUID]bool{}
	for cur := managerID; ; {
		if cur == id {
			return true, nil
		}
		if seen[cur] {
			return false, nil
		}
		seen[cur] = true
		e, ok := s.employees[cur]
		if !ok || e.ManagerID == nil {
			return false, nil
		}
		cur = *e.ManagerID
	}
}

// Policies

func (s *store) CreatePolicy(_ context.Context, p *model.Policy) (*model.Policy, error) {
	p = clone(p)
	s.stamp(&p.Base)
	s.policies[p.ID] = p
	return clone(p), nil
}

func (s *store) GetPolicyByID(_ context.Context, id uuid.UUID) (*model.Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return nil, notFound("policies")
	}
	return clone(p), nil
}

func (s *store) ListPolicies(_ context.Context, f model.PolicyFilter) ([]model.Policy, int, error) {
	var out []model.Policy
	for _, p := range s.policies {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *store) UpdatePolicyDraft(_ context.Context, p *model.Policy) (*model.Policy, error) {
	cur, ok := s.policies[p.ID]
	if !ok || cur.Status != model.PolicyDraft {
		return nil, notFound("policies")
	}
	p = clone(p)
	s.stamp(&p.Base)
	s.policies[p.ID] = p
	return clone(p), nil
}

func (s *store) TransitionPolicy(_ context.Context, id uuid.UUID, from, to model.PolicyStatus, publishedAt, effectiveDate *time.Time) (*model.Policy, error) {
	p, ok := s.policies[id]
	if !ok || p.Status != from {
		return nil, notFound("policies")
	}
	p.Status = to
	if publishedAt != nil {
		p.PublishedAt = publishedAt
	}
	if effectiveDate != nil {
		p.EffectiveDate = effectiveDate
	}
	s.stamp(&p.Base)
	return clone(p), nil
}

func (s *store) NextPolicyVersion(_ context.Context, code string) (int, error) {
	max := 0
	for _, p := range s.policies {
		if p.Code == code && p.Version > max {
			max = p.Version
		}
	}
	return max + 1, nil
}

func (s *store) HasOpenRevision(_ context.Context, code string) (bool, error) {
	for _, p := range s.policies {
		if p.Code == code && (p.Status == model.PolicyDraft || p.Status == model.PolicyPendingApproval) {
			return true, nil
		}
	}
	return false, nil
}

func (s *store) ListExpiredPolicies(_ context.Context, asOf time.Time) ([]model.Policy, error) {
	var out []model.Policy
	for _, p := range s.policies {
		if p.Status == model.PolicyActive && p.ExpiryDate != nil && !p.ExpiryDate.After(asOf) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *store) ArchiveActiveVersions(_ context.Context, code string, keep uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, p := range s.policies {
		if p.Code == code && p.ID != keep && p.Status == model.PolicyActive {
			p.Status = model.PolicyArchived
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// Resource types

func (s *store) CreateResourceType(_ context.Context, rt *model.ResourceType) (*model.ResourceType, error) {
	rt = clone(rt)
	if rt.SchemaVersion == 0 {
		rt.SchemaVersion = 1
	}
	s.stamp(&rt.Base)
	s.types[rt.ID] = rt
	return clone(rt), nil
}

func (s *store) GetResourceTypeByID(_ context.Context, id uuid.UUID) (*model.ResourceType, error) {
	rt, ok := s.types[id]
	if !ok {
		return nil, notFound("resource_types")
	}
	return clone(rt), nil
}

func (s *store) GetResourceTypeForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	return s.GetResourceTypeByID(ctx, id)
}

func (s *store) ListResourceTypes(_ context.Context) ([]model.ResourceType, error) {
	var out []model.ResourceType
	for _, rt := range s.types {
		out = append(out, *rt)
	}
	return out, nil
}

func (s *store) UpdateResourceType(_ context.Context, rt *model.ResourceType) (*model.ResourceType, error) {
	if _, ok := s.types[rt.ID]; !ok {
		return nil, notFound("resource_types")
	}
	rt = clone(rt)
	s.stamp(&rt.Base)
	s.types[rt.ID] = rt
	return clone(rt), nil
}

func (s *store) LockResourceTypeSchema(_ context.Context, id uuid.UUID) (bool, error) {
	rt, ok := s.types[id]
	if !ok {
		return false, notFound("resource_types")
	}
	if rt.SchemaLocked {
		return false, nil
	}
	rt.SchemaLocked = true
	return true, nil
}

func (s *store) DeleteResourceType(_ context.Context, id uuid.UUID) error {
	if _, ok := s.types[id]; !ok {
		return notFound("resource_types")
	}
	delete(s.types, id)
	return nil
}

// Invalidate makes store double as the resource type cache.
func (s *store) Invalidate(_ context.Context, id uuid.UUID) error {
	s.invalidated = append(s.invalidated, id)
	return nil
}

// Resource items

func (s *store) CreateResourceItem(_ context.Context, i *model.ResourceItem) (*model.ResourceItem, error) {
	i = clone(i)
	i.Properties = cloneMap(i.Properties)
	s.stamp(&i.Base)
	s.items[i.ID] = i
	return s.copyItem(i), nil
}

func (s *store) copyItem(i *model.ResourceItem) *model.ResourceItem {
	c := clone(i)
	c.Properties = cloneMap(i.Properties)
	return c
}

func (s *store) GetResourceItemByID(_ context.Context, id uuid.UUID) (*model.ResourceItem, error) {
	i, ok := s.items[id]
	if !ok {
		return nil, notFound("resource_items")
	}
	return s.copyItem(i), nil
}

func (s *store) GetResourceItemForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error) {
	return s.GetResourceItemByID(ctx, id)
}

func (s *store) ListResourceItems(_ context.Context, f model.ResourceItemFilter) ([]model.ResourceItem, int, error) {
	var out []model.ResourceItem
	for _, i := range s.items {
		if f.ResourceTypeID != nil && i.ResourceTypeID != *f.ResourceTypeID {
			continue
		}
		if f.Search != nil && !strings.Contains(strings.ToLower(i.Name), strings.ToLower(*f.Search)) {
			continue
		}
		out = append(out, *s.copyItem(i))
	}
	return out, len(out), nil
}

func (s *store) UpdateResourceItem(_ context.Context, i *model.ResourceItem) (*model.ResourceItem, error) {
	if _, ok := s.items[i.ID]; !ok {
		return nil, notFound("resource_items")
	}
	if (i.Status == model.ItemAssigned) != (i.AssignedTo != nil) {
		return nil, fmt.Errorf("resource_items_assignment check violated")
	}
	i = s.copyItem(i)
	s.stamp(&i.Base)
	s.items[i.ID] = i
	return s.copyItem(i), nil
}

func (s *store) DeleteResourceItem(_ context.Context, id uuid.UUID) error {
	if _, ok := s.items[id]; !ok {
		return notFound("resource_items")
	}
	delete(s.items, id)
	return nil
}

func (s *store) CountResourceItemsByType(_ context.Context, typeID uuid.UUID) (int, error) {
	n := 0
	for _, i := range s.items {
		if i.ResourceTypeID == typeID {
			n++
		}
	}
	return n, nil
}

func (s *store) ReleaseResourceItems(_ context.Context, employeeID uuid.UUID) ([]model.ResourceItem, error) {
	var out []model.ResourceItem
	for _, i := range s.items {
		if i.AssignedTo != nil && *i.AssignedTo == employeeID {
			i.AssignedTo = nil
			i.Status = model.ItemAvailable
			out = append(out, *s.copyItem(i))
		}
	}
	return out, nil
}

// Approvals

func (s *store) CreateApproval(_ context.Context, a *model.ApprovalRequest) (*model.ApprovalRequest, error) {
	a = clone(a)
	s.stamp(&a.Base)
	s.approvals[a.ID] = a
	return clone(a), nil
}

func (s *store) GetApprovalByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	a, ok := s.approvals[id]
	if !ok {
		return nil, notFound("approval_requests")
	}
	return clone(a), nil
}

func (s *store) GetApprovalForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	return s.GetApprovalByID(ctx, id)
}

func (s *store) GetPendingApproval(_ context.Context, kind model.ApprovalKind, subjectID uuid.UUID) (*model.ApprovalRequest, error) {
	for _, a := range s.approvals {
		if a.Kind == kind && a.SubjectID == subjectID && a.Status == model.ApprovalPending {
			return clone(a), nil
		}
	}
	return nil, notFound("approval_requests")
}

func (s *store) ListApprovals(_ context.Context, f model.ApprovalFilter) ([]model.ApprovalRequest, int, error) {
	var out []model.ApprovalRequest
	for _, a := range s.approvals {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.RequestedBy != nil && a.RequestedBy != *f.RequestedBy {
			continue
		}
		if f.AssignedTo != nil && !CanDecide(*f.AssignedTo, a) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *store) CloseApproval(_ context.Context, id uuid.UUID, status model.ApprovalStatus, comment *string, decidedBy uuid.UUID, at time.Time) (*model.ApprovalRequest, error) {
	a, ok := s.approvals[id]
	if !ok || a.Status != model.ApprovalPending {
		return nil, notFound("approval_requests")
	}
	a.Status = status
	a.DecisionComment = comment
	a.DecidedBy = &decidedBy
	a.DecidedAt = &at
	s.stamp(&a.Base)
	return clone(a), nil
}

// Activities

func (s *store) CreateActivity(_ context.Context, a *model.Activity) (*model.Activity, error) {
	if s.activityErr != nil {
		return nil, s.activityErr
	}
	a = clone(a)
	a.ID = uuid.New()
	a.CreatedAt = s.clock.Now()
	s.activities = append(s.activities, *a)
	return clone(a), nil
}

func (s *store) ListActivities(_ context.Context, f model.ActivityFilter) ([]model.Activity, int, error) {
	var out []model.Activity
	for _, a := range s.activities {
		if f.EntityType != nil && a.EntityType != *f.EntityType {
			continue
		}
		if f.EntityID != nil && (a.EntityID == nil || *a.EntityID != *f.EntityID) {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

// fixture builds every service over one store.
type fixture struct {
	clock    *clockwork.FakeClock
	store    *store
	tx       *fakeTx
	recorder *recorder
	jobs     *enqueuer

	approvals *ApprovalService
	policies  *PolicyService
	resources *ResourceService
	employees *EmployeeService
	users     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testNow)
	st := newStore(clock)
	f := &fixture{
		clock:    clock,
		store:    st,
		tx:       &fakeTx{},
		recorder: &recorder{},
		jobs:     &enqueuer{},
	}

	logger := testLogger()
	f.approvals = NewApprovalService(f.tx, st, st, f.recorder, f.jobs, clock, logger)
	f.policies = NewPolicyService(f.tx, st, f.approvals, f.recorder, clock, logger)
	f.resources = NewResourceService(ResourceDeps{
		Tx:        f.tx,
		Types:     st,
		Cache:     st,
		Items:     st,
		Employees: st,
		Users:     st,
		Approvals: f.approvals,
		Activity:  f.recorder,
		Logger:    logger,
	})
	f.employees = NewEmployeeService(f.tx, st, st, f.recorder, clock, logger)
	f.users = NewUserService(st, st, f.recorder, f.jobs, 4, logger)

	f.approvals.Register(model.ApprovalPolicyPublication, f.policies)
	f.approvals.Register(model.ApprovalResourceAssignment, f.resources)

	return f
}

func (f *fixture) user(role model.Role, email string) model.Actor {
	u := &model.User{
		Base:     model.Base{ID: uuid.New()},
		Email:    email,
		FullName: strings.Split(email, "@")[0],
		Role:     role,
		Active:   true,
	}
	f.store.users[u.ID] = u
	return model.Actor{ID: u.ID, Role: role, Email: email}
}

func (f *fixture) employee(first string, status model.EmployeeStatus) *model.Employee {
	e := &model.Employee{
		Base:         model.Base{ID: uuid.New()},
		EmployeeCode: "E-" + first,
		FirstName:    first,
		LastName:     "Doe",
		Email:        strings.ToLower(first) + "@example.com",
		Department:   "Engineering",
		Position:     "Engineer",
		Status:       status,
		HireDate:     time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC),
	}
	f.store.employees[e.ID] = e
	return clone(e)
}

// link attaches an employee record to an account.
func (f *fixture) link(actor model.Actor, e *model.Employee) {
	id := e.ID
	f.store.users[actor.ID].EmployeeID = &id
}
