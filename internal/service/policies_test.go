package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftInput() CreatePolicyInput {
	return CreatePolicyInput{
		Code:     " hr-001 ",
		Title:    "Remote work",
		Category: "HR",
		Body:     "Employees may work remotely two days a week.",
	}
}

func TestPolicyLifecycle(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	hr := f.user(model.RoleHR, "hr@example.com")
	ctx := context.Background()

	p, err := f.policies.Create(ctx, author, draftInput())
	require.NoError(t, err)
	assert.Equal(t, "HR-001", p.Code)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, model.PolicyDraft, p.Status)
	assert.Equal(t, author.ID, p.OwnerID)

	_, err = f.policies.Create(ctx, author, draftInput())
	requireHTTPError(t, err, http.StatusConflict, "POLICY_ALREADY_EXISTS")

	p, err = f.policies.Update(ctx, author, p.ID, model.PolicyPatch{Title: ptr(" Remote work v1 ")})
	require.NoError(t, err)
	assert.Equal(t, "Remote work v1", p.Title)

	p, err = f.policies.Submit(ctx, author, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyPendingApproval, p.Status)

	_, err = f.policies.Update(ctx, author, p.ID, model.PolicyPatch{Body: ptr("changed")})
	requireHTTPError(t, err, http.StatusConflict, "POLICY_NOT_DRAFT")

	page, err := f.approvals.List(ctx, hr, ListApprovalsInput{Scope: ScopeAssigned})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	req := page.Data[0]
	assert.Equal(t, model.ApprovalPolicyPublication, req.Kind)
	assert.Equal(t, "Publish HR-001 v1: Remote work v1", req.Title)

	_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionApprove})
	require.NoError(t, err)

	active := f.store.policies[p.ID]
	assert.Equal(t, model.PolicyActive, active.Status)
	require.NotNil(t, active.PublishedAt)
	assert.Equal(t, testNow, *active.PublishedAt)
	require.NotNil(t, active.EffectiveDate)
	assert.Equal(t, model.Date(testNow), *active.EffectiveDate)

	assert.Equal(t, []string{
		"policy.created",
		"policy.updated",
		"policy.submitted",
		"approval_request.opened",
		"approval_request.approved",
		"policy.published",
	}, f.recorder.actions())
}

func TestPolicyRejectReturnsToDraft(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	hr := f.user(model.RoleHR, "hr@example.com")
	ctx := context.Background()

	p, err := f.policies.Create(ctx, author, draftInput())
	require.NoError(t, err)
	_, err = f.policies.Submit(ctx, author, p.ID)
	require.NoError(t, err)

	req, err := f.store.GetPendingApproval(ctx, model.ApprovalPolicyPublication, p.ID)
	require.NoError(t, err)

	_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionReject})
	requireHTTPError(t, err, http.StatusBadRequest, "")

	_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionReject, Comment: "Needs legal review"})
	require.NoError(t, err)

	assert.Equal(t, model.PolicyDraft, f.store.policies[p.ID].Status)
	assert.Contains(t, f.recorder.actions(), "policy.rejected")

	// A rejected draft can be resubmitted.
	_, err = f.policies.Submit(ctx, author, p.ID)
	require.NoError(t, err)
}

func TestPolicyCancelWithdraws(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	ctx := context.Background()

	p, err := f.policies.Create(ctx, author, draftInput())
	require.NoError(t, err)
	_, err = f.policies.Submit(ctx, author, p.ID)
	require.NoError(t, err)
	req, err := f.store.GetPendingApproval(ctx, model.ApprovalPolicyPublication, p.ID)
	require.NoError(t, err)

	cancelled, err := f.approvals.Cancel(ctx, author, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalCancelled, cancelled.Status)
	assert.Equal(t, model.PolicyDraft, f.store.policies[p.ID].Status)
	assert.Contains(t, f.recorder.actions(), "policy.withdrawn")
}

func TestPolicyRevisionSupersedes(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	hr := f.user(model.RoleHR, "hr@example.com")
	ctx := context.Background()

	v1 := &model.Policy{
		Base:    model.Base{ID: uuid.New()},
		Code:    "SEC-7",
		Title:   "Passwords",
		Version: 1,
		Status:  model.PolicyActive,
		OwnerID: author.ID,
	}
	f.store.policies[v1.ID] = v1

	_, err := f.policies.Revise(ctx, author, uuid.New())
	assert.True(t, isNotFound(err))

	v2, err := f.policies.Revise(ctx, author, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, model.PolicyDraft, v2.Status)
	assert.Equal(t, "Passwords", v2.Title)

	_, err = f.policies.Revise(ctx, author, v1.ID)
	requireHTTPError(t, err, http.StatusConflict, "POLICY_REVISION_OPEN")

	_, err = f.policies.Revise(ctx, author, v2.ID)
	requireHTTPError(t, err, http.StatusConflict, "POLICY_NOT_ACTIVE")

	_, err = f.policies.Submit(ctx, author, v2.ID)
	require.NoError(t, err)
	req, err := f.store.GetPendingApproval(ctx, model.ApprovalPolicyPublication, v2.ID)
	require.NoError(t, err)
	_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionApprove})
	require.NoError(t, err)

	assert.Equal(t, model.PolicyActive, f.store.policies[v2.ID].Status)
	assert.Equal(t, model.PolicyArchived, f.store.policies[v1.ID].Status)
}

func TestPolicyDates(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	hr := f.user(model.RoleHR, "hr@example.com")
	ctx := context.Background()

	in := draftInput()
	in.EffectiveDate = ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	in.ExpiryDate = ptr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	_, err := f.policies.Create(ctx, author, in)
	requireHTTPError(t, err, http.StatusBadRequest, "")

	t.Run("expired before it takes effect", func(t *testing.T) {
		in := draftInput()
		in.ExpiryDate = ptr(model.Date(testNow))
		p, err := f.policies.Create(ctx, author, in)
		require.NoError(t, err)
		_, err = f.policies.Submit(ctx, author, p.ID)
		require.NoError(t, err)

		req, err := f.store.GetPendingApproval(ctx, model.ApprovalPolicyPublication, p.ID)
		require.NoError(t, err)
		_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionApprove})
		requireHTTPError(t, err, http.StatusConflict, "POLICY_ALREADY_EXPIRED")
	})

	t.Run("expired with an explicit effective date", func(t *testing.T) {
		in := draftInput()
		in.Code = "HR-002"
		in.EffectiveDate = ptr(model.Date(testNow).AddDate(-1, 0, 0))
		in.ExpiryDate = ptr(model.Date(testNow).AddDate(0, 0, -10))
		p, err := f.policies.Create(ctx, author, in)
		require.NoError(t, err)
		_, err = f.policies.Submit(ctx, author, p.ID)
		require.NoError(t, err)

		req, err := f.store.GetPendingApproval(ctx, model.ApprovalPolicyPublication, p.ID)
		require.NoError(t, err)
		_, err = f.approvals.Decide(ctx, hr, req.ID, DecideInput{Decision: model.DecisionApprove})
		requireHTTPError(t, err, http.StatusConflict, "POLICY_ALREADY_EXPIRED")
		assert.Equal(t, model.PolicyPendingApproval, f.store.policies[p.ID].Status)
	})
}

func TestArchivePolicy(t *testing.T) {
	f := newFixture(t)
	author := f.user(model.RoleManager, "author@example.com")
	ctx := context.Background()

	p, err := f.policies.Create(ctx, author, draftInput())
	require.NoError(t, err)
	_, err = f.policies.Submit(ctx, author, p.ID)
	require.NoError(t, err)

	_, err = f.policies.Archive(ctx, author, p.ID)
	requireHTTPError(t, err, http.StatusConflict, "POLICY_INVALID_TRANSITION")

	f.store.policies[p.ID].Status = model.PolicyDraft
	archived, err := f.policies.Archive(ctx, author, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyArchived, archived.Status)
}

func TestExpirePolicies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := model.Date(testNow)

	add := func(code string, status model.PolicyStatus, expiry *time.Time) *model.Policy {
		p := &model.Policy{
			Base:       model.Base{ID: uuid.New()},
			Code:       code,
			Version:    1,
			Status:     status,
			ExpiryDate: expiry,
		}
		f.store.policies[p.ID] = p
		return p
	}

	due := add("A", model.PolicyActive, ptr(today))
	past := add("B", model.PolicyActive, ptr(today.AddDate(0, 0, -3)))
	future := add("C", model.PolicyActive, ptr(today.AddDate(0, 0, 1)))
	open := add("D", model.PolicyActive, nil)
	draft := add("E", model.PolicyDraft, ptr(today.AddDate(0, 0, -1)))

	n, err := f.policies.ExpirePolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, model.PolicyArchived, f.store.policies[due.ID].Status)
	assert.Equal(t, model.PolicyArchived, f.store.policies[past.ID].Status)
	assert.Equal(t, model.PolicyActive, f.store.policies[future.ID].Status)
	assert.Equal(t, model.PolicyActive, f.store.policies[open.ID].Status)
	assert.Equal(t, model.PolicyDraft, f.store.policies[draft.ID].Status)

	assert.Equal(t, []string{"policy.expired", "policy.expired"}, f.recorder.actions())
	assert.Nil(t, f.recorder.actors[0], "the sweep has no actor")

	n, err = f.policies.ExpirePolicies(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
