package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/job"
	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type ApprovalStore interface {
	CreateApproval(ctx context.Context, a *model.ApprovalRequest) (*model.ApprovalRequest, error)
	GetApprovalByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	GetApprovalForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	GetPendingApproval(ctx context.Context, kind model.ApprovalKind, subjectID uuid.UUID) (*model.ApprovalRequest, error)
	ListApprovals(ctx context.Context, f model.ApprovalFilter) ([]model.ApprovalRequest, int, error)
	CloseApproval(ctx context.Context, id uuid.UUID, status model.ApprovalStatus, comment *string, decidedBy uuid.UUID, at time.Time) (*model.ApprovalRequest, error)
}

// ApproverDirectory resolves notification recipients.
type ApproverDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListActiveUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
}

// Effect applies the final status of a request to its subject.
// ApplyDecision runs in the transaction that closes the request;
// RecordDecision runs after it has committed.
type Effect interface {
	ApplyDecision(ctx context.Context, req *model.ApprovalRequest) error
	RecordDecision(ctx context.Context, actor model.Actor, req *model.ApprovalRequest)
}

// Opener creates approval requests for other services.
type Opener interface {
	Open(ctx context.Context, actor model.Actor, in OpenApprovalInput) (*model.ApprovalRequest, error)
	Announce(ctx context.Context, req *model.ApprovalRequest)
}

type ApprovalService struct {
	tx        TxRunner
	approvals ApprovalStore
	users     ApproverDirectory
	activity  Recorder
	jobs      TaskEnqueuer
	clock     clockwork.Clock
	logger    *zerolog.Logger

	effects map[model.ApprovalKind]Effect
}

func NewApprovalService(tx TxRunner, approvals ApprovalStore, users ApproverDirectory, activity Recorder, jobs TaskEnqueuer, clock clockwork.Clock, logger *zerolog.Logger) *ApprovalService {
	return &ApprovalService{
		tx:        tx,
		approvals: approvals,
		users:     users,
		activity:  activity,
		jobs:      jobs,
		clock:     clock,
		logger:    logger,
		effects:   map[model.ApprovalKind]Effect{},
	}
}

// Register sets the effect applied when requests of kind are closed.
func (s *ApprovalService) Register(kind model.ApprovalKind, e Effect) {
	s.effects[kind] = e
}

type OpenApprovalInput struct {
	Kind         model.ApprovalKind
	SubjectID    uuid.UUID
	Title        string
	ApproverRole model.Role
	ApproverID   *uuid.UUID
	Payload      map[string]any
}

var errPendingExists = conflict("A pending approval request already exists for this subject", "APPROVAL_ALREADY_PENDING")

// Open creates a pending request. Call it inside the caller's transaction
// and Announce after commit.
func (s *ApprovalService) Open(ctx context.Context, actor model.Actor, in OpenApprovalInput) (*model.ApprovalRequest, error) {
	if !in.Kind.Valid() {
		return nil, invalid("kind", "is not a known approval kind")
	}

	_, err := s.approvals.GetPendingApproval(ctx, in.Kind, in.SubjectID)
	switch {
	case err == nil:
		return nil, errPendingExists
	case !isNotFound(err):
		return nil, err
	}

	return s.approvals.CreateApproval(ctx, &model.ApprovalRequest{
		Kind:         in.Kind,
		SubjectID:    in.SubjectID,
		Title:        in.Title,
		RequestedBy:  actor.ID,
		ApproverRole: in.ApproverRole,
		ApproverID:   in.ApproverID,
		Status:       model.ApprovalPending,
		Payload:      in.Payload,
	})
}

// Announce records the new request and emails its approvers.
func (s *ApprovalService) Announce(ctx context.Context, req *model.ApprovalRequest) {
	logger := loggerFrom(ctx, s.logger)

	s.activity.Record(ctx, &model.Actor{ID: req.RequestedBy}, Entry{
		Action:     "approval_request.opened",
		EntityType: model.EntityApprovalRequest,
		EntityID:   req.ID,
		Summary:    "Requested approval: " + req.Title,
		Metadata:   map[string]any{"kind": req.Kind, "subjectId": req.SubjectID},
	})

	to, err := s.recipients(ctx, req)
	if err != nil {
		logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("failed to resolve approvers")
		return
	}
	if len(to) == 0 {
		logger.Warn().Str("request_id", req.ID.String()).Str("approver_role", string(req.ApproverRole)).Msg("no active approvers to notify")
		return
	}

	requestedBy := req.RequestedBy.String()
	if u, err := s.users.GetUserByID(ctx, req.RequestedBy); err == nil {
		requestedBy = u.FullName
	}

	task, err := job.NewApprovalRequestedTask(job.ApprovalRequestedPayload{
		To:          to,
		RequestID:   req.ID.String(),
		Kind:        string(req.Kind),
		Title:       req.Title,
		RequestedBy: requestedBy,
	})
	enqueue(ctx, s.jobs, logger, task, err)
}

func (s *ApprovalService) recipients(ctx context.Context, req *model.ApprovalRequest) ([]string, error) {
	if req.ApproverID != nil {
		u, err := s.users.GetUserByID(ctx, *req.ApproverID)
		if err != nil {
			return nil, err
		}
		if !u.Active {
			return nil, nil
		}
		return []string{u.Email}, nil
	}

	users, err := s.users.ListActiveUsersByRole(ctx, req.ApproverRole)
	if err != nil {
		return nil, err
	}
	to := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != req.RequestedBy {
			to = append(to, u.Email)
		}
	}
	return to, nil
}

type DecideInput struct {
	Decision model.Decision
	Comment  string
}

// Decide approves or rejects a pending request and applies the outcome to
// its subject in one transaction.
func (s *ApprovalService) Decide(ctx context.Context, actor model.Actor, id uuid.UUID, in DecideInput) (*model.ApprovalRequest, error) {
	var outcome model.ApprovalStatus
	switch in.Decision {
	case model.DecisionApprove:
		outcome = model.ApprovalApproved
	case model.DecisionReject:
		outcome = model.ApprovalRejected
	default:
		return nil, invalid("decision", "must be one of: approve, reject")
	}

	comment := strings.TrimSpace(in.Comment)
	if outcome == model.ApprovalRejected && comment == "" {
		return nil, invalid("comment", "is required when rejecting")
	}
	if !rbac.HasPermission(actor.Role, rbac.ApprovalsDecide) {
		return nil, errs.NewForbiddenError("You are not allowed to decide approval requests", true)
	}

	var closed *model.ApprovalRequest
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.approvals.GetApprovalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.ApprovalPending {
			return conflict(fmt.Sprintf("Approval request is already %s", req.Status), "APPROVAL_CLOSED")
		}
		if req.RequestedBy == actor.ID {
			return errs.NewForbiddenError("You cannot decide your own request", true)
		}
		if !CanDecide(actor, req) {
			return errs.NewForbiddenError("You are not an approver for this request", true)
		}

		closed, err = s.close(ctx, req, outcome, nonEmpty(comment), actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalDecisions.WithLabelValues(string(closed.Kind), string(outcome)).Inc()
	s.activity.Record(ctx, &actor, Entry{
		Action:     "approval_request." + string(outcome),
		EntityType: model.EntityApprovalRequest,
		EntityID:   closed.ID,
		Summary:    fmt.Sprintf("%s: %s", titleCase(string(outcome)), closed.Title),
		Metadata:   map[string]any{"kind": closed.Kind, "subjectId": closed.SubjectID, "comment": comment},
	})
	s.effects[closed.Kind].RecordDecision(ctx, actor, closed)
	s.notifyDecided(ctx, closed)

	return closed, nil
}

// Cancel withdraws a pending request. Only the requester or an admin may
// cancel.
func (s *ApprovalService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ApprovalRequest, error) {
	var closed *model.ApprovalRequest
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.approvals.GetApprovalForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != model.ApprovalPending {
			return conflict(fmt.Sprintf("Approval request is already %s", req.Status), "APPROVAL_CLOSED")
		}
		if req.RequestedBy != actor.ID && !actor.IsAdmin() {
			return errs.NewForbiddenError("Only the requester or an admin can cancel this request", true)
		}

		closed, err = s.close(ctx, req, model.ApprovalCancelled, nil, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalDecisions.WithLabelValues(string(closed.Kind), string(model.ApprovalCancelled)).Inc()
	s.activity.Record(ctx, &actor, Entry{
		Action:     "approval_request.cancelled",
		EntityType: model.EntityApprovalRequest,
		EntityID:   closed.ID,
		Summary:    "Cancelled: " + closed.Title,
		Metadata:   map[string]any{"kind": closed.Kind, "subjectId": closed.SubjectID},
	})
	s.effects[closed.Kind].RecordDecision(ctx, actor, closed)

	return closed, nil
}

func (s *ApprovalService) close(ctx context.Context, req *model.ApprovalRequest, status model.ApprovalStatus, comment *string, actor model.Actor) (*model.ApprovalRequest, error) {
	closed, err := s.approvals.CloseApproval(ctx, req.ID, status, comment, actor.ID, s.clock.Now())
	if err != nil {
		if isNotFound(err) {
			return nil, conflict("Approval request is no longer pending", "APPROVAL_CLOSED")
		}
		return nil, err
	}

	effect, ok := s.effects[closed.Kind]
	if !ok {
		return nil, fmt.Errorf("no effect registered for approval kind %q", closed.Kind)
	}
	if err := effect.ApplyDecision(ctx, closed); err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *ApprovalService) notifyDecided(ctx context.Context, req *model.ApprovalRequest) {
	logger := loggerFrom(ctx, s.logger)

	requester, err := s.users.GetUserByID(ctx, req.RequestedBy)
	if err != nil {
		logger.Error().Err(err).Str("request_id", req.ID.String()).Msg("failed to load requester")
		return
	}

	var comment string
	if req.DecisionComment != nil {
		comment = *req.DecisionComment
	}

	task, err := job.NewApprovalDecidedTask(job.ApprovalDecidedPayload{
		To:        requester.Email,
		RequestID: req.ID.String(),
		Kind:      string(req.Kind),
		Title:     req.Title,
		Outcome:   string(req.Status),
		Comment:   comment,
	})
	enqueue(ctx, s.jobs, logger, task, err)
}

// CanDecide reports whether actor is an approver of req: the named
// approver, a holder of the approver role, or an admin.
func CanDecide(actor model.Actor, req *model.ApprovalRequest) bool {
	if !rbac.HasPermission(actor.Role, rbac.ApprovalsDecide) {
		return false
	}
	if actor.IsAdmin() || actor.Role == req.ApproverRole {
		return true
	}
	return req.ApproverID != nil && *req.ApproverID == actor.ID
}

func (s *ApprovalService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.ApprovalRequest, error) {
	req, err := s.approvals.GetApprovalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(actor.Role, rbac.ApprovalsDecide) && req.RequestedBy != actor.ID {
		return nil, errs.NewForbiddenError("You can only view your own requests", true)
	}
	return req, nil
}

// Approval list scopes.
const (
	ScopeAll      = ""
	ScopeMine     = "mine"
	ScopeAssigned = "assigned"
)

type ListApprovalsInput struct {
	Status *model.ApprovalStatus
	Kind   *model.ApprovalKind
	Scope  string
	model.PageQuery
}

// List returns requests visible to actor. Callers who cannot decide
// requests only ever see their own.
func (s *ApprovalService) List(ctx context.Context, actor model.Actor, in ListApprovalsInput) (*model.PaginatedResponse[model.ApprovalRequest], error) {
	f := model.ApprovalFilter{Status: in.Status, Kind: in.Kind, PageQuery: in.PageQuery}

	switch {
	case in.Scope == ScopeMine || !rbac.HasPermission(actor.Role, rbac.ApprovalsDecide):
		f.RequestedBy = &actor.ID
	case in.Scope == ScopeAssigned:
		f.AssignedTo = &actor
	case in.Scope != ScopeAll:
		return nil, invalid("scope", "must be one of: mine, assigned")
	}

	items, total, err := s.approvals.ListApprovals(ctx, f)
	if err != nil {
		return nil, err
	}
	return model.NewPage(items, in.PageQuery, total), nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
