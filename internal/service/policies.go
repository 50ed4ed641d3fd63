package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *model.Policy) (*model.Policy, error)
	GetPolicyByID(ctx context.Context, id uuid.UUID) (*model.Policy, error)
	ListPolicies(ctx context.Context, f model.PolicyFilter) ([]model.Policy, int, error)
	UpdatePolicyDraft(ctx context.Context, p *model.Policy) (*model.Policy, error)
	TransitionPolicy(ctx context.Context, id uuid.UUID, from, to model.PolicyStatus, publishedAt, effectiveDate *time.Time) (*model.Policy, error)
	NextPolicyVersion(ctx context.Context, code string) (int, error)
	HasOpenRevision(ctx context.Context, code string) (bool, error)
	ListExpiredPolicies(ctx context.Context, asOf time.Time) ([]model.Policy, error)
	ArchiveActiveVersions(ctx context.Context, code string, keep uuid.UUID) ([]uuid.UUID, error)
}

// PolicyApproverRole reviews policy publications.
const PolicyApproverRole = model.RoleHR

type PolicyService struct {
	tx        TxRunner
	policies  PolicyStore
	approvals Opener
	activity  Recorder
	clock     clockwork.Clock
	logger    *zerolog.Logger
}

func NewPolicyService(tx TxRunner, policies PolicyStore, approvals Opener, activity Recorder, clock clockwork.Clock, logger *zerolog.Logger) *PolicyService {
	return &PolicyService{
		tx:        tx,
		policies:  policies,
		approvals: approvals,
		activity:  activity,
		clock:     clock,
		logger:    logger,
	}
}

type CreatePolicyInput struct {
	Code          string
	Title         string
	Category      string
	Body          string
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
}

// Create starts a new policy as version 1 in draft. Existing codes are
// changed through Revise.
func (s *PolicyService) Create(ctx context.Context, actor model.Actor, in CreatePolicyInput) (*model.Policy, error) {
	p := &model.Policy{
		Code:          strings.ToUpper(strings.TrimSpace(in.Code)),
		Title:         strings.TrimSpace(in.Title),
		Category:      strings.TrimSpace(in.Category),
		Body:          in.Body,
		Version:       1,
		Status:        model.PolicyDraft,
		OwnerID:       actor.ID,
		EffectiveDate: datePtr(in.EffectiveDate),
		ExpiryDate:    datePtr(in.ExpiryDate),
	}
	if err := checkPolicyDates(p.EffectiveDate, p.ExpiryDate); err != nil {
		return nil, err
	}

	next, err := s.policies.NextPolicyVersion(ctx, p.Code)
	if err != nil {
		return nil, err
	}
	if next > 1 {
		return nil, conflict("A policy with this code already exists; revise it instead", "POLICY_ALREADY_EXISTS")
	}

	created, err := s.policies.CreatePolicy(ctx, p)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &actor, created, "policy.created", "Drafted policy", nil)
	return created, nil
}

func (s *PolicyService) Get(ctx context.Context, id uuid.UUID) (*model.Policy, error) {
	return s.policies.GetPolicyByID(ctx, id)
}

func (s *PolicyService) List(ctx context.Context, f model.PolicyFilter) (*model.PaginatedResponse[model.Policy], error) {
	items, total, err := s.policies.ListPolicies(ctx, f)
	if err != nil {
		return nil, err
	}
	return model.NewPage(items, f.PageQuery, total), nil
}

// Update edits a draft.
func (s *PolicyService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, in model.PolicyPatch) (*model.Policy, error) {
	p, err := s.policies.GetPolicyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PolicyDraft {
		return nil, errNotDraft
	}

	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Body != nil {
		p.Body = *in.Body
	}
	if in.EffectiveDate != nil {
		p.EffectiveDate = datePtr(in.EffectiveDate)
	}
	if in.ExpiryDate != nil {
		p.ExpiryDate = datePtr(in.ExpiryDate)
	}
	if err := checkPolicyDates(p.EffectiveDate, p.ExpiryDate); err != nil {
		return nil, err
	}

	updated, err := s.policies.UpdatePolicyDraft(ctx, p)
	if err != nil {
		if isNotFound(err) {
			return nil, errNotDraft
		}
		return nil, err
	}

	s.record(ctx, &actor, updated, "policy.updated", "Edited policy", nil)
	return updated, nil
}

var errNotDraft = conflict("Only draft policies can be edited", "POLICY_NOT_DRAFT")

// Submit sends a draft for publication approval by HR.
func (s *PolicyService) Submit(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error) {
	var (
		submitted *model.Policy
		req       *model.ApprovalRequest
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		submitted, err = s.transition(ctx, id, model.PolicyPendingApproval, nil, nil)
		if err != nil {
			return err
		}

		req, err = s.approvals.Open(ctx, actor, OpenApprovalInput{
			Kind:         model.ApprovalPolicyPublication,
			SubjectID:    submitted.ID,
			Title:        fmt.Sprintf("Publish %s v%d: %s", submitted.Code, submitted.Version, submitted.Title),
			ApproverRole: PolicyApproverRole,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &actor, submitted, "policy.submitted", "Submitted policy for approval", map[string]any{"approvalRequestId": req.ID})
	s.approvals.Announce(ctx, req)

	return submitted, nil
}

// Archive retires a draft or an active policy. Policies waiting for
// approval must have their request cancelled first.
func (s *PolicyService) Archive(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error) {
	archived, err := s.transition(ctx, id, model.PolicyArchived, nil, nil)
	if err != nil {
		return nil, err
	}
	s.record(ctx, &actor, archived, "policy.archived", "Archived policy", nil)
	return archived, nil
}

// Revise opens a new draft version of an active policy. Only one open
// revision per code may exist.
func (s *PolicyService) Revise(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Policy, error) {
	var draft *model.Policy

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.policies.GetPolicyByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != model.PolicyActive {
			return conflict("Only active policies can be revised", "POLICY_NOT_ACTIVE")
		}

		open, err := s.policies.HasOpenRevision(ctx, current.Code)
		if err != nil {
			return err
		}
		if open {
			return conflict("This policy already has an open revision", "POLICY_REVISION_OPEN")
		}

		next, err := s.policies.NextPolicyVersion(ctx, current.Code)
		if err != nil {
			return err
		}

		draft, err = s.policies.CreatePolicy(ctx, &model.Policy{
			Code:     current.Code,
			Title:    current.Title,
			Category: current.Category,
			Body:     current.Body,
			Version:  next,
			Status:   model.PolicyDraft,
			OwnerID:  actor.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, &actor, draft, "policy.revised", "Started revision", map[string]any{"revisedFrom": id})
	return draft, nil
}

// ApplyDecision moves a policy out of pending_approval once its
// publication request is closed.
func (s *PolicyService) ApplyDecision(ctx context.Context, req *model.ApprovalRequest) error {
	switch req.Status {
	case model.ApprovalApproved:
		now := s.clock.Now()
		today := model.Date(now)

		p, err := s.policies.GetPolicyByID(ctx, req.SubjectID)
		if err != nil {
			return err
		}
		if p.ExpiryDate != nil && !p.ExpiryDate.After(today) {
			return conflict("The policy has already expired; edit its dates first", "POLICY_ALREADY_EXPIRED")
		}
		var effective *time.Time
		if p.EffectiveDate == nil {
			effective = &today
		}

		active, err := s.transition(ctx, p.ID, model.PolicyActive, &now, effective)
		if err != nil {
			return err
		}
		superseded, err := s.policies.ArchiveActiveVersions(ctx, active.Code, active.ID)
		if err != nil {
			return err
		}
		if len(superseded) > 0 {
			loggerFrom(ctx, s.logger).Info().
				Str("code", active.Code).
				Int("superseded", len(superseded)).
				Msg("archived superseded policy versions")
		}
		return nil

	case model.ApprovalRejected, model.ApprovalCancelled:
		_, err := s.transition(ctx, req.SubjectID, model.PolicyDraft, nil, nil)
		return err
	}
	return nil
}

// RecordDecision writes the timeline entry for the policy side of a
// closed publication request.
func (s *PolicyService) RecordDecision(ctx context.Context, actor model.Actor, req *model.ApprovalRequest) {
	p, err := s.policies.GetPolicyByID(ctx, req.SubjectID)
	if err != nil {
		loggerFrom(ctx, s.logger).Warn().Err(err).Str("policy_id", req.SubjectID.String()).Msg("failed to load decided policy")
		return
	}

	meta := map[string]any{"approvalRequestId": req.ID}
	switch req.Status {
	case model.ApprovalApproved:
		s.record(ctx, &actor, p, "policy.published", "Published policy", meta)
	case model.ApprovalRejected:
		s.record(ctx, &actor, p, "policy.rejected", "Returned policy to draft", meta)
	case model.ApprovalCancelled:
		s.record(ctx, &actor, p, "policy.withdrawn", "Withdrew policy from approval", meta)
	}
}

// ExpirePolicies archives active policies whose expiry date is today or
// earlier. It is run by the hourly background sweep.
func (s *PolicyService) ExpirePolicies(ctx context.Context) (int, error) {
	today := model.Date(s.clock.Now())

	expired, err := s.policies.ListExpiredPolicies(ctx, today)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range expired {
		archived, err := s.policies.TransitionPolicy(ctx, p.ID, model.PolicyActive, model.PolicyArchived, nil, nil)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return n, err
		}
		n++
		metrics.PoliciesExpired.Inc()
		s.record(ctx, nil, archived, "policy.expired", "Policy expired", map[string]any{"expiryDate": p.ExpiryDate})
	}
	return n, nil
}

// transition loads the policy and moves it to next if the lifecycle allows.
func (s *PolicyService) transition(ctx context.Context, id uuid.UUID, next model.PolicyStatus, publishedAt, effectiveDate *time.Time) (*model.Policy, error) {
	p, err := s.policies.GetPolicyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(next) {
		return nil, conflict(fmt.Sprintf("A %s policy cannot move to %s", p.Status, next), "POLICY_INVALID_TRANSITION")
	}

	moved, err := s.policies.TransitionPolicy(ctx, id, p.Status, next, publishedAt, effectiveDate)
	if err != nil {
		if isNotFound(err) {
			return nil, conflict("The policy was changed by another request", "POLICY_CONFLICT")
		}
		return nil, err
	}
	return moved, nil
}

func (s *PolicyService) record(ctx context.Context, actor *model.Actor, p *model.Policy, action, verb string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["code"] = p.Code
	meta["version"] = p.Version
	meta["status"] = p.Status

	s.activity.Record(ctx, actor, Entry{
		Action:     action,
		EntityType: model.EntityPolicy,
		EntityID:   p.ID,
		Summary:    fmt.Sprintf("%s %s v%d", verb, p.Code, p.Version),
		Metadata:   meta,
	})
}

func checkPolicyDates(effective, expiry *time.Time) error {
	if effective != nil && expiry != nil && !expiry.After(*effective) {
		return invalid("expiryDate", "must be after the effective date")
	}
	return nil
}
