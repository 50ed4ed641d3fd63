package repository

import (
	"context"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ApprovalRepository struct {
	*db
}

func (r *ApprovalRepository) CreateApproval(ctx context.Context, a *model.ApprovalRequest) (*model.ApprovalRequest, error) {
	stmt := `
		INSERT INTO approval_requests (kind, subject_id, title, requested_by, approver_role, approver_id, payload)
		VALUES (@kind, @subject_id, @title, @requested_by, @approver_role, @approver_id, @payload)
		RETURNING *
	`
	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"kind":          a.Kind,
		"subject_id":    a.SubjectID,
		"title":         a.Title,
		"requested_by":  a.RequestedBy,
		"approver_role": a.ApproverRole,
		"approver_id":   a.ApproverID,
		"payload":       payload,
	})
	return one[model.ApprovalRequest](rows, err, "approval_requests", "insert")
}

func (r *ApprovalRepository) GetApprovalByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM approval_requests WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.ApprovalRequest](rows, err, "approval_requests", "get")
}

func (r *ApprovalRepository) GetApprovalForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM approval_requests WHERE id = @id FOR UPDATE`, pgx.NamedArgs{"id": id})
	return one[model.ApprovalRequest](rows, err, "approval_requests", "lock")
}

// GetPendingApproval returns the open request for a subject, if any.
func (r *ApprovalRepository) GetPendingApproval(ctx context.Context, kind model.ApprovalKind, subjectID uuid.UUID) (*model.ApprovalRequest, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT * FROM approval_requests WHERE kind = @kind AND subject_id = @subject_id AND status = 'pending'`,
		pgx.NamedArgs{"kind": kind, "subject_id": subjectID},
	)
	return one[model.ApprovalRequest](rows, err, "approval_requests", "get")
}

func (r *ApprovalRepository) ListApprovals(ctx context.Context, f model.ApprovalFilter) ([]model.ApprovalRequest, int, error) {
	w := newWhere()
	if f.Status != nil {
		w.add("status = @status", "status", *f.Status)
	}
	if f.Kind != nil {
		w.add("kind = @kind", "kind", *f.Kind)
	}

	var scope []string
	if f.RequestedBy != nil {
		scope = append(scope, "requested_by = @requested_by")
		w.args["requested_by"] = *f.RequestedBy
	}
	if f.AssignedTo != nil {
		scope = append(scope, "(approver_id = @assignee_id OR (approver_id IS NULL AND approver_role = @assignee_role))")
		w.args["assignee_id"] = f.AssignedTo.ID
		w.args["assignee_role"] = f.AssignedTo.Role
	}
	switch len(scope) {
	case 1:
		w.clauses = append(w.clauses, scope[0])
	case 2:
		w.clauses = append(w.clauses, "("+scope[0]+" OR "+scope[1]+")")
	}

	return list[model.ApprovalRequest](ctx, r.q(ctx), "approval_requests", w, "created_at DESC, id", f.PageQuery)
}

// CloseApproval records the final status of a pending request. Requests
// that are no longer pending are reported as not found.
func (r *ApprovalRepository) CloseApproval(ctx context.Context, id uuid.UUID, status model.ApprovalStatus, comment *string, decidedBy uuid.UUID, at time.Time) (*model.ApprovalRequest, error) {
	stmt := `
		UPDATE approval_requests SET
			status           = @status,
			decision_comment = @comment,
			decided_by       = @decided_by,
			decided_at       = @decided_at
		WHERE id = @id AND status = 'pending'
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"id":         id,
		"status":     status,
		"comment":    comment,
		"decided_by": decidedBy,
		"decided_at": at,
	})
	return one[model.ApprovalRequest](rows, err, "approval_requests", "close")
}
