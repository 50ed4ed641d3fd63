package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PolicyRepository struct {
	*db
}

func (r *PolicyRepository) CreatePolicy(ctx context.Context, p *model.Policy) (*model.Policy, error) {
	stmt := `
		INSERT INTO policies (code, title, category, body, version, status, owner_id, effective_date, expiry_date)
		VALUES (@code, @title, @category, @body, @version, @status, @owner_id, @effective_date, @expiry_date)
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"code":           p.Code,
		"title":          p.Title,
		"category":       p.Category,
		"body":           p.Body,
		"version":        p.Version,
		"status":         p.Status,
		"owner_id":       p.OwnerID,
		"effective_date": p.EffectiveDate,
		"expiry_date":    p.ExpiryDate,
	})
	return one[model.Policy](rows, err, "policies", "insert")
}

func (r *PolicyRepository) GetPolicyByID(ctx context.Context, id uuid.UUID) (*model.Policy, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM policies WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.Policy](rows, err, "policies", "get")
}

func (r *PolicyRepository) ListPolicies(ctx context.Context, f model.PolicyFilter) ([]model.Policy, int, error) {
	w := newWhere()
	if f.Status != nil {
		w.add("status = @status", "status", *f.Status)
	}
	if f.Category != nil {
		w.add("category = @category", "category", *f.Category)
	}
	if f.Code != nil {
		w.add("code = @code", "code", *f.Code)
	}
	if f.Search != nil {
		w.search(*f.Search, "code", "title", "category")
	}
	return list[model.Policy](ctx, r.q(ctx), "policies", w, "code, version DESC", f.PageQuery)
}

// UpdatePolicyDraft writes the editable fields. Only rows still in draft
// are touched; otherwise a not-found error is returned.
func (r *PolicyRepository) UpdatePolicyDraft(ctx context.Context, p *model.Policy) (*model.Policy, error) {
	stmt := `
		UPDATE policies SET
			title          = @title,
			category       = @category,
			body           = @body,
			effective_date = @effective_date,
			expiry_date    = @expiry_date
		WHERE id = @id AND status = 'draft'
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"id":             p.ID,
		"title":          p.Title,
		"category":       p.Category,
		"body":           p.Body,
		"effective_date": p.EffectiveDate,
		"expiry_date":    p.ExpiryDate,
	})
	return one[model.Policy](rows, err, "policies", "update")
}

// TransitionPolicy moves a policy from one status to another. The update
// only applies while the row is still in from, so concurrent transitions
// cannot both succeed.
func (r *PolicyRepository) TransitionPolicy(ctx context.Context, id uuid.UUID, from, to model.PolicyStatus, publishedAt, effectiveDate *time.Time) (*model.Policy, error) {
	stmt := `
		UPDATE policies SET
			status         = @to,
			published_at   = COALESCE(@published_at, published_at),
			effective_date = COALESCE(@effective_date, effective_date)
		WHERE id = @id AND status = @from
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"id":             id,
		"from":           from,
		"to":             to,
		"published_at":   publishedAt,
		"effective_date": effectiveDate,
	})
	return one[model.Policy](rows, err, "policies", "transition")
}

// NextPolicyVersion returns the version number a new revision of code gets.
func (r *PolicyRepository) NextPolicyVersion(ctx context.Context, code string) (int, error) {
	var next int
	err := r.q(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM policies WHERE code = @code`, pgx.NamedArgs{"code": code}).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next policy version: %w", err)
	}
	return next, nil
}

// HasOpenRevision reports whether code already has a draft or a revision
// waiting for approval.
func (r *PolicyRepository) HasOpenRevision(ctx context.Context, code string) (bool, error) {
	var open bool
	err := r.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM policies WHERE code = @code AND status IN ('draft', 'pending_approval'))`,
		pgx.NamedArgs{"code": code},
	).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("failed to check open revisions: %w", err)
	}
	return open, nil
}

// ListExpiredPolicies returns active policies whose expiry date is on or
// before asOf.
func (r *PolicyRepository) ListExpiredPolicies(ctx context.Context, asOf time.Time) ([]model.Policy, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT * FROM policies WHERE status = 'active' AND expiry_date IS NOT NULL AND expiry_date <= @as_of ORDER BY expiry_date`,
		pgx.NamedArgs{"as_of": asOf},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired policies: %w", err)
	}
	policies, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Policy])
	if err != nil {
		return nil, fmt.Errorf("failed to collect policies: %w", err)
	}
	return policies, nil
}

// ArchiveActiveVersions archives the active versions of code other than
// keep. Publishing a revision supersedes the version before it.
func (r *PolicyRepository) ArchiveActiveVersions(ctx context.Context, code string, keep uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.q(ctx).Query(ctx,
		`UPDATE policies SET status = 'archived' WHERE code = @code AND status = 'active' AND id <> @keep RETURNING id`,
		pgx.NamedArgs{"code": code, "keep": keep},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to archive superseded policies: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect archived policies: %w", err)
	}
	return ids, nil
}
