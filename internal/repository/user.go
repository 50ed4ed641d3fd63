package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	*db
}

func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	stmt := `
		INSERT INTO users (email, password_hash, full_name, role, employee_id, active)
		VALUES (@email, @password_hash, @full_name, @role, @employee_id, @active)
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"full_name":     u.FullName,
		"role":          u.Role,
		"employee_id":   u.EmployeeID,
		"active":        u.Active,
	})
	return one[model.User](rows, err, "users", "insert")
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM users WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.User](rows, err, "users", "get")
}

// GetUserByEmail matches case-insensitively.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM users WHERE LOWER(email) = LOWER(@email)`, pgx.NamedArgs{"email": email})
	return one[model.User](rows, err, "users", "get")
}

func (r *UserRepository) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	w := newWhere()
	if f.Role != nil {
		w.add("role = @role", "role", *f.Role)
	}
	if f.Active != nil {
		w.add("active = @active", "active", *f.Active)
	}
	return list[model.User](ctx, r.q(ctx), "users", w, "created_at DESC", f.PageQuery)
}

// ListActiveUsersByRole returns the active accounts holding role.
func (r *UserRepository) ListActiveUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM users WHERE role = @role AND active ORDER BY email`, pgx.NamedArgs{"role": role})
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.User])
	if err != nil {
		return nil, fmt.Errorf("failed to collect users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	stmt := `
		UPDATE users SET
			full_name   = COALESCE(@full_name, full_name),
			role        = COALESCE(@role, role),
			active      = COALESCE(@active, active),
			employee_id = CASE WHEN @clear_employee THEN NULL ELSE COALESCE(@employee_id, employee_id) END
		WHERE id = @id
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"id":             id,
		"full_name":      p.FullName,
		"role":           p.Role,
		"active":         p.Active,
		"employee_id":    p.EmployeeID,
		"clear_employee": p.ClearEmployee,
	})
	return one[model.User](rows, err, "users", "update")
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE users SET last_login_at = @at WHERE id = @id`, pgx.NamedArgs{"id": id, "at": at})
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return affected(tag.RowsAffected(), "users")
}
