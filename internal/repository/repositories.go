package repository

import (
	"context"

	"github.com/deppfellow/erm/internal/server"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups every repository around the shared pool.
type Repositories struct {
	pool *pgxpool.Pool

	Users         *UserRepository
	Employees     *EmployeeRepository
	Policies      *PolicyRepository
	ResourceTypes *ResourceTypeRepository
	ResourceItems *ResourceItemRepository
	Approvals     *ApprovalRepository
	Activities    *ActivityRepository
}

func NewRepositories(s *server.Server) *Repositories {
	db := &db{pool: s.DB.Pool}

	return &Repositories{
		pool:          s.DB.Pool,
		Users:         &UserRepository{db},
		Employees:     &EmployeeRepository{db},
		Policies:      &PolicyRepository{db},
		ResourceTypes: &ResourceTypeRepository{db},
		ResourceItems: &ResourceItemRepository{db},
		Approvals:     &ApprovalRepository{db},
		Activities:    &ActivityRepository{db},
	}
}

// InTx runs fn inside a transaction. Repositories called with the context
// passed to fn join it. Nested calls reuse the outer transaction.
func (r *Repositories) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

type txKey struct{}

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type db struct {
	pool *pgxpool.Pool
}

// q returns the transaction carried by ctx, or the pool.
func (d *db) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.pool
}
