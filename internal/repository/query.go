package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/sqlerr"
	"github.com/jackc/pgx/v5"
)

// where accumulates filter clauses and their named arguments.
type where struct {
	clauses []string
	args    pgx.NamedArgs
}

func newWhere() *where {
	return &where{args: pgx.NamedArgs{}}
}

// add appends clause, binding value to @name.
func (w *where) add(clause, name string, value any) {
	w.clauses = append(w.clauses, clause)
	w.args[name] = value
}

// search adds an ILIKE match of term over columns.
func (w *where) search(term string, columns ...string) {
	w.searchWith(term, columns)
}

// searchWith is search with extra predicates that reference @search
// themselves, such as matches inside JSON documents.
func (w *where) searchWith(term string, columns []string, predicates ...string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	parts := make([]string, 0, len(columns)+len(predicates))
	for _, c := range columns {
		parts = append(parts, c+" ILIKE @search")
	}
	parts = append(parts, predicates...)
	w.add("("+strings.Join(parts, " OR ")+")", "search", "%"+escapeLike(term)+"%")
}

// propertyValueMatch matches @search against the values of the top-level
// keys of a JSONB properties column, never the keys themselves.
const propertyValueMatch = "EXISTS (SELECT 1 FROM jsonb_each_text(properties) AS prop WHERE prop.value ILIKE @search)"

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page returns the args extended with limit and offset.
func (w *where) page(q model.PageQuery) pgx.NamedArgs {
	q = q.Normalize()
	args := make(pgx.NamedArgs, len(w.args)+2)
	for k, v := range w.args {
		args[k] = v
	}
	args["limit"] = q.Limit
	args["offset"] = q.Offset()
	return args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// list runs the count and page queries of a filtered listing.
func list[T any](ctx context.Context, q querier, table string, w *where, order string, pq model.PageQuery) ([]T, int, error) {
	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+w.String(), w.args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	sql := "SELECT * FROM " + table + w.String() + " ORDER BY " + order + " LIMIT @limit OFFSET @offset"
	rows, err := q.Query(ctx, sql, w.page(pq))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", table, err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to collect %s: %w", table, err)
	}
	return items, total, nil
}

// one collects a single row. A missing row is reported with the table name
// so that it renders as "<Entity> not found".
func one[T any](rows pgx.Rows, err error, table, op string) (*T, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", op, table, err)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s%s: %w", sqlerr.TablePrefix, table, err)
		}
		return nil, fmt.Errorf("failed to %s %s: %w", op, table, err)
	}
	return &item, nil
}

// affected turns a zero row count into a not-found error.
func affected(rowsAffected int64, table string) error {
	if rowsAffected == 0 {
		return fmt.Errorf("%s%s: %w", sqlerr.TablePrefix, table, pgx.ErrNoRows)
	}
	return nil
}
