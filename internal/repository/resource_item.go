package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ResourceItemRepository struct {
	*db
}

// itemArgs binds an item. purchase_cost travels as text and is cast to
// NUMERIC in SQL to keep its exact decimal value.
func itemArgs(i *model.ResourceItem) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":               i.ID,
		"resource_type_id": i.ResourceTypeID,
		"name":             i.Name,
		"status":           i.Status,
		"assigned_to":      i.AssignedTo,
		"properties":       i.Properties,
		"schema_version":   i.SchemaVersion,
		"serial_number":    i.SerialNumber,
		"location":         i.Location,
		"purchase_date":    i.PurchaseDate,
		"purchase_cost":    i.Legacy().CostText(),
	}
}

func (r *ResourceItemRepository) CreateResourceItem(ctx context.Context, i *model.ResourceItem) (*model.ResourceItem, error) {
	stmt := `
		INSERT INTO resource_items (
			resource_type_id, name, status, assigned_to, properties, schema_version,
			serial_number, location, purchase_date, purchase_cost
		) VALUES (
			@resource_type_id, @name, @status, @assigned_to, @properties, @schema_version,
			@serial_number, @location, @purchase_date, @purchase_cost::text::numeric
		)
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, itemArgs(i))
	return one[model.ResourceItem](rows, err, "resource_items", "insert")
}

func (r *ResourceItemRepository) GetResourceItemByID(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM resource_items WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.ResourceItem](rows, err, "resource_items", "get")
}

func (r *ResourceItemRepository) GetResourceItemForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceItem, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM resource_items WHERE id = @id FOR UPDATE`, pgx.NamedArgs{"id": id})
	return one[model.ResourceItem](rows, err, "resource_items", "lock")
}

func (r *ResourceItemRepository) ListResourceItems(ctx context.Context, f model.ResourceItemFilter) ([]model.ResourceItem, int, error) {
	w := newWhere()
	if f.ResourceTypeID != nil {
		w.add("resource_type_id = @resource_type_id", "resource_type_id", *f.ResourceTypeID)
	}
	if f.Status != nil {
		w.add("status = @status", "status", *f.Status)
	}
	if f.AssignedTo != nil {
		w.add("assigned_to = @assigned_to", "assigned_to", *f.AssignedTo)
	}
	if f.Search != nil {
		w.searchWith(*f.Search, []string{"name", "serial_number"}, propertyValueMatch)
	}
	return list[model.ResourceItem](ctx, r.q(ctx), "resource_items", w, "name, id", f.PageQuery)
}

// UpdateResourceItem writes every mutable column of i.
func (r *ResourceItemRepository) UpdateResourceItem(ctx context.Context, i *model.ResourceItem) (*model.ResourceItem, error) {
	stmt := `
		UPDATE resource_items SET
			name           = @name,
			status         = @status,
			assigned_to    = @assigned_to,
			properties     = @properties,
			schema_version = @schema_version,
			serial_number  = @serial_number,
			location       = @location,
			purchase_date  = @purchase_date,
			purchase_cost  = @purchase_cost::text::numeric
		WHERE id = @id
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, itemArgs(i))
	return one[model.ResourceItem](rows, err, "resource_items", "update")
}

func (r *ResourceItemRepository) DeleteResourceItem(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM resource_items WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete resource item: %w", err)
	}
	return affected(tag.RowsAffected(), "resource_items")
}

func (r *ResourceItemRepository) CountResourceItemsByType(ctx context.Context, typeID uuid.UUID) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM resource_items WHERE resource_type_id = @id`, pgx.NamedArgs{"id": typeID}).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count resource items: %w", err)
	}
	return n, nil
}

// ReleaseResourceItems returns every item assigned to employeeID to the
// available pool.
func (r *ResourceItemRepository) ReleaseResourceItems(ctx context.Context, employeeID uuid.UUID) ([]model.ResourceItem, error) {
	rows, err := r.q(ctx).Query(ctx,
		`UPDATE resource_items SET status = 'available', assigned_to = NULL WHERE assigned_to = @employee_id RETURNING *`,
		pgx.NamedArgs{"employee_id": employeeID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release resource items: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ResourceItem])
	if err != nil {
		return nil, fmt.Errorf("failed to collect released items: %w", err)
	}
	return items, nil
}
