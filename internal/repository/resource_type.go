package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ResourceTypeRepository struct {
	*db
}

func (r *ResourceTypeRepository) CreateResourceType(ctx context.Context, rt *model.ResourceType) (*model.ResourceType, error) {
	stmt := `
		INSERT INTO resource_types (name, slug, description, schema)
		VALUES (@name, @slug, @description, @schema)
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"name":        rt.Name,
		"slug":        rt.Slug,
		"description": rt.Description,
		"schema":      rt.Schema,
	})
	return one[model.ResourceType](rows, err, "resource_types", "insert")
}

func (r *ResourceTypeRepository) GetResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM resource_types WHERE id = @id`, pgx.NamedArgs{"id": id})
	return one[model.ResourceType](rows, err, "resource_types", "get")
}

// GetResourceTypeForUpdate locks the row until the surrounding transaction
// ends. Schema changes and first-item creation both take this lock.
func (r *ResourceTypeRepository) GetResourceTypeForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM resource_types WHERE id = @id FOR UPDATE`, pgx.NamedArgs{"id": id})
	return one[model.ResourceType](rows, err, "resource_types", "lock")
}

func (r *ResourceTypeRepository) ListResourceTypes(ctx context.Context) ([]model.ResourceType, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT * FROM resource_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource types: %w", err)
	}
	types, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ResourceType])
	if err != nil {
		return nil, fmt.Errorf("failed to collect resource types: %w", err)
	}
	return types, nil
}

func (r *ResourceTypeRepository) UpdateResourceType(ctx context.Context, rt *model.ResourceType) (*model.ResourceType, error) {
	stmt := `
		UPDATE resource_types SET
			name           = @name,
			slug           = @slug,
			description    = @description,
			schema         = @schema,
			schema_version = @schema_version
		WHERE id = @id
		RETURNING *
	`
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"id":             rt.ID,
		"name":           rt.Name,
		"slug":           rt.Slug,
		"description":    rt.Description,
		"schema":         rt.Schema,
		"schema_version": rt.SchemaVersion,
	})
	return one[model.ResourceType](rows, err, "resource_types", "update")
}

// LockResourceTypeSchema marks the schema locked. It reports whether this
// call changed the flag.
func (r *ResourceTypeRepository) LockResourceTypeSchema(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.q(ctx).Exec(ctx, `UPDATE resource_types SET schema_locked = TRUE WHERE id = @id AND NOT schema_locked`, pgx.NamedArgs{"id": id})
	if err != nil {
		return false, fmt.Errorf("failed to lock resource type schema: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ResourceTypeRepository) DeleteResourceType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM resource_types WHERE id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete resource type: %w", err)
	}
	return affected(tag.RowsAffected(), "resource_types")
}
