package repository

import (
	"context"

	"github.com/deppfellow/erm/internal/model"
	"github.com/jackc/pgx/v5"
)

type ActivityRepository struct {
	*db
}

func (r *ActivityRepository) CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	stmt := `
		INSERT INTO activities (actor_id, action, entity_type, entity_id, summary, metadata)
		VALUES (@actor_id, @action, @entity_type, @entity_id, @summary, @metadata)
		RETURNING *
	`
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	rows, err := r.q(ctx).Query(ctx, stmt, pgx.NamedArgs{
		"actor_id":    a.ActorID,
		"action":      a.Action,
		"entity_type": a.EntityType,
		"entity_id":   a.EntityID,
		"summary":     a.Summary,
		"metadata":    metadata,
	})
	return one[model.Activity](rows, err, "activities", "insert")
}

// ListActivities returns newest entries first.
func (r *ActivityRepository) ListActivities(ctx context.Context, f model.ActivityFilter) ([]model.Activity, int, error) {
	w := newWhere()
	if f.EntityType != nil {
		w.add("entity_type = @entity_type", "entity_type", *f.EntityType)
	}
	if f.EntityID != nil {
		w.add("entity_id = @entity_id", "entity_id", *f.EntityID)
	}
	if f.ActorID != nil {
		w.add("actor_id = @actor_id", "actor_id", *f.ActorID)
	}
	if f.Action != nil {
		w.add("action = @action", "action", *f.Action)
	}
	if f.From != nil {
		w.add("created_at >= @from", "from", *f.From)
	}
	if f.To != nil {
		w.add("created_at < @to", "to", *f.To)
	}
	return list[model.Activity](ctx, r.q(ctx), "activities", w, "created_at DESC, id", f.PageQuery)
}
