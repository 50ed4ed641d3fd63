package service

import (
	"context"
	"time"

	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ActivityStore interface {
	CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error)
	ListActivities(ctx context.Context, f model.ActivityFilter) ([]model.Activity, int, error)
}

// Recorder appends timeline entries.
type Recorder interface {
	Record(ctx context.Context, actor *model.Actor, e Entry)
}

// Entry is one timeline row before it is written.
type Entry struct {
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Summary    string
	Metadata   map[string]any
}

type ActivityService struct {
	store  ActivityStore
	logger *zerolog.Logger
}

func NewActivityService(store ActivityStore, logger *zerolog.Logger) *ActivityService {
	return &ActivityService{store: store, logger: logger}
}

// Record writes e. It never fails the caller: errors are logged and
// counted. Callers record after their transaction has committed, so ctx
// must not carry one.
func (s *ActivityService) Record(ctx context.Context, actor *model.Actor, e Entry) {
	a := &model.Activity{
		Action:     e.Action,
		EntityType: e.EntityType,
		Summary:    e.Summary,
		Metadata:   e.Metadata,
	}
	if e.EntityID != uuid.Nil {
		id := e.EntityID
		a.EntityID = &id
	}
	if actor != nil {
		id := actor.ID
		a.ActorID = &id
	}

	if _, err := s.store.CreateActivity(ctx, a); err != nil {
		metrics.ActivityWriteFailures.Inc()
		loggerFrom(ctx, s.logger).Error().
			Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID.String()).
			Msg("failed to write timeline entry")
	}
}

type ListActivitiesInput struct {
	EntityType *string
	EntityID   *uuid.UUID
	ActorID    *uuid.UUID
	Action     *string
	From       *time.Time
	To         *time.Time
	model.PageQuery
}

func (s *ActivityService) List(ctx context.Context, in ListActivitiesInput) (*model.PaginatedResponse[model.Activity], error) {
	if in.EntityType != nil && !validEntityType(*in.EntityType) {
		return nil, invalid("entityType", "is not a known entity type")
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		return nil, invalid("to", "must be after from")
	}

	f := model.ActivityFilter{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		ActorID:    in.ActorID,
		Action:     in.Action,
		From:       in.From,
		To:         in.To,
		PageQuery:  in.PageQuery,
	}
	items, total, err := s.store.ListActivities(ctx, f)
	if err != nil {
		return nil, err
	}
	return model.NewPage(items, in.PageQuery, total), nil
}

// ListForEntity returns the history of one record, newest first.
func (s *ActivityService) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID, pq model.PageQuery) (*model.PaginatedResponse[model.Activity], error) {
	return s.List(ctx, ListActivitiesInput{EntityType: &entityType, EntityID: &entityID, PageQuery: pq})
}

func validEntityType(t string) bool {
	for _, known := range model.EntityTypes {
		if known == t {
			return true
		}
	}
	return false
}
