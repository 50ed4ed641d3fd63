package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ResourceTypeStore interface {
	CreateResourceType(ctx context.Context, rt *model.ResourceType) (*model.ResourceType, error)
	GetResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
	GetResourceTypeForUpdate(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
	ListResourceTypes(ctx context.Context) ([]model.ResourceType, error)
	UpdateResourceType(ctx context.Context, rt *model.ResourceType) (*model.ResourceType, error)
	LockResourceTypeSchema(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteResourceType(ctx context.Context, id uuid.UUID) error
}

// ResourceTypeCache serves resource types for reads. Writes go to the
// store and invalidate the cached copy.
type ResourceTypeCache interface {
	GetResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
	Invalidate(ctx context.Context, id uuid.UUID) error
}

type AccountLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// ResourceService manages resource types, their property schemas and the
// items stored under them.
type ResourceService struct {
	tx        TxRunner
	types     ResourceTypeStore
	cache     ResourceTypeCache
	items     ResourceItemStore
	employees EmployeeLookup
	users     AccountLookup
	approvals Opener
	activity  Recorder
	logger    *zerolog.Logger
}

type ResourceDeps struct {
	Tx        TxRunner
	Types     ResourceTypeStore
	Cache     ResourceTypeCache
	Items     ResourceItemStore
	Employees EmployeeLookup
	Users     AccountLookup
	Approvals Opener
	Activity  Recorder
	Logger    *zerolog.Logger
}

func NewResourceService(d ResourceDeps) *ResourceService {
	return &ResourceService{
		tx:        d.Tx,
		types:     d.Types,
		cache:     d.Cache,
		items:     d.Items,
		employees: d.Employees,
		users:     d.Users,
		approvals: d.Approvals,
		activity:  d.Activity,
		logger:    d.Logger,
	}
}

type CreateResourceTypeInput struct {
	Name        string
	Slug        string
	Description string
	Schema      schema.Schema
}

func (s *ResourceService) CreateType(ctx context.Context, actor model.Actor, in CreateResourceTypeInput) (*model.ResourceType, error) {
	sch, err := prepareSchema(in.Schema)
	if err != nil {
		return nil, err
	}

	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(in.Name)
	}
	if slug == "" {
		return nil, invalid("slug", "is required")
	}

	rt, err := s.types.CreateResourceType(ctx, &model.ResourceType{
		Name:        strings.TrimSpace(in.Name),
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		Schema:      sch,
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_type.created",
		EntityType: model.EntityResourceType,
		EntityID:   rt.ID,
		Summary:    "Created resource type " + rt.Name,
		Metadata:   map[string]any{"slug": rt.Slug, "properties": len(rt.Schema)},
	})
	return rt, nil
}

func (s *ResourceService) GetType(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	return s.cache.GetResourceTypeByID(ctx, id)
}

func (s *ResourceService) ListTypes(ctx context.Context) ([]model.ResourceType, error) {
	types, err := s.types.ListResourceTypes(ctx)
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []model.ResourceType{}
	}
	return types, nil
}

type UpdateResourceTypeInput struct {
	Name        *string
	Slug        *string
	Description *string
	Schema      *schema.Schema
}

// UpdateType edits a resource type. A locked schema only accepts
// compatible changes; every schema change bumps the schema version.
func (s *ResourceService) UpdateType(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateResourceTypeInput) (*model.ResourceType, error) {
	var (
		updated       *model.ResourceType
		schemaChanged bool
	)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rt, err := s.types.GetResourceTypeForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			rt.Name = strings.TrimSpace(*in.Name)
		}
		if in.Slug != nil {
			rt.Slug = strings.TrimSpace(*in.Slug)
		}
		if in.Description != nil {
			rt.Description = strings.TrimSpace(*in.Description)
		}

		if in.Schema != nil {
			next, err := prepareSchema(*in.Schema)
			if err != nil {
				return err
			}
			if err := schema.CheckEvolution(rt.Schema, next, rt.SchemaLocked); err != nil {
				var fe schema.FieldErrors
				if errors.As(err, &fe) {
					e := conflict("The schema change is not compatible with existing items", "SCHEMA_LOCKED")
					e.Errors = schemaFieldErrors(fe, "schema")
					return e
				}
				return err
			}
			if schema.Changed(rt.Schema, next) {
				rt.Schema = next
				rt.SchemaVersion++
				schemaChanged = true
			}
		}

		updated, err = s.types.UpdateResourceType(ctx, rt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_type.updated",
		EntityType: model.EntityResourceType,
		EntityID:   updated.ID,
		Summary:    "Updated resource type " + updated.Name,
		Metadata:   map[string]any{"schemaChanged": schemaChanged, "schemaVersion": updated.SchemaVersion},
	})
	return updated, nil
}

// DeleteType removes a resource type that has no items.
func (s *ResourceService) DeleteType(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	var rt *model.ResourceType

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rt, err = s.types.GetResourceTypeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		n, err := s.items.CountResourceItemsByType(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return conflict("Resource type still has items", "RESOURCE_TYPE_IN_USE")
		}
		return s.types.DeleteResourceType(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.activity.Record(ctx, &actor, Entry{
		Action:     "resource_type.deleted",
		EntityType: model.EntityResourceType,
		EntityID:   rt.ID,
		Summary:    "Deleted resource type " + rt.Name,
	})
	return nil
}

func (s *ResourceService) invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		loggerFrom(ctx, s.logger).Warn().Err(err).Str("resource_type_id", id.String()).Msg("failed to invalidate cached resource type")
	}
}

func prepareSchema(in schema.Schema) (schema.Schema, error) {
	if in == nil {
		in = schema.Schema{}
	}
	sch, err := in.Normalize()
	if err != nil {
		return nil, schemaError(err, "schema")
	}
	if err := sch.Validate(); err != nil {
		return nil, schemaError(err, "schema")
	}
	return sch, nil
}

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a display name.
func Slugify(name string) string {
	return strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
