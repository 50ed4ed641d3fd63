package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const resourceTypeTTL = time.Hour

// ResourceTypeLoader reads resource types from the primary store.
type ResourceTypeLoader interface {
	GetResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
}

// ResourceTypes is a read-through cache: Redis first, then the loader.
// Redis failures are logged and fall through to the loader.
type ResourceTypes struct {
	rdb    redis.Cmdable
	loader ResourceTypeLoader
	logger *zerolog.Logger
	ttl    time.Duration
}

func NewResourceTypes(rdb redis.Cmdable, loader ResourceTypeLoader, logger *zerolog.Logger) *ResourceTypes {
	return &ResourceTypes{
		rdb:    rdb,
		loader: loader,
		logger: logger,
		ttl:    resourceTypeTTL,
	}
}

func resourceTypeKey(id uuid.UUID) string {
	return key("resource_type", id.String())
}

func (c *ResourceTypes) GetResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	k := resourceTypeKey(id)

	data, err := c.rdb.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var rt model.ResourceType
		if err := json.Unmarshal(data, &rt); err == nil {
			metrics.ResourceTypeLookups.WithLabelValues("redis").Inc()
			return &rt, nil
		}
		c.logger.Warn().Err(err).Str("resource_type_id", id.String()).Msg("discarding undecodable cached resource type")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("resource_type_id", id.String()).Msg("resource type cache read failed")
	}

	rt, err := c.loader.GetResourceTypeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.ResourceTypeLookups.WithLabelValues("postgres").Inc()

	if encoded, err := json.Marshal(rt); err == nil {
		if err := c.rdb.Set(ctx, k, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("resource_type_id", id.String()).Msg("resource type cache write failed")
		}
	}

	return rt, nil
}

// Invalidate drops the cached copy of a resource type.
func (c *ResourceTypes) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, resourceTypeKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidating resource type cache: %w", err)
	}
	return nil
}
