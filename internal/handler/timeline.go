package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/deppfellow/erm/internal/service"
	"github.com/deppfellow/erm/internal/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// exportLimit caps the rows of one CSV export.
const exportLimit = 5000

type TimelineService interface {
	List(ctx context.Context, in service.ListActivitiesInput) (*model.PaginatedResponse[model.Activity], error)
	ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID, pq model.PageQuery) (*model.PaginatedResponse[model.Activity], error)
}

type TimelineHandler struct {
	Handler
	activity TimelineService
}

func NewTimelineHandler(s *server.Server, activity TimelineService) *TimelineHandler {
	return &TimelineHandler{Handler: NewHandler(s), activity: activity}
}

type ListTimelineRequest struct {
	EntityType string `query:"entityType" validate:"omitempty,max=32"`
	EntityID   string `query:"entityId" validate:"omitempty,uuid"`
	ActorID    string `query:"actorId" validate:"omitempty,uuid"`
	Action     string `query:"action" validate:"omitempty,max=64"`
	From       string `query:"from"`
	To         string `query:"to"`
	model.PageQuery
}

func (r *ListTimelineRequest) Validate() error { return validation.Struct(r) }

func (r *ListTimelineRequest) input() (service.ListActivitiesInput, error) {
	in := service.ListActivitiesInput{
		EntityType: optionalString(r.EntityType),
		Action:     optionalString(r.Action),
		PageQuery:  r.PageQuery,
	}
	var err error
	if in.EntityID, err = optionalID("entityId", r.EntityID); err != nil {
		return in, err
	}
	if in.ActorID, err = optionalID("actorId", r.ActorID); err != nil {
		return in, err
	}
	if in.From, err = optionalTime("from", r.From); err != nil {
		return in, err
	}
	if in.To, err = optionalTime("to", r.To); err != nil {
		return in, err
	}
	return in, nil
}

func (h *TimelineHandler) List(c echo.Context, req *ListTimelineRequest) (*model.PaginatedResponse[model.Activity], error) {
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return h.activity.List(c.Request().Context(), in)
}

type EntityTimelineRequest struct {
	EntityType string `param:"entityType" json:"-" validate:"required,max=32"`
	EntityID   string `param:"entityId" json:"-" validate:"required,uuid"`
	model.PageQuery
}

func (r *EntityTimelineRequest) Validate() error { return validation.Struct(r) }

func (h *TimelineHandler) ListForEntity(c echo.Context, req *EntityTimelineRequest) (*model.PaginatedResponse[model.Activity], error) {
	id, err := parseID("entityId", req.EntityID)
	if err != nil {
		return nil, err
	}
	return h.activity.ListForEntity(c.Request().Context(), req.EntityType, id, req.PageQuery)
}

// Export writes the filtered timeline as CSV, newest first.
func (h *TimelineHandler) Export(c echo.Context, req *ListTimelineRequest) ([]byte, error) {
	in, err := req.input()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"created_at", "actor_id", "action", "entity_type", "entity_id", "summary", "metadata"})

	in.Page, in.Limit = 1, model.MaxPageSize
	for rows := 0; rows < exportLimit; in.Page++ {
		page, err := h.activity.List(c.Request().Context(), in)
		if err != nil {
			return nil, err
		}
		for _, a := range page.Data {
			meta, err := json.Marshal(a.Metadata)
			if err != nil {
				return nil, err
			}
			_ = w.Write([]string{
				a.CreatedAt.UTC().Format(time.RFC3339),
				uuidString(a.ActorID),
				a.Action,
				a.EntityType,
				uuidString(a.EntityID),
				a.Summary,
				string(meta),
			})
		}
		rows += len(page.Data)
		if in.Page >= page.TotalPages {
			break
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
