package handler

import (
	"strings"
	"time"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/middleware"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
)

const dateLayout = "2006-01-02"

// IDRequest is the payload of routes that only take an :id.
type IDRequest struct {
	ID string `param:"id" json:"-" validate:"required,uuid"`
}

func (r *IDRequest) Validate() error { return validation.Struct(r) }

// EmptyRequest is the payload of routes without input.
type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error { return nil }

func actorFrom(c echo.Context) (model.Actor, error) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return model.Actor{}, errs.NewUnauthorizedError("Unauthorized", false)
	}
	return actor, nil
}

func fieldError(field, msg string) error {
	return errs.NewBadRequestError("Validation failed", true, nil, []errs.FieldError{{Field: field, Error: msg}}, nil)
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fieldError(field, "must be a valid UUID")
	}
	return id, nil
}

func optionalID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := parseID(field, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalEnum[T ~string](s string) *T {
	if s == "" {
		return nil
	}
	v := T(s)
	return &v
}

func optionalBool(field, s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := cast.ToBoolE(s)
	if err != nil {
		return nil, fieldError(field, "must be true or false")
	}
	return &b, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fieldError(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func optionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// optionalTime accepts RFC 3339 timestamps and plain dates.
func optionalTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, fieldError(field, "must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	return &t, nil
}
