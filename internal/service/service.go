// Package service contains the business logic.
//
// It sits between the handler and repository layers. It receives validated
// data from the handler, enforces the domain rules and calls repository
// methods to read and write data. Each service declares the store methods
// it needs as a small interface so it can be tested without a database.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/schema"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TxRunner runs fn in a database transaction. Stores called with the
// context handed to fn take part in it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskEnqueuer pushes background tasks.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// loggerFrom returns the request logger carried by ctx, or fallback.
func loggerFrom(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// invalid reports a single field problem as a 400.
func invalid(field, message string) *errs.HTTPError {
	return errs.NewBadRequestError("Validation failed", true, nil, []errs.FieldError{{Field: field, Error: message}}, nil)
}

func conflict(message, code string) *errs.HTTPError {
	return errs.NewConflictError(message, true, errs.Code(code))
}

// schemaError turns schema.FieldErrors into a 400 listing every key under
// prefix. Other errors are returned unchanged.
func schemaError(err error, prefix string) error {
	var fe schema.FieldErrors
	if !errors.As(err, &fe) {
		return err
	}
	return errs.NewBadRequestError("Validation failed", true, nil, schemaFieldErrors(fe, prefix), nil)
}

func schemaFieldErrors(fe schema.FieldErrors, prefix string) []errs.FieldError {
	out := make([]errs.FieldError, 0, len(fe))
	for _, e := range fe {
		out = append(out, errs.FieldError{Field: prefix + "." + e.Key, Error: e.Message})
	}
	return out
}

// enqueue pushes a task after the business change has been committed.
// Failures are logged; the change itself already succeeded.
func enqueue(ctx context.Context, q TaskEnqueuer, logger *zerolog.Logger, task *asynq.Task, err error) {
	if err == nil && q != nil {
		err = q.Enqueue(ctx, task)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to enqueue notification")
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
