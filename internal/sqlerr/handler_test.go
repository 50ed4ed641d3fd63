package sqlerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asHTTP(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	return httpErr
}

func TestHandleErrorUniqueViolation(t *testing.T) {
	err := HandleError(fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           "23505",
		Severity:       "ERROR",
		TableName:      "resource_items",
		ConstraintName: "unique_resource_items_serial_number",
	}))

	httpErr := asHTTP(t, err)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "RESOURCE_ITEM_ALREADY_EXISTS", httpErr.Code)
	assert.Equal(t, "A Resource Item with this Serial Number already exists", httpErr.Message)
	assert.True(t, httpErr.Override)
}

func TestHandleErrorPendingApprovalConflict(t *testing.T) {
	err := HandleError(&pgconn.PgError{
		Code:           "23505",
		TableName:      "approval_requests",
		ConstraintName: "unique_approval_requests_pending",
	})

	httpErr := asHTTP(t, err)
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, "UNIQUE_APPROVAL_REQUESTS_PENDING", httpErr.Code)
}

func TestHandleErrorForeignKey(t *testing.T) {
	err := HandleError(&pgconn.PgError{
		Code:       "23503",
		TableName:  "employees",
		ColumnName: "manager_id",
	})

	httpErr := asHTTP(t, err)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "EMPLOYEE_NOT_FOUND", httpErr.Code)
	assert.Equal(t, "The referenced Manager does not exist", httpErr.Message)
}

func TestHandleErrorNotNull(t *testing.T) {
	err := HandleError(&pgconn.PgError{
		Code:       "23502",
		TableName:  "policies",
		ColumnName: "title",
	})

	httpErr := asHTTP(t, err)
	assert.Equal(t, "POLICY_REQUIRED", httpErr.Code)
	require.Len(t, httpErr.Errors, 1)
	assert.Equal(t, "title", httpErr.Errors[0].Field)
}

func TestHandleErrorNoRows(t *testing.T) {
	err := HandleError(fmt.Errorf("%spolicies: %w", TablePrefix, pgx.ErrNoRows))
	httpErr := asHTTP(t, err)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "Policy not found", httpErr.Message)

	httpErr = asHTTP(t, HandleError(pgx.ErrNoRows))
	assert.Equal(t, "Resource not found", httpErr.Message)
}

func TestHandleErrorPassThroughAndFallback(t *testing.T) {
	orig := errs.NewForbiddenError("nope", true)
	assert.Same(t, orig, HandleError(orig))

	httpErr := asHTTP(t, HandleError(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)

	httpErr = asHTTP(t, HandleError(&pgconn.PgError{Code: "XX000"}))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
}

func TestErrCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ConvertPgError(&pgconn.PgError{Code: "23514"}))
	assert.Equal(t, CheckViolation, ErrCode(err))
	assert.Equal(t, Other, ErrCode(errors.New("x")))
}

func TestSingular(t *testing.T) {
	assert.Equal(t, "policy", singular("policies"))
	assert.Equal(t, "activity", singular("activities"))
	assert.Equal(t, "approval_request", singular("approval_requests"))
	assert.Equal(t, "user", singular("users"))
}
