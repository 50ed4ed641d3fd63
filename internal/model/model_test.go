package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageQueryNormalize(t *testing.T) {
	q := PageQuery{}.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.Limit)

	assert.Equal(t, MaxPageSize, PageQuery{Limit: 500}.Normalize().Limit)
	assert.Equal(t, 40, PageQuery{Page: 3, Limit: 20}.Offset())
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, PageQuery{Page: 2, Limit: 10}, 21)
	assert.NotNil(t, p.Data)
	assert.Equal(t, 3, p.TotalPages)

	assert.Equal(t, 0, NewPage[int](nil, PageQuery{}, 0).TotalPages)
}

func TestPolicyTransitions(t *testing.T) {
	tests := []struct {
		from, to PolicyStatus
		ok       bool
	}{
		{PolicyDraft, PolicyPendingApproval, true},
		{PolicyDraft, PolicyArchived, true},
		{PolicyDraft, PolicyActive, false},
		{PolicyPendingApproval, PolicyActive, true},
		{PolicyPendingApproval, PolicyDraft, true},
		{PolicyPendingApproval, PolicyArchived, false},
		{PolicyActive, PolicyArchived, true},
		{PolicyActive, PolicyDraft, false},
		{PolicyArchived, PolicyDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestDate(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	got := Date(time.Date(2024, 5, 1, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestValidEnums(t *testing.T) {
	assert.True(t, RoleHR.Valid())
	assert.False(t, Role("root").Valid())
	assert.True(t, EmployeeOnLeave.Valid())
	assert.False(t, EmployeeStatus("fired").Valid())
	assert.True(t, ItemRetired.Valid())
	assert.True(t, ApprovalResourceAssignment.Valid())
	assert.False(t, ApprovalStatus("done").Valid())
}
