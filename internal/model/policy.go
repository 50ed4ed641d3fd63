package model

import (
	"time"

	"github.com/google/uuid"
)

type PolicyStatus string

const (
	PolicyDraft           PolicyStatus = "draft"
	PolicyPendingApproval PolicyStatus = "pending_approval"
	PolicyActive          PolicyStatus = "active"
	PolicyArchived        PolicyStatus = "archived"
)

func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyDraft, PolicyPendingApproval, PolicyActive, PolicyArchived:
		return true
	}
	return false
}

// policyTransitions is the lifecycle graph. Revising an active policy does
// not move it; it creates a new draft row.
var policyTransitions = map[PolicyStatus][]PolicyStatus{
	PolicyDraft:           {PolicyPendingApproval, PolicyArchived},
	PolicyPendingApproval: {PolicyActive, PolicyDraft},
	PolicyActive:          {PolicyArchived},
}

// CanTransition reports whether a policy may move from s to next.
func (s PolicyStatus) CanTransition(next PolicyStatus) bool {
	for _, allowed := range policyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Policy struct {
	Base
	Code          string       `json:"code" db:"code"`
	Title         string       `json:"title" db:"title"`
	Category      string       `json:"category" db:"category"`
	Body          string       `json:"body" db:"body"`
	Version       int          `json:"version" db:"version"`
	Status        PolicyStatus `json:"status" db:"status"`
	OwnerID       uuid.UUID    `json:"ownerId" db:"owner_id"`
	EffectiveDate *time.Time   `json:"effectiveDate" db:"effective_date"`
	ExpiryDate    *time.Time   `json:"expiryDate" db:"expiry_date"`
	PublishedAt   *time.Time   `json:"publishedAt" db:"published_at"`
}

type PolicyFilter struct {
	Status   *PolicyStatus
	Category *string
	Code     *string
	Search   *string
	PageQuery
}

// PolicyPatch lists the editable fields of a draft.
type PolicyPatch struct {
	Title         *string
	Category      *string
	Body          *string
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
}
