package model

import (
	"time"

	"github.com/google/uuid"
)

// Entity types recorded on the timeline.
const (
	EntityEmployee        = "employee"
	EntityPolicy          = "policy"
	EntityResourceType    = "resource_type"
	EntityResourceItem    = "resource_item"
	EntityApprovalRequest = "approval_request"
	EntityUser            = "user"
)

var EntityTypes = []string{
	EntityEmployee,
	EntityPolicy,
	EntityResourceType,
	EntityResourceItem,
	EntityApprovalRequest,
	EntityUser,
}

// Activity is one append-only timeline row.
type Activity struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ActorID    *uuid.UUID     `json:"actorId" db:"actor_id"`
	Action     string         `json:"action" db:"action"`
	EntityType string         `json:"entityType" db:"entity_type"`
	EntityID   *uuid.UUID     `json:"entityId" db:"entity_id"`
	Summary    string         `json:"summary" db:"summary"`
	Metadata   map[string]any `json:"metadata" db:"metadata"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}

type ActivityFilter struct {
	EntityType *string
	EntityID   *uuid.UUID
	ActorID    *uuid.UUID
	Action     *string
	From       *time.Time
	To         *time.Time
	PageQuery
}
