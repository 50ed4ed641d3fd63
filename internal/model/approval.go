package model

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalKind string

const (
	ApprovalPolicyPublication  ApprovalKind = "policy_publication"
	ApprovalResourceAssignment ApprovalKind = "resource_assignment"
)

func (k ApprovalKind) Valid() bool {
	return k == ApprovalPolicyPublication || k == ApprovalResourceAssignment
}

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalCancelled:
		return true
	}
	return false
}

type ApprovalRequest struct {
	Base
	Kind            ApprovalKind   `json:"kind" db:"kind"`
	SubjectID       uuid.UUID      `json:"subjectId" db:"subject_id"`
	Title           string         `json:"title" db:"title"`
	RequestedBy     uuid.UUID      `json:"requestedBy" db:"requested_by"`
	ApproverRole    Role           `json:"approverRole" db:"approver_role"`
	ApproverID      *uuid.UUID     `json:"approverId" db:"approver_id"`
	Status          ApprovalStatus `json:"status" db:"status"`
	Payload         map[string]any `json:"payload" db:"payload"`
	DecisionComment *string        `json:"decisionComment" db:"decision_comment"`
	DecidedBy       *uuid.UUID     `json:"decidedBy" db:"decided_by"`
	DecidedAt       *time.Time     `json:"decidedAt" db:"decided_at"`
}

// AssignmentPayload is stored on resource_assignment requests.
type AssignmentPayload struct {
	EmployeeID uuid.UUID `json:"employeeId"`
	Reason     string    `json:"reason,omitempty"`
}

// ApprovalFilter narrows approval listings. RequestedBy and
// AssignedTo are combined with OR when both are set.
type ApprovalFilter struct {
	Status      *ApprovalStatus
	Kind        *ApprovalKind
	RequestedBy *uuid.UUID
	AssignedTo  *Actor
	PageQuery
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
