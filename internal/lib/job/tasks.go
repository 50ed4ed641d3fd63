package job

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskWelcome           = "email:welcome"
	TaskApprovalRequested = "email:approval_requested"
	TaskApprovalDecided   = "email:approval_decided"
	TaskPolicyExpireSweep = "policy:expire_sweep"
)

type WelcomeEmailPayload struct {
	To       string `json:"to"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type ApprovalRequestedPayload struct {
	To          []string `json:"to"`
	RequestID   string   `json:"request_id"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	RequestedBy string   `json:"requested_by"`
}

type ApprovalDecidedPayload struct {
	To        string `json:"to"`
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Outcome   string `json:"outcome"`
	Comment   string `json:"comment,omitempty"`
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, opts...), nil
}

func NewWelcomeEmailTask(p WelcomeEmailPayload) (*asynq.Task, error) {
	return newTask(TaskWelcome, p,
		asynq.MaxRetry(3),
		asynq.Queue("default"),
		asynq.Timeout(30*time.Second),
	)
}

// NewApprovalRequestedTask notifies approvers; it goes to the critical
// queue since requests block the requester.
func NewApprovalRequestedTask(p ApprovalRequestedPayload) (*asynq.Task, error) {
	return newTask(TaskApprovalRequested, p,
		asynq.MaxRetry(5),
		asynq.Queue("critical"),
		asynq.Timeout(30*time.Second),
	)
}

func NewApprovalDecidedTask(p ApprovalDecidedPayload) (*asynq.Task, error) {
	return newTask(TaskApprovalDecided, p,
		asynq.MaxRetry(5),
		asynq.Queue("default"),
		asynq.Timeout(30*time.Second),
	)
}

// NewPolicyExpireSweepTask is unique per hour so overlapping schedulers
// enqueue it once.
func NewPolicyExpireSweepTask() (*asynq.Task, error) {
	return newTask(TaskPolicyExpireSweep, struct{}{},
		asynq.MaxRetry(1),
		asynq.Queue("low"),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(55*time.Minute),
	)
}
