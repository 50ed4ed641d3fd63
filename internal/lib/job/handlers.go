package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deppfellow/erm/internal/lib/email"
	"github.com/deppfellow/erm/internal/metrics"
	"github.com/hibiken/asynq"
)

var errNotConfigured = errors.New("task handler dependency not configured")

// observe records the outcome and duration of every task.
func (j *JobService) observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)

		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.JobsProcessed.WithLabelValues(t.Type(), status).Inc()
		metrics.JobDuration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
		return err
	})
}

func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		// A malformed payload never succeeds on retry.
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (j *JobService) handleWelcomeEmailTask(ctx context.Context, t *asynq.Task) error {
	var p WelcomeEmailPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	if j.mailer == nil {
		return errNotConfigured
	}

	j.logger.Info().Str("type", "welcome").Str("to", p.To).Msg("Processing welcome email task")

	if err := j.mailer.SendWelcomeEmail(p.To, email.WelcomeData{FullName: p.FullName, Email: p.To, Role: p.Role}); err != nil {
		j.logger.Error().Str("type", "welcome").Str("to", p.To).Err(err).Msg("Failed to send welcome email")
		return err
	}
	return nil
}

func (j *JobService) handleApprovalRequestedTask(ctx context.Context, t *asynq.Task) error {
	var p ApprovalRequestedPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	if j.mailer == nil {
		return errNotConfigured
	}
	if len(p.To) == 0 {
		j.logger.Warn().Str("request_id", p.RequestID).Msg("approval request has no recipients")
		return nil
	}

	err := j.mailer.SendApprovalRequestedEmail(p.To, email.ApprovalRequestedData{
		Title:       p.Title,
		Kind:        p.Kind,
		RequestedBy: p.RequestedBy,
		RequestID:   p.RequestID,
	})
	if err != nil {
		j.logger.Error().Str("request_id", p.RequestID).Err(err).Msg("Failed to send approval request email")
		return err
	}
	return nil
}

func (j *JobService) handleApprovalDecidedTask(ctx context.Context, t *asynq.Task) error {
	var p ApprovalDecidedPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	if j.mailer == nil {
		return errNotConfigured
	}

	err := j.mailer.SendApprovalDecidedEmail(p.To, email.ApprovalDecidedData{
		Title:     p.Title,
		Kind:      p.Kind,
		Outcome:   p.Outcome,
		Comment:   p.Comment,
		RequestID: p.RequestID,
	})
	if err != nil {
		j.logger.Error().Str("request_id", p.RequestID).Err(err).Msg("Failed to send approval decision email")
		return err
	}
	return nil
}

func (j *JobService) handlePolicyExpireSweepTask(ctx context.Context, t *asynq.Task) error {
	if j.expirer == nil {
		return errNotConfigured
	}

	n, err := j.expirer.ExpirePolicies(ctx)
	if err != nil {
		return fmt.Errorf("policy expiry sweep: %w", err)
	}

	j.logger.Info().Int("expired", n).Msg("policy expiry sweep finished")
	return nil
}
