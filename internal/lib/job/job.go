// Package job runs background work on asynq: notification emails and the
// periodic policy expiry sweep.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/erm/internal/config"
	"github.com/deppfellow/erm/internal/lib/email"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// PolicyExpirer archives active policies whose expiry date has passed and
// returns how many were archived.
type PolicyExpirer interface {
	ExpirePolicies(ctx context.Context) (int, error)
}

// Mailer sends the notification emails.
type Mailer interface {
	SendWelcomeEmail(to string, data email.WelcomeData) error
	SendApprovalRequestedEmail(to []string, data email.ApprovalRequestedData) error
	SendApprovalDecidedEmail(to string, data email.ApprovalDecidedData) error
}

// ExpirySweepSpec is the cron spec of the policy expiry sweep.
const ExpirySweepSpec = "@hourly"

// JobService holds the asynq client (enqueue), server (workers) and
// scheduler (periodic tasks).
type JobService struct {
	Client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	logger    *zerolog.Logger

	mailer  Mailer
	expirer PolicyExpirer
}

func NewJobService(logger *zerolog.Logger, cfg *config.Config) *JobService {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Address}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error().Err(err).Str("task", task.Type()).Msg("background task failed")
			}),
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	return &JobService{
		Client:    client,
		server:    server,
		scheduler: scheduler,
		logger:    logger,
	}
}

// InitHandlers wires the dependencies the task handlers need.
func (j *JobService) InitHandlers(cfg *config.Config, logger *zerolog.Logger) {
	j.mailer = email.NewClient(cfg, logger)
}

// SetPolicyExpirer registers the service run by the expiry sweep. It must
// be called before Start.
func (j *JobService) SetPolicyExpirer(e PolicyExpirer) {
	j.expirer = e
}

func (j *JobService) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(j.observe)
	mux.HandleFunc(TaskWelcome, j.handleWelcomeEmailTask)
	mux.HandleFunc(TaskApprovalRequested, j.handleApprovalRequestedTask)
	mux.HandleFunc(TaskApprovalDecided, j.handleApprovalDecidedTask)
	mux.HandleFunc(TaskPolicyExpireSweep, j.handlePolicyExpireSweepTask)
	return mux
}

// Start runs the workers and the scheduler in the background.
func (j *JobService) Start() error {
	j.logger.Info().Msg("Starting background job server")

	if err := j.server.Start(j.mux()); err != nil {
		return fmt.Errorf("starting job server: %w", err)
	}

	if j.expirer != nil {
		task, err := NewPolicyExpireSweepTask()
		if err != nil {
			return err
		}
		if _, err := j.scheduler.Register(ExpirySweepSpec, task); err != nil {
			return fmt.Errorf("registering policy expiry sweep: %w", err)
		}
		if err := j.scheduler.Start(); err != nil {
			return fmt.Errorf("starting job scheduler: %w", err)
		}
	}

	return nil
}

// Stop waits for running tasks and closes Redis connections.
func (j *JobService) Stop() {
	j.logger.Info().Msg("Stopping background job server")
	if j.expirer != nil {
		j.scheduler.Shutdown()
	}
	j.server.Shutdown()
	if err := j.Client.Close(); err != nil {
		j.logger.Warn().Err(err).Msg("failed to close job client")
	}
}

// Enqueue pushes task onto its queue.
func (j *JobService) Enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := j.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", task.Type(), err)
	}
	j.logger.Debug().Str("task", task.Type()).Str("task_id", info.ID).Str("queue", info.Queue).Msg("task enqueued")
	return nil
}
