package service

import (
	"context"
	"strings"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/job"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	UpdateUser(ctx context.Context, id uuid.UUID, p model.UserPatch) (*model.User, error)
}

type EmployeeLookup interface {
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (*model.Employee, error)
}

type UserService struct {
	users      UserStore
	employees  EmployeeLookup
	activity   Recorder
	jobs       TaskEnqueuer
	bcryptCost int
	logger     *zerolog.Logger
}

func NewUserService(users UserStore, employees EmployeeLookup, activity Recorder, jobs TaskEnqueuer, bcryptCost int, logger *zerolog.Logger) *UserService {
	return &UserService{
		users:      users,
		employees:  employees,
		activity:   activity,
		jobs:       jobs,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

type CreateUserInput struct {
	Email      string
	Password   string
	FullName   string
	Role       model.Role
	EmployeeID *uuid.UUID
}

// Create adds an account and queues its welcome email. actor is nil when
// the account is bootstrapped from the command line.
func (s *UserService) Create(ctx context.Context, actor *model.Actor, in CreateUserInput) (*model.User, error) {
	if !in.Role.Valid() {
		return nil, invalid("role", "must be one of: admin, hr, manager, employee")
	}
	if len(in.Password) < 8 {
		return nil, invalid("password", "must be at least 8 characters")
	}
	if in.EmployeeID != nil {
		if _, err := s.employees.GetEmployeeByID(ctx, *in.EmployeeID); err != nil {
			return nil, err
		}
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, &model.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		EmployeeID:   in.EmployeeID,
		Active:       true,
	})
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor, Entry{
		Action:     "user.created",
		EntityType: model.EntityUser,
		EntityID:   user.ID,
		Summary:    "Created account " + user.Email,
		Metadata:   map[string]any{"role": user.Role},
	})

	task, err := job.NewWelcomeEmailTask(job.WelcomeEmailPayload{
		To:       user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
	})
	enqueue(ctx, s.jobs, loggerFrom(ctx, s.logger), task, err)

	return user, nil
}

type ListUsersInput struct {
	Role   *model.Role
	Active *bool
	model.PageQuery
}

func (s *UserService) List(ctx context.Context, in ListUsersInput) (*model.PaginatedResponse[model.User], error) {
	users, total, err := s.users.ListUsers(ctx, model.UserFilter{Role: in.Role, Active: in.Active, PageQuery: in.PageQuery})
	if err != nil {
		return nil, err
	}
	return model.NewPage(users, in.PageQuery, total), nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// Update changes account settings. Admins cannot lock themselves out by
// deactivating or demoting their own account.
func (s *UserService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	if p.Role != nil && !p.Role.Valid() {
		return nil, invalid("role", "must be one of: admin, hr, manager, employee")
	}
	if id == actor.ID {
		if p.Active != nil && !*p.Active {
			return nil, errs.NewBadRequestError("You cannot deactivate your own account", true, errs.Code("SELF_DEACTIVATION"), nil, nil)
		}
		if p.Role != nil && *p.Role != actor.Role {
			return nil, errs.NewBadRequestError("You cannot change your own role", true, errs.Code("SELF_DEMOTION"), nil, nil)
		}
	}
	if p.FullName != nil {
		p.FullName = trimmed(p.FullName)
		if *p.FullName == "" {
			return nil, invalid("fullName", "must not be blank")
		}
	}
	if p.EmployeeID != nil && !p.ClearEmployee {
		if _, err := s.employees.GetEmployeeByID(ctx, *p.EmployeeID); err != nil {
			return nil, err
		}
	}

	before, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUser(ctx, id, p)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{}
	if before.Role != user.Role {
		meta["role"] = map[string]any{"from": before.Role, "to": user.Role}
	}
	if before.Active != user.Active {
		meta["active"] = user.Active
	}

	s.activity.Record(ctx, &actor, Entry{
		Action:     "user.updated",
		EntityType: model.EntityUser,
		EntityID:   user.ID,
		Summary:    "Updated account " + user.Email,
		Metadata:   meta,
	})

	return user, nil
}
