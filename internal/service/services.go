package service

import (
	"github.com/deppfellow/erm/internal/cache"
	"github.com/deppfellow/erm/internal/lib/job"
	"github.com/deppfellow/erm/internal/lib/token"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/repository"
	"github.com/deppfellow/erm/internal/server"
	"github.com/jonboulle/clockwork"
)

type Services struct {
	Auth      *AuthService
	Users     *UserService
	Employees *EmployeeService
	Policies  *PolicyService
	Resources *ResourceService
	Approvals *ApprovalService
	Activity  *ActivityService
	Job       *job.JobService
}

func NewService(s *server.Server, repos *repository.Repositories) (*Services, error) {
	clock := clockwork.NewRealClock()
	authCfg := s.Config.Auth

	tokens := token.NewManager(authCfg.SecretKey, authCfg.Issuer, authCfg.TokenTTL, clock)
	throttle := cache.NewLoginThrottle(s.Redis, authCfg.MaxLoginAttempts, authCfg.LoginWindow)
	typeCache := cache.NewResourceTypes(s.Redis, repos.ResourceTypes, s.Logger)

	activity := NewActivityService(repos.Activities, s.Logger)
	approvals := NewApprovalService(repos, repos.Approvals, repos.Users, activity, s.Job, clock, s.Logger)
	policies := NewPolicyService(repos, repos.Policies, approvals, activity, clock, s.Logger)
	resources := NewResourceService(ResourceDeps{
		Tx:        repos,
		Types:     repos.ResourceTypes,
		Cache:     typeCache,
		Items:     repos.ResourceItems,
		Employees: repos.Employees,
		Users:     repos.Users,
		Approvals: approvals,
		Activity:  activity,
		Logger:    s.Logger,
	})

	approvals.Register(model.ApprovalPolicyPublication, policies)
	approvals.Register(model.ApprovalResourceAssignment, resources)
	s.Job.SetPolicyExpirer(policies)

	return &Services{
		Auth:      NewAuthService(repos.Users, tokens, throttle, clock, authCfg.BcryptCost, s.Logger),
		Users:     NewUserService(repos.Users, repos.Employees, activity, s.Job, authCfg.BcryptCost, s.Logger),
		Employees: NewEmployeeService(repos, repos.Employees, repos.ResourceItems, activity, clock, s.Logger),
		Policies:  policies,
		Resources: resources,
		Approvals: approvals,
		Activity:  activity,
		Job:       s.Job,
	}, nil
}
