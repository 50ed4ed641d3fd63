package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/deppfellow/erm/internal/lib/token"
	"github.com/deppfellow/erm/internal/metrics"
	"github.com/deppfellow/erm/internal/model"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type AuthUserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// LoginThrottler limits failed logins per email and client IP.
type LoginThrottler interface {
	Check(ctx context.Context, email, ip string) (time.Duration, error)
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email, ip string) error
}

type AuthService struct {
	users    AuthUserStore
	tokens   *token.Manager
	throttle LoginThrottler
	clock    clockwork.Clock
	logger   *zerolog.Logger

	bcryptCost int
	dummyOnce  sync.Once
	dummyHash  []byte
}

func NewAuthService(users AuthUserStore, tokens *token.Manager, throttle LoginThrottler, clock clockwork.Clock, bcryptCost int, logger *zerolog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		throttle:   throttle,
		clock:      clock,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

var errBadCredentials = errs.NewUnauthorizedError("Invalid email or password", true)

type LoginInput struct {
	Email    string
	Password string
	IP       string
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// Login verifies credentials and issues an access token. When Redis is
// unavailable the throttle is skipped rather than locking everyone out.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	logger := loggerFrom(ctx, s.logger)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	wait, err := s.throttle.Check(ctx, email, in.IP)
	if err != nil {
		metrics.LoginThrottleErrors.Inc()
		logger.Warn().Err(err).Msg("login throttle unavailable, continuing")
	}
	if wait > 0 {
		metrics.LoginAttempts.WithLabelValues("throttled").Inc()
		minutes := int(math.Ceil(wait.Minutes()))
		return nil, errs.NewTooManyRequestsError(fmt.Sprintf("Too many login attempts. Try again in %d minute(s).", minutes))
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(in.Password))
		s.fail(ctx, email, in.IP, "invalid")
		return nil, errBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.fail(ctx, email, in.IP, "invalid")
		return nil, errBadCredentials
	}

	if !user.Active {
		s.fail(ctx, email, in.IP, "inactive")
		return nil, errs.NewUnauthorizedError("Account is disabled", true)
	}

	if err := s.throttle.Reset(ctx, email, in.IP); err != nil {
		metrics.LoginThrottleErrors.Inc()
		logger.Warn().Err(err).Msg("failed to reset login attempts")
	}

	now := s.clock.Now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	raw, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logger.Info().Str("user_id", user.ID.String()).Msg("user logged in")

	return &LoginResult{Token: raw, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) fail(ctx context.Context, email, ip, result string) {
	metrics.LoginAttempts.WithLabelValues(result).Inc()
	if err := s.throttle.Fail(ctx, email, ip); err != nil {
		metrics.LoginThrottleErrors.Inc()
		loggerFrom(ctx, s.logger).Warn().Err(err).Msg("failed to record login failure")
	}
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
		if err != nil {
			h, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Authenticate verifies a bearer token and loads the caller. The account
// is re-read on every request so deactivation and role changes apply
// immediately, before the token expires.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (model.Actor, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return model.Actor{}, errs.NewUnauthorizedError("Invalid or expired token", false)
	}
	actor, err := claims.Actor()
	if err != nil {
		return model.Actor{}, errs.NewUnauthorizedError("Invalid or expired token", false)
	}

	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		if isNotFound(err) {
			return model.Actor{}, errs.NewUnauthorizedError("Account no longer exists", true)
		}
		return model.Actor{}, err
	}
	if !user.Active {
		return model.Actor{}, errs.NewUnauthorizedError("Account is disabled", true)
	}

	return model.Actor{ID: user.ID, Role: user.Role, Email: user.Email}, nil
}

// Profile is the caller's account with what it may do and see.
type Profile struct {
	User        *model.User       `json:"user"`
	Permissions []rbac.Permission `json:"permissions"`
	Pages       []string          `json:"pages"`
}

func (s *AuthService) Me(ctx context.Context, actor model.Actor) (*Profile, error) {
	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:        user,
		Permissions: rbac.Permissions(user.Role),
		Pages:       rbac.Pages(user.Role),
	}, nil
}

// HashPassword hashes a new password with the configured cost.
func HashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", invalid("password", "must not exceed 72 bytes")
		}
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}
