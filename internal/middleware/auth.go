package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/deppfellow/erm/internal/errs"
	"github.com/deppfellow/erm/internal/lib/rbac"
	"github.com/deppfellow/erm/internal/model"
	"github.com/deppfellow/erm/internal/server"
	"github.com/labstack/echo/v4"
)

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (model.Actor, error)
}

// AuthMiddleware verifies access tokens issued by the auth service.
type AuthMiddleware struct {
	server *server.Server
	auth   Authenticator
}

func NewAuthMiddleware(s *server.Server, auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		server: s,
		auth:   auth,
	}
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// token. On success the actor, user_id and user_role are stored in the
// Echo context and the request logger gains the user fields.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			GetLogger(c).Warn().
				Str("function", "RequireAuth").
				Dur("duration", time.Since(start)).
				Msg("missing bearer token")
			return errs.NewUnauthorizedError("Unauthorized", false)
		}

		actor, err := auth.auth.Authenticate(c.Request().Context(), raw)
		if err != nil {
			GetLogger(c).Warn().
				Err(err).
				Str("function", "RequireAuth").
				Dur("duration", time.Since(start)).
				Msg("token rejected")
			return err
		}

		SetActor(c, actor)

		GetLogger(c).Debug().
			Str("function", "RequireAuth").
			Dur("duration", time.Since(start)).
			Msg("user authenticated successfully")

		return next(c)
	}
}

// RequirePermission allows the request only when the authenticated role
// grants perm. It must run after RequireAuth.
func RequirePermission(perm rbac.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := GetActor(c)
			if !ok {
				return errs.NewUnauthorizedError("Unauthorized", false)
			}
			if !rbac.HasPermission(actor.Role, perm) {
				GetLogger(c).Warn().
					Str("permission", string(perm)).
					Msg("permission denied")
				return errs.NewForbiddenError("You do not have permission to perform this action", true)
			}
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
