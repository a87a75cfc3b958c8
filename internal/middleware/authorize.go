// Package middleware resolves the bearer identity of a request and decides
// whether it may reach the handler.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/cache"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/pkg/logging"
	"github.com/Skotchmaster/user_auth/pkg/metrics"
)

const (
	identityCtxKey = "identity"
	bearerScheme   = "bearer"

	DefaultLoadTimeout = 5 * time.Second
)

type ruleKind int

const (
	anyAuthenticated ruleKind = iota
	ownerOrAdmin
	roleIn
)

// Rule is the access requirement declared on a route.
type Rule struct {
	kind  ruleKind
	param string
	roles []string
}

func AnyAuthenticated() Rule { return Rule{kind: anyAuthenticated} }

// OwnerOrAdmin allows admins, and callers whose id equals the named path param.
func OwnerOrAdmin(param string) Rule { return Rule{kind: ownerOrAdmin, param: param} }

func RoleIn(roles ...string) Rule { return Rule{kind: roleIn, roles: roles} }

func (r Rule) String() string {
	switch r.kind {
	case ownerOrAdmin:
		return "owner_or_admin:" + r.param
	case roleIn:
		return "role_in:" + strings.Join(r.roles, ",")
	default:
		return "any_authenticated"
	}
}

// Decide reports whether who satisfies rule. param resolves path parameters
// of the current request.
func Decide(rule Rule, who *models.User, param func(name string) string) bool {
	if who == nil {
		return false
	}
	switch rule.kind {
	case anyAuthenticated:
		return true
	case ownerOrAdmin:
		if who.IsAdmin() {
			return true
		}
		if param == nil {
			return false
		}
		id, err := uuid.Parse(param(rule.param))
		return err == nil && id == who.ID
	case roleIn:
		for _, role := range rule.roles {
			if who.Role == role {
				return true
			}
		}
		return false
	default:
		return false
	}
}

type Verifier interface {
	Verify(token string) (string, error)
}

type IdentityLoader interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type Authorizer struct {
	Tokens      Verifier
	Users       IdentityLoader
	Cache       *cache.Cache
	IdentityTTL time.Duration
	LoadTimeout time.Duration
	Metrics     *metrics.Metrics
}

func NewAuthorizer(tokens Verifier, users IdentityLoader, c *cache.Cache, ttl time.Duration, m *metrics.Metrics) *Authorizer {
	return &Authorizer{
		Tokens:      tokens,
		Users:       users,
		Cache:       c,
		IdentityTTL: ttl,
		LoadTimeout: DefaultLoadTimeout,
		Metrics:     m,
	}
}

// Require builds the middleware enforcing rule.
func (a *Authorizer) Require(rule Rule) echo.MiddlewareFunc {
	label := rule.String()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("svc", "authz", "rule", label)

			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				l.Warn("authz_denied", "status", 401, "reason", "missing bearer token")
				a.Metrics.AuthzDecision(label, "unauthenticated")
				return fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
			}

			sub, err := a.Tokens.Verify(token)
			if err != nil {
				l.Warn("authz_denied", "status", 401, "reason", "token rejected", "error", err)
				a.Metrics.AuthzDecision(label, "unauthenticated")
				return err
			}

			who, err := a.resolve(ctx, sub)
			if err != nil {
				if errors.Is(err, apperr.ErrTransientStore) {
					l.Error("authz_error", "status", 500, "reason", "identity lookup failed", "error", err)
					a.Metrics.AuthzDecision(label, "error")
					return err
				}
				l.Warn("authz_denied", "status", 401, "reason", "identity not resolvable", "error", err)
				a.Metrics.AuthzDecision(label, "unauthenticated")
				return fmt.Errorf("%w: %w", apperr.ErrUnauthorized, err)
			}
			if !who.Active {
				l.Warn("authz_denied", "status", 401, "reason", "inactive account", "user_id", who.ID)
				a.Metrics.AuthzDecision(label, "unauthenticated")
				return fmt.Errorf("%w: account is inactive", apperr.ErrUnauthorized)
			}

			if !Decide(rule, who, c.Param) {
				l.Warn("authz_denied", "status", 403, "reason", "rule not satisfied", "user_id", who.ID)
				a.Metrics.AuthzDecision(label, "deny")
				return apperr.ErrForbidden
			}

			a.Metrics.AuthzDecision(label, "allow")
			c.Set(identityCtxKey, who)
			c.SetRequest(c.Request().WithContext(WithIdentity(ctx, who)))
			return next(c)
		}
	}
}

func (a *Authorizer) resolve(ctx context.Context, sub string) (*models.User, error) {
	load := func(lctx context.Context) (*models.User, error) {
		if a.LoadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, a.LoadTimeout)
			defer cancel()
		}
		return a.Users.Get(lctx, sub)
	}
	if a.Cache == nil {
		return load(context.WithoutCancel(ctx))
	}
	return cache.GetOrLoad(ctx, a.Cache, cache.IdentityKey(sub), a.IdentityTTL, load)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type identityKey struct{}

func WithIdentity(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, identityKey{}, u)
}

func IdentityFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(identityKey{}).(*models.User)
	return u, ok && u != nil
}

// Identity returns the caller attached by Require, or nil on public routes.
func Identity(c echo.Context) *models.User {
	if u, ok := c.Get(identityCtxKey).(*models.User); ok {
		return u
	}
	u, _ := IdentityFromContext(c.Request().Context())
	return u
}
