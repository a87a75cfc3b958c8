package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/middleware"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/internal/service"
	"github.com/Skotchmaster/user_auth/internal/tokens"
	"github.com/Skotchmaster/user_auth/internal/transport"
	"github.com/Skotchmaster/user_auth/pkg/events"
	"github.com/Skotchmaster/user_auth/pkg/logging"
)

type AuthHTTP struct {
	Users  *service.CredentialStore
	Tokens *tokens.Service
	Events events.Publisher
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return bindErr(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	u, err := h.Users.Create(ctx, nil, transport.CreateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}

	pair, err := h.issuePair(ctx, u)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		return err
	}
	publish(ctx, h.Events, events.UserRegistered, u)

	l.Info("register_successful", "user_id", u.ID)
	return respond(c, http.StatusCreated, transport.RegisterResponse{Token: pair, User: u})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return bindErr(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	u, err := h.Users.VerifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}

	pair, err := h.issuePair(ctx, u)
	if err != nil {
		l.Error("login_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		return err
	}
	publish(ctx, h.Events, events.UserLoggedIn, u)

	l.Info("login_successful", "user_id", u.ID)
	return respond(c, http.StatusOK, transport.LoginResponse{Tokens: pair, User: u})
}

// Refresh redeems a refresh token for a new access and refresh pair.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return bindErr(err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	rt, err := h.Tokens.Rotate(ctx, transport.NormalizeEmail(req.Email), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return err
	}

	u, err := h.Users.Get(ctx, rt.UserID.String())
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		l.Warn("refresh_error", "status", 401, "reason", "user no longer exists")
		return fmt.Errorf("%w: user no longer exists", apperr.ErrUnauthorized)
	case err != nil:
		return err
	case !u.Active:
		l.Warn("refresh_error", "status", 401, "reason", "inactive account")
		return fmt.Errorf("%w: account is inactive", apperr.ErrUnauthorized)
	}

	pair, err := h.issuePair(ctx, u)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		return err
	}
	l.Info("refresh_successful", "user_id", u.ID)
	return respond(c, http.StatusOK, pair)
}

// Logout revokes the caller's refresh token. A token issued to someone else
// is refused rather than silently ignored.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")
	who := middleware.Identity(c)

	var req transport.LogoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "error", err)
		return bindErr(err)
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token != "" && !strings.HasPrefix(token, who.ID.String()+".") {
		l.Warn("logout_error", "status", 403, "reason", "refresh token belongs to another user")
		return apperr.ErrForbidden
	}
	if err := h.Tokens.Revoke(ctx, token); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
		return err
	}

	l.Info("successful_logout", "user_id", who.ID)
	return respond(c, http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) issuePair(ctx context.Context, u *models.User) (transport.TokenResponse, error) {
	access, exp, err := h.Tokens.IssueAccess(u)
	if err != nil {
		return transport.TokenResponse{}, err
	}
	refresh, err := h.Tokens.IssueRefresh(ctx, u)
	if err != nil {
		return transport.TokenResponse{}, err
	}
	return transport.TokenResponse{
		TokenType:    tokens.TokenType,
		AccessToken:  access,
		RefreshToken: refresh.Token,
		ExpiresIn:    exp,
	}, nil
}

// publish is best effort; a broker outage never fails the request.
func publish(ctx context.Context, p events.Publisher, typ events.Type, u *models.User) {
	if p == nil {
		return
	}
	e := events.Event{Type: typ, UserID: u.ID.String(), Email: u.Email, Role: u.Role}
	if err := p.Publish(context.WithoutCancel(ctx), e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "user_id", u.ID, "error", err)
	}
}
