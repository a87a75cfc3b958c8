package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/cache"
	"github.com/Skotchmaster/user_auth/internal/middleware"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/internal/service"
	"github.com/Skotchmaster/user_auth/internal/transport"
	"github.com/Skotchmaster/user_auth/pkg/events"
	"github.com/Skotchmaster/user_auth/pkg/logging"
)

const (
	userIDParam   = "userId"
	userRoute     = "/users/:" + userIDParam
	userRouteFull = apiPrefix + userRoute
)

type UsersHTTP struct {
	Users  *service.CredentialStore
	Cache  *cache.Cache
	Events events.Publisher
}

func (h *UsersHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_list")

	var q transport.ListUsersQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		l.Warn("list_error", "status", 400, "error", err)
		return bindErr(err)
	}

	page, err := h.Users.List(ctx, q)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, page)
}

func (h *UsersHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_create")

	var req transport.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_error", "status", 400, "error", err)
		return bindErr(err)
	}

	u, err := h.Users.Create(ctx, middleware.Identity(c), req)
	if err != nil {
		return err
	}
	publish(ctx, h.Events, events.UserRegistered, u)
	return respond(c, http.StatusCreated, u)
}

func (h *UsersHTTP) Profile(c echo.Context) error {
	return respond(c, http.StatusOK, middleware.Identity(c))
}

// Get serves the user through the read-through cache. The handler reads no
// query parameters, so the query is left out of the cache key.
func (h *UsersHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseUserID(c)
	if err != nil {
		return err
	}

	load := func(lctx context.Context) (*models.User, error) {
		return h.Users.Get(lctx, id.String())
	}
	if h.Cache == nil {
		u, err := load(ctx)
		if err != nil {
			return err
		}
		return respond(c, http.StatusOK, u)
	}

	u, err := cache.GetOrLoad(ctx, h.Cache, userKey(id), h.Cache.TTL(), load)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, u)
}

func (h *UsersHTTP) Replace(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_replace")

	var req transport.ReplaceUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("replace_error", "status", 400, "error", err)
		return bindErr(err)
	}

	target, err := h.target(c)
	if err != nil {
		return err
	}
	u, err := h.Users.ApplyFullReplace(ctx, middleware.Identity(c), target, req)
	if err != nil {
		return err
	}
	h.forget(ctx, u.ID)
	publish(ctx, h.Events, events.UserUpdated, u)
	return respond(c, http.StatusOK, u)
}

func (h *UsersHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update")

	var req transport.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_error", "status", 400, "error", err)
		return bindErr(err)
	}

	target, err := h.target(c)
	if err != nil {
		return err
	}
	u, err := h.Users.ApplyPartialUpdate(ctx, middleware.Identity(c), target, req)
	if err != nil {
		return err
	}
	h.forget(ctx, u.ID)
	publish(ctx, h.Events, events.UserUpdated, u)
	return respond(c, http.StatusOK, u)
}

func (h *UsersHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	target, err := h.target(c)
	if err != nil {
		return err
	}
	if err := h.Users.Remove(ctx, target); err != nil {
		return err
	}
	h.forget(ctx, target.ID)
	publish(ctx, h.Events, events.UserRemoved, target)

	logging.FromContext(ctx).Info("user_removed", "handler", "users_delete", "user_id", target.ID)
	return c.NoContent(http.StatusNoContent)
}

// target loads the addressed user from the store, never from the cache:
// cached users carry no password digest and must not be written back.
func (h *UsersHTTP) target(c echo.Context) (*models.User, error) {
	id, err := parseUserID(c)
	if err != nil {
		return nil, err
	}
	return h.Users.Get(c.Request().Context(), id.String())
}

func (h *UsersHTTP) forget(ctx context.Context, id uuid.UUID) {
	if h.Cache == nil {
		return
	}
	h.Cache.Invalidate(ctx, userKey(id), cache.IdentityKey(id.String()))
}

func parseUserID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param(userIDParam)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", apperr.ErrInvalidIdentifier, raw)
	}
	return id, nil
}

func userKey(id uuid.UUID) string {
	return cache.RequestKey(userRouteFull, map[string]string{userIDParam: id.String()}, nil)
}
