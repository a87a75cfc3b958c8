package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/user_auth/internal/middleware"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/pkg/metrics"
	loggingmw "github.com/Skotchmaster/user_auth/pkg/middleware/logging"
)

const apiPrefix = "/api/v1"

type Deps struct {
	AuthHandler  *AuthHTTP
	UsersHandler *UsersHTTP
	Authorizer   *middleware.Authorizer
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// Ready reports whether the backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error

	RateLimit  float64
	RateBurst  int
	Production bool
}

// NewEcho builds the server with the shared middleware chain and every route.
func NewEcho(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.HTTPErrorHandler = ErrorHandler(d.Production)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.RequestID())
	e.Use(d.Metrics.Instrument())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit("1M"))

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
			}
		}
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	api := e.Group(apiPrefix)
	if d.RateLimit > 0 {
		api.Use(echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
			Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(d.RateLimit),
				Burst:     d.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}

	authn := d.Authorizer.Require(middleware.AnyAuthenticated())
	admin := d.Authorizer.Require(middleware.RoleIn(models.RoleAdmin))
	owner := d.Authorizer.Require(middleware.OwnerOrAdmin(userIDParam))

	auth := api.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh-token", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout, authn)

	api.GET("/users", d.UsersHandler.List, admin)
	api.POST("/users", d.UsersHandler.Create, admin)
	api.GET("/users/profile", d.UsersHandler.Profile, authn)
	api.GET(userRoute, d.UsersHandler.Get, owner)
	api.PUT(userRoute, d.UsersHandler.Replace, owner)
	api.PATCH(userRoute, d.UsersHandler.Update, owner)
	api.DELETE(userRoute, d.UsersHandler.Delete, owner)
}
