package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/Skotchmaster/user_auth/internal/cache"
	"github.com/Skotchmaster/user_auth/internal/httpserver"
	"github.com/Skotchmaster/user_auth/internal/middleware"
	"github.com/Skotchmaster/user_auth/internal/repo"
	"github.com/Skotchmaster/user_auth/internal/service"
	"github.com/Skotchmaster/user_auth/internal/tokens"
	"github.com/Skotchmaster/user_auth/pkg/config"
	"github.com/Skotchmaster/user_auth/pkg/db"
	"github.com/Skotchmaster/user_auth/pkg/events"
	"github.com/Skotchmaster/user_auth/pkg/hash"
	"github.com/Skotchmaster/user_auth/pkg/logging"
	"github.com/Skotchmaster/user_auth/pkg/metrics"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(context.Background(), logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, pingCache, closeCache, err := newCacheBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("cache init error: %v", err)
	}
	defer closeCache()

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, m)
		if err != nil {
			log.Fatalf("kafka init error: %v", err)
		}
		pub = p
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("kafka_close_failed", "error", err)
		}
	}()

	r := repo.NewGormRepo(gdb)
	store := service.NewCredentialStore(r, hash.NewBcrypt(cfg.BcryptCost))
	tok := tokens.NewService(cfg.JWTSecret, cfg.AccessTTL, r)
	apiCache := cache.New("api", backend, cfg.CacheTTL, m)

	e := httpserver.NewEcho(&httpserver.Deps{
		AuthHandler:  &httpserver.AuthHTTP{Users: store, Tokens: tok, Events: pub},
		UsersHandler: &httpserver.UsersHTTP{Users: store, Cache: apiCache, Events: pub},
		Authorizer:   middleware.NewAuthorizer(tok, store, apiCache, cfg.CacheTTL, m),
		Metrics:      m,
		Logger:       logger,
		Ready:        readiness(gdb, pingCache),
		RateLimit:    cfg.RateLimitPerSecond,
		RateBurst:    cfg.RateLimitBurst,
		Production:   cfg.IsProduction(),
	})

	go func() {
		logger.Info("server_started", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server_stopped")
}

// newCacheBackend picks Redis when REDIS_ADDR is set and a bounded in-process
// cache otherwise.
func newCacheBackend(ctx context.Context, cfg config.Config) (cache.Backend, func(context.Context) error, func(), error) {
	if cfg.RedisAddr == "" {
		mem, err := cache.NewMemoryBackend(cfg.CacheSize)
		if err != nil {
			return nil, nil, nil, err
		}
		logging.FromContext(ctx).Info("cache_backend", "kind", "memory", "size", cfg.CacheSize)
		return mem, nil, func() {}, nil
	}

	rb, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: "user_auth:",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	logging.FromContext(ctx).Info("cache_backend", "kind", "redis", "addr", cfg.RedisAddr)
	return rb, rb.Ping, func() { _ = rb.Close() }, nil
}

func readiness(gdb *gorm.DB, pingCache func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
		if pingCache != nil {
			return pingCache(ctx)
		}
		return nil
	}
}
