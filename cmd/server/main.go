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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/cache"
	"github.com/iliyamo/restkit/internal/config"
	"github.com/iliyamo/restkit/internal/database"
	"github.com/iliyamo/restkit/internal/handler"
	"github.com/iliyamo/restkit/internal/logger"
	"github.com/iliyamo/restkit/internal/middleware"
	"github.com/iliyamo/restkit/internal/model"
	"github.com/iliyamo/restkit/internal/queue"
	"github.com/iliyamo/restkit/internal/record"
	"github.com/iliyamo/restkit/internal/repository"
	"github.com/iliyamo/restkit/internal/router"
	"github.com/iliyamo/restkit/internal/routes"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		zl.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db, cfg.DBDriver); err != nil {
		zl.Fatal("database migration failed", zap.Error(err))
	}

	rdb := config.NewRedisClient(zl)
	if rdb != nil {
		defer rdb.Close()
	}

	cacheCfg := config.LoadCacheConfig()
	var counts cache.Cache = cache.NewMemory(cacheCfg.CountLRUSize, cacheCfg.CountTTL)
	if rdb != nil {
		counts = cache.NewRedis(rdb, cacheCfg.CountPrefix, zl)
	}

	tokens, err := auth.New(auth.Config{
		Secret:     cfg.JWTSecret,
		Algorithm:  cfg.JWTAlgorithm,
		TTL:        cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		zl.Fatal("token auth", zap.Error(err))
	}

	qcfg := config.LoadQueueConfig()
	driver, err := queue.NewDriver(qcfg, rdb, zl)
	if err != nil {
		zl.Warn("job queue disabled", zap.Error(err))
	}

	format := record.TimestampDatetime
	if cfg.TimestampFormat == "unix" {
		format = record.TimestampUnix
	}
	deps := routes.Deps{
		Deps: handler.Deps{
			Cfg:      cfg,
			Log:      zl,
			Tokens:   tokens,
			Users:    repository.NewUserRepo(db, model.Users(cfg.BcryptCost, format), record.WithCache(counts), record.WithLogger(zl)),
			Resets:   repository.NewPasswordResetRepo(db, model.PasswordResets(), record.WithLogger(zl)),
			Remember: repository.NewTokenRepo(db, model.RememberTokens(), record.WithLogger(zl)),
			Lookup:   record.NewUniqueLookup(db),
		},
		DB:        db,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     cacheCfg,
	}
	if driver != nil {
		defer driver.Close()
		deps.Mail = queue.New(driver, zl)
	}

	rt := router.New(zl)
	routes.Register(rt, deps)
	if err := rt.Validate(); err != nil {
		zl.Fatal("route table", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl))
	e.Use(middleware.Metrics())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", handler.Healthz(db))
	rt.Mount(e, cfg.APIPrefix)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("prefix", cfg.APIPrefix))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
	zl.Info("server stopped")
}
