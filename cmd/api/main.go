package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"accounts-api/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	logger := core.ServiceLogger(base, cfg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := core.Connect(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer db.Close()

	var limiter *core.LoginLimiter
	if cfg.RedisURL != "" && cfg.LoginRateLimit > 0 {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect redis")
		}
		defer redisClient.Close()
		limiter = core.NewLoginLimiter(redisClient, cfg.LoginRateLimit, cfg.LoginRateWindow)
	} else {
		logger.Info("login rate limiting disabled")
	}

	metrics := core.NewMetrics()
	roles := core.NewRoleSet(cfg.ValidRoles)
	userRepo := core.NewPgUserRepository(db)
	tokens := core.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL())

	authService, err := core.NewRepositoryAuthService(userRepo, tokens, logger, metrics, cfg.PasswordIterations)
	if err != nil {
		logger.WithError(err).Fatal("failed to build auth service")
	}

	if err := core.BootstrapAdmin(ctx, userRepo, cfg, logger); err != nil {
		logger.WithError(err).Fatal("bootstrap admin failed")
	}

	router := core.NewRouter(cfg, core.Dependencies{
		Auth:     authService,
		Listing:  core.NewListingService(userRepo, roles, logger, metrics),
		Accounts: core.NewAccountCreator(userRepo, roles, cfg.PasswordIterations),
		Tokens:   tokens,
		Limiter:  limiter,
		Metrics:  metrics,
		Logger:   logger,
		DB:       db,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
