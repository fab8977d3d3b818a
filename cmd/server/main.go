package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-manager/internal/config"
	apphttp "task-manager/internal/http"
	"task-manager/internal/logging"
	"task-manager/internal/password"
	"task-manager/internal/ratelimit"
	"task-manager/internal/repository/sqlite"
	"task-manager/internal/service"
	"task-manager/internal/token"
)

func main() {
	bootLogger := logrus.New()
	bootLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLogger.Fatalf("setup logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	taskRepo := sqlite.NewTaskRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := taskRepo.Init(ctx); err != nil {
		logger.Fatalf("init task repository: %v", err)
	}

	hasher, err := password.New(cfg.PasswordConfig())
	if err != nil {
		logger.Fatalf("setup password hasher: %v", err)
	}
	tokens, err := token.New(cfg.TokenConfig())
	if err != nil {
		logger.Fatalf("setup token service: %v", err)
	}

	authService, err := service.NewAuthService(userRepo, hasher, tokens, logger)
	if err != nil {
		logger.Fatalf("setup auth service: %v", err)
	}
	taskService := service.NewTaskService(taskRepo)

	limiter := ratelimit.New(cfg.RateLimitConfig())
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval, func(removed int) {
		if removed > 0 {
			logger.WithField("removed", removed).Debug("swept idle rate limit windows")
		}
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Fatalf("configure trusted proxies: %v", err)
	}

	handler := apphttp.NewHandler(authService, taskService, limiter, cfg.CORS.Origins, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
