// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/i18n"
	"github.com/fieldbook/ppv-settlement/internal/jobs"
	"github.com/fieldbook/ppv-settlement/internal/logger"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/middleware"
	"github.com/fieldbook/ppv-settlement/internal/router"
	"github.com/fieldbook/ppv-settlement/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Setup(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	if err := i18n.Initialize(cfg.I18n.LocalesPath, cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	redisClient, err := database.InitializeRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize redis")
	}
	var rates middleware.RateStore
	if redisClient != nil {
		defer redisClient.Close()
		rates = middleware.NewRedisRateStore(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		local := middleware.NewLocalRateStore(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		go local.Cleanup(ctx, time.Minute)
		rates = local
	}

	m := metrics.New()
	svc := services.NewContainer(db, services.NewStripeProcessor(cfg.Payment), m, cfg.Settlement)

	if cfg.Settlement.CronSpec != "" {
		scheduler := jobs.NewScheduler(svc.Scheduler, cfg.Settlement.CronSpec, 30*time.Minute)
		if err := scheduler.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start settlement scheduler")
		}
		defer scheduler.Stop()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.Initialize(db, cfg, svc, m, rates)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
