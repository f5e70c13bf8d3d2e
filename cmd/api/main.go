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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"canteen/internal/app"
	"canteen/internal/auth"
	"canteen/internal/config"
	"canteen/internal/handler"
	"canteen/internal/httpmiddleware"
	"canteen/internal/logger"
	"canteen/internal/qr"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	zl := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Dev: !cfg.IsProduction()})
	defer zl.Sync()

	if err := runHTTP(cfg, zl); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	comp, err := app.Build(cfg, zl)
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// With the in-memory queue nobody else can drain photo removals.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := comp.Janitor.Run(ctx); err != nil {
				zl.Error("janitor stopped", zap.Error(err))
			}
		}()
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				limiter.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	admin := auth.Issuer{
		Password: cfg.AdminPassword,
		Issuer:   cfg.JWTIssuer,
		Key:      cfg.JWTSigningKey,
		TTL:      cfg.AdminTokenTTL,
	}
	if !admin.Enabled() {
		zl.Warn("ADMIN_PASSWORD not set; admin routes are open")
	}

	h := handler.New(handler.Deps{
		Service:        comp.Service,
		Photos:         comp.Photos,
		Remover:        comp.Janitor,
		QR:             qr.New(cfg.BaseURL, 256),
		Admin:          admin,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            zl.Named("http"),
	})

	rc := handler.RouterConfig{
		Log:      zl.Named("http"),
		Limiter:  limiter,
		Resetter: comp.Service,
		Health:   map[string]handler.HealthCheck{"db": comp.DB.Healthy},

		CORSOrigins: cfg.AllowedOrigins(),
	}
	if comp.Redis != nil {
		rc.Health["redis"] = comp.Redis.Healthy
	}
	if comp.LocalPhotos != nil {
		rc.StaticDir = comp.LocalPhotos.Dir
	}
	r := handler.NewRouter(h, rc)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.String("db", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}
