package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"canteen/internal/app"
	"canteen/internal/config"
	"canteen/internal/logger"
	"canteen/internal/mess"
)

// Worker runs the periodic monthly reset check and drains photo removal jobs.
func main() {
	cfg := config.Load()
	zl := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Dev: !cfg.IsProduction()})
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zl.Info("shutdown signal received")
		cancel()
	}()

	comp, err := app.Build(cfg, zl)
	if err != nil {
		log.Fatalf("worker init failed: %v", err)
	}
	defer comp.Close()

	loc, _ := cfg.Location()
	cronLog := cron.PrintfLogger(zap.NewStdLog(zl.Named("cron")))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(cfg.ResetCheckSchedule, func() { checkReset(ctx, comp.Service, zl) }); err != nil {
		zl.Fatal("add reset schedule failed", zap.String("schedule", cfg.ResetCheckSchedule), zap.Error(err))
	}
	checkReset(ctx, comp.Service, zl)
	c.Start()
	zl.Info("reset check scheduled", zap.String("schedule", cfg.ResetCheckSchedule))

	if cfg.QueueBackend == "redis" {
		zl.Info("worker started, waiting for photo removal jobs")
		if err := comp.Janitor.Run(ctx); err != nil {
			zl.Error("janitor stopped", zap.Error(err))
		}
	} else {
		zl.Info("in-memory queue: photo removals run inside the api process")
		<-ctx.Done()
	}

	<-c.Stop().Done()
	zl.Info("worker stopped")
}

func checkReset(ctx context.Context, svc *mess.Service, zl *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	done, err := svc.MaybeReset(ctx)
	if err != nil {
		zl.Error("monthly reset check failed", zap.Error(err))
		return
	}
	if done {
		zl.Info("monthly reset applied")
	}
}
