package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"horizon/internal/interfaces/scheduler"
	"horizon/internal/shared/config"
	"horizon/internal/shared/logger"
	"horizon/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer lg.Sync()

	if cfg.IsProduction() && len(cfg.Server.AllowedHosts) == 0 {
		lg.Warn("ALLOWED_HOSTS is empty; CORS accepts any origin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Env,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, lg)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				lg.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.WarmJobs(deps.Links, deps.Aggregation),
		}, lg.Named("scheduler"))
		if err != nil {
			return err
		}
		sched.Start()
		lg.Info("scheduler started", zap.Time("next_run", sched.NextRun()))
	} else {
		lg.Info("scheduler is disabled")
	}

	handler := SetupRoutes(deps, cfg, lg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg), lg)

	<-ctx.Done()
	GracefulShutdown(srv, redirectSrv, sched, 30*time.Second, lg)
	return nil
}
