package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/convtrack-backend/internal/cron"
	"github.com/angelmondragon/convtrack-backend/internal/wiring"
	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
)

const serviceName = "cron-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rt, err := wiring.Boot(ctx, serviceName)
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "cron worker failed to start", err)
		stop()
		os.Exit(1)
	}

	err = run(ctx, rt)
	stop()
	if closeErr := rt.Close(); closeErr != nil {
		rt.Logger.Error(context.Background(), "closing clients", closeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	rt.Logger.Info(context.Background(), "cron worker shut down")
}

func run(ctx context.Context, rt *wiring.Runtime) error {
	cfg := rt.Config
	if !rt.Components.Polling {
		return fmt.Errorf("cron worker needs a poll source: %s is not set", config.EnvPollBaseURL)
	}

	pollJob, err := cron.NewConversionPollJob(cron.ConversionPollJobParams{
		Logger: rt.Logger,
		Poller: rt.Components.Ingest,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(pollJob)
	if err != nil {
		return err
	}
	// The lock lives one interval so a crashed holder frees the next cycle.
	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey(lockKey(cfg.App.Env)), cfg.Poller.Interval)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     rt.Logger,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Poller.Interval,
		JobTimeout: cfg.Poller.JobTimeout,
	})
	if err != nil {
		return err
	}

	ctx = rt.Logger.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"service":     cfg.Service.Kind,
		"interval":    cfg.Poller.Interval.String(),
		"job_timeout": cfg.Poller.JobTimeout.String(),
	})
	rt.Logger.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
