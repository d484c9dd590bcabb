package wiring

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/db"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/migrate"
	"github.com/angelmondragon/convtrack-backend/pkg/redis"
)

// Runtime is everything a long running binary starts from.
type Runtime struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Components *Components

	closers []func() error
}

// Boot loads .env and config, connects Postgres and Redis, applies dev
// migrations and builds the services. On error everything opened so far is
// closed again.
func Boot(ctx context.Context, service string) (rt *Runtime, err error) {
	if loadErr := godotenv.Load(); loadErr != nil {
		logger.New(logger.Options{ServiceName: service}).Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = service

	rt = &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if rt.DB, err = db.New(ctx, cfg.DB, rt.Logger); err != nil {
		return rt, fmt.Errorf("bootstrap database: %w", err)
	}
	rt.closers = append(rt.closers, rt.DB.Close)

	if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		return rt, fmt.Errorf("dev migrations: %w", err)
	}

	if rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger); err != nil {
		return rt, fmt.Errorf("bootstrap redis: %w", err)
	}
	rt.closers = append(rt.closers, rt.Redis.Close)

	rt.Components, err = Build(Params{
		Config:     cfg,
		Logger:     rt.Logger,
		DB:         rt.DB.DB(),
		Redis:      rt.Redis,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return rt, fmt.Errorf("wire services: %w", err)
	}
	return rt, nil
}

// Close releases clients in reverse order of opening.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, r.closers[i]())
	}
	r.closers = nil
	return errs
}
