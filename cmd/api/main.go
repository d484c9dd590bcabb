package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/convtrack-backend/api"
	"github.com/angelmondragon/convtrack-backend/api/controllers"
	"github.com/angelmondragon/convtrack-backend/api/middleware"
	"github.com/angelmondragon/convtrack-backend/api/routes"
	"github.com/angelmondragon/convtrack-backend/internal/wiring"
	"github.com/angelmondragon/convtrack-backend/pkg/instance"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rt, err := wiring.Boot(ctx, serviceName)
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "api failed to start", err)
		stop()
		os.Exit(1)
	}

	err = serve(ctx, rt)
	stop()
	if closeErr := rt.Close(); closeErr != nil {
		rt.Logger.Error(context.Background(), "closing clients", closeErr)
	}
	if err != nil {
		rt.Logger.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, rt *wiring.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	allow, err := middleware.ParseIPAllowlist(cfg.Ingestion.PostbackAllowIPs)
	if err != nil {
		return err
	}
	proxies, err := middleware.ParseIPAllowlist(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}
	if cfg.App.IsProd() && allow.Len() == 0 {
		logg.Warn(ctx, "postback allowlist is empty; every postback will be rejected")
	}

	server := api.NewServer(cfg, routes.NewRouter(cfg, logg, routes.Dependencies{
		Ingest:  rt.Components.Ingest,
		Ledger:  rt.Components.Ledger,
		Matcher: rt.Components.Matcher,
		Pingers: map[string]controllers.Pinger{
			"database": rt.DB,
			"redis":    rt.Redis,
		},
		PostbackAllow:  allow,
		TrustedProxies: proxies,
		Gatherer:       prometheus.DefaultGatherer,
	}))

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
		"polling":  rt.Components.Polling,
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
