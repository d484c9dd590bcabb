package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/convtrack-backend/api/controllers"
	"github.com/angelmondragon/convtrack-backend/api/middleware"
	"github.com/angelmondragon/convtrack-backend/internal/ingest"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

// Dependencies are the services the API surface is built on. Nil services
// answer with an internal error instead of panicking.
type Dependencies struct {
	Ingest        ingest.Service
	Ledger        ledger.Service
	Matcher       controllers.Matcher
	Pingers       map[string]controllers.Pinger
	PostbackAllow *middleware.IPAllowlist
	Gatherer      prometheus.Gatherer

	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies *middleware.IPAllowlist
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.ClientIP(deps.TrustedProxies),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.DebugErrors(cfg.App.IsDev()),
	)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/conversions", func(r chi.Router) {
		r.Post("/webhook", controllers.ConversionWebhook(deps.Ingest, cfg.HTTP.MaxBodyBytes, logg))
		r.With(middleware.RequireAllowedIP(deps.PostbackAllow, cfg.App.IsProd(), logg)).
			Get("/postback", controllers.ConversionPostback(deps.Ingest, cfg.Ingestion.PostbackSource, logg))
		r.Post("/poll", controllers.ConversionPoll(deps.Ingest, cfg.Ingestion.PollSecret, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.HTTP.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", controllers.AdminMatchConversion(deps.Matcher, logg))
			r.Post("/batch", controllers.AdminMatchBatch(deps.Matcher, logg))
		})
		r.Route("/conversions", func(r chi.Router) {
			r.Get("/", controllers.AdminListConversions(deps.Ledger, logg))
			r.Get("/{source}/{orderId}", controllers.AdminGetConversion(deps.Ledger, logg))
			r.Get("/{source}/{orderId}/matches", controllers.AdminMatchRecorded(deps.Ledger, deps.Matcher, logg))
		})
	})

	return r
}
