// Package wiring assembles the ingestion and matching services shared by the
// API and the cron worker.
package wiring

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/convtrack-backend/internal/clicks"
	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/deals"
	"github.com/angelmondragon/convtrack-backend/internal/ingest"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	"github.com/angelmondragon/convtrack-backend/internal/matching"
	"github.com/angelmondragon/convtrack-backend/pkg/aspclient"
	"github.com/angelmondragon/convtrack-backend/pkg/config"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
	"github.com/angelmondragon/convtrack-backend/pkg/redis"
	"github.com/angelmondragon/convtrack-backend/pkg/signature"
)

const claimScope = "conversion"

// Components are the services built over one database connection.
type Components struct {
	Ingest  ingest.Service
	Ledger  ledger.Service
	Matcher *matching.Engine
	Metrics *metrics.IngestionMetrics
	// Polling reports whether a pull source is configured.
	Polling bool
}

// Params carries the shared clients. Redis and Registerer may be nil.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Build wires repositories, the normalizer, the dedup layers, the optional
// poller and the matching engine.
func Build(params Params) (*Components, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if params.DB == nil {
		return nil, errors.New("database required")
	}
	logg := params.Logger
	if logg == nil {
		return nil, errors.New("logger required")
	}

	loc, err := cfg.Ingestion.Location()
	if err != nil {
		return nil, err
	}

	ingestMetrics := metrics.NewIngestionMetrics(params.Registerer)
	clickRepo := clicks.NewRepository(params.DB)
	ledgerRepo := ledger.NewRepository(params.DB)

	normalizer, err := conversions.NewNormalizer(conversions.NormalizerParams{
		Clicks:   clickRepo,
		Location: loc,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	gate, err := ledger.NewGate(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("dedup gate: %w", err)
	}
	writer, err := ledger.NewWriter(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("ledger writer: %w", err)
	}

	var guard ingest.ClaimGuard
	if params.Redis != nil {
		deliveryGuard, err := ledger.NewDeliveryGuard(params.Redis, cfg.Ingestion.ClaimTTL, claimScope)
		if err != nil {
			return nil, fmt.Errorf("delivery guard: %w", err)
		}
		guard = deliveryGuard
	}

	poller, err := buildPoller(cfg, loc, gate)
	if err != nil {
		return nil, err
	}

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		Secrets:    signature.NewSecretResolver(cfg.Ingestion.SourceSecrets),
		Normalizer: normalizer,
		Gate:       gate,
		Writer:     writer,
		Guard:      guard,
		Poller:     poller,
		Metrics:    ingestMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest service: %w", err)
	}

	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	engine, err := matching.NewEngine(matching.EngineParams{
		Clicks:          clickRepo,
		Deals:           deals.NewRepository(params.DB),
		Logger:          logg,
		Metrics:         ingestMetrics,
		CandidateWindow: cfg.Matching.CandidateWindow,
		TimeRangeWindow: cfg.Matching.TimeRangeWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("matching engine: %w", err)
	}

	return &Components{
		Ingest:  ingestService,
		Ledger:  ledgerService,
		Matcher: engine,
		Metrics: ingestMetrics,
		Polling: poller != nil,
	}, nil
}

func buildPoller(cfg *config.Config, loc *time.Location, snapshots ingest.SnapshotSource) (*ingest.Poller, error) {
	if cfg.Poller.BaseURL == "" {
		return nil, nil
	}
	client, err := aspclient.NewClient(cfg.Poller.BaseURL, cfg.Poller.APIKey,
		aspclient.WithTimeout(cfg.Poller.HTTPTimeout),
		aspclient.WithPageSize(cfg.Poller.PageSize),
		aspclient.WithLocation(loc),
	)
	if err != nil {
		return nil, fmt.Errorf("source api client: %w", err)
	}
	poller, err := ingest.NewPoller(ingest.PollerParams{
		Fetcher:    client,
		Snapshots:  snapshots,
		Source:     cfg.Poller.SourceName,
		WindowDays: cfg.Poller.WindowDays,
	})
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	return poller, nil
}
