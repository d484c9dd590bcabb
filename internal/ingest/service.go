package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
	"github.com/angelmondragon/convtrack-backend/pkg/signature"
)

// Outcome statuses returned to sources. Both are acknowledged with 200.
const (
	StatusRecorded  = "recorded"
	StatusDuplicate = "duplicate"
)

const releaseTimeout = 5 * time.Second

// Service is the ingestion pipeline behind the three adapters.
type Service interface {
	VerifyWebhook(ctx context.Context, source string, body []byte, signatureHeader string) error
	HandleWebhook(ctx context.Context, payload conversions.WebhookPayload) (*Outcome, error)
	HandlePostback(ctx context.Context, payload conversions.PostbackPayload) (*Outcome, error)
	Poll(ctx context.Context) (*PollSummary, error)
}

// Normalizer converts raw payloads into canonical events.
type Normalizer interface {
	Normalize(ctx context.Context, payload conversions.RawPayload) (*conversions.Normalized, error)
}

// DedupGate reports whether a conversion is already recorded.
type DedupGate interface {
	IsDuplicate(ctx context.Context, key conversions.Key) (bool, error)
}

// LedgerWriter appends a conversion once per key.
type LedgerWriter interface {
	Append(ctx context.Context, event conversions.ConversionEvent) (bool, error)
}

// ClaimGuard serializes concurrent deliveries of the same key.
type ClaimGuard interface {
	Claim(ctx context.Context, key conversions.Key) (bool, error)
	Release(ctx context.Context, key conversions.Key) error
}

// SecretSource resolves per-source signing secrets.
type SecretSource interface {
	Resolve(source string) (string, error)
}

// Outcome describes what happened to one delivered conversion.
type Outcome struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	OrderID    string `json:"order_id"`
	Overridden bool   `json:"tracking_overridden,omitempty"`
}

// ServiceParams wires the ingestion service. Guard and Poller are optional:
// without a guard the ledger's unique key alone suppresses duplicates, and
// without a poller Poll reports a configuration error.
type ServiceParams struct {
	Secrets    SecretSource
	Normalizer Normalizer
	Gate       DedupGate
	Writer     LedgerWriter
	Guard      ClaimGuard
	Poller     *Poller
	Metrics    *metrics.IngestionMetrics
	Logger     *logger.Logger
}

type service struct {
	secrets    SecretSource
	normalizer Normalizer
	gate       DedupGate
	writer     LedgerWriter
	guard      ClaimGuard
	poller     *Poller
	metrics    *metrics.IngestionMetrics
	logg       *logger.Logger
}

// NewService validates dependencies and builds the ingestion service.
func NewService(params ServiceParams) (Service, error) {
	if params.Secrets == nil {
		return nil, errors.New("secret source required")
	}
	if params.Normalizer == nil {
		return nil, errors.New("normalizer required")
	}
	if params.Gate == nil {
		return nil, errors.New("dedup gate required")
	}
	if params.Writer == nil {
		return nil, errors.New("ledger writer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &service{
		secrets:    params.Secrets,
		normalizer: params.Normalizer,
		gate:       params.Gate,
		writer:     params.Writer,
		guard:      params.Guard,
		poller:     params.Poller,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// VerifyWebhook checks the HMAC signature of a pushed body. A source without
// a configured secret is a configuration error, not a bad signature.
func (s *service) VerifyWebhook(ctx context.Context, source string, body []byte, signatureHeader string) error {
	secret, err := s.secrets.Resolve(source)
	if err != nil {
		return err
	}
	if strings.TrimSpace(signatureHeader) == "" {
		s.metrics.IncConversion(enums.IngestAdapterWebhook.String(), source, metrics.OutcomeRejected)
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "signature header missing")
	}
	if !signature.Verify(body, signatureHeader, secret) {
		s.metrics.IncConversion(enums.IngestAdapterWebhook.String(), source, metrics.OutcomeRejected)
		ctx = s.logg.WithSource(ctx, source)
		s.logg.Warn(ctx, "webhook signature rejected")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}
	return nil
}

func (s *service) HandleWebhook(ctx context.Context, payload conversions.WebhookPayload) (*Outcome, error) {
	return s.ingest(ctx, payload)
}

func (s *service) HandlePostback(ctx context.Context, payload conversions.PostbackPayload) (*Outcome, error) {
	return s.ingest(ctx, payload)
}

func (s *service) ingest(ctx context.Context, payload conversions.RawPayload) (*Outcome, error) {
	adapter := payload.Adapter().String()
	normalized, err := s.normalizer.Normalize(ctx, payload)
	if err != nil {
		s.metrics.IncConversion(adapter, payload.SourceName(), metrics.OutcomeRejected)
		return nil, err
	}
	event := normalized.Event
	ctx = s.logg.WithSource(ctx, event.SourceName)
	ctx = s.logg.WithOrderID(ctx, event.OrderID)
	ctx = s.logg.WithAdapter(ctx, adapter)

	if normalized.Overridden {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"event_id":           event.EventID,
			"pushed_tracking_id": normalized.PushedTracking,
			"tracking_id":        event.TrackingID,
			"pushed_deal_name":   normalized.PushedDealName,
			"deal_name":          event.DealName,
		})
		s.logg.Info(ctx, "click log overrides pushed tracking id and deal name")
	}
	if normalized.StatusFallback {
		s.metrics.IncStatusFallback(event.SourceName, normalized.SourceStatusRaw)
	}

	outcome := &Outcome{
		Source:     event.SourceName,
		OrderID:    event.OrderID,
		Overridden: normalized.Overridden,
	}
	recorded, err := s.record(ctx, event)
	if err != nil {
		s.metrics.IncConversion(adapter, event.SourceName, metrics.OutcomeFailed)
		return nil, err
	}
	if recorded {
		outcome.Status = StatusRecorded
		s.metrics.IncConversion(adapter, event.SourceName, metrics.OutcomeRecorded)
		s.logg.Info(ctx, "conversion recorded")
	} else {
		outcome.Status = StatusDuplicate
		s.metrics.IncConversion(adapter, event.SourceName, metrics.OutcomeDuplicate)
		s.logg.Info(ctx, "duplicate conversion acknowledged")
	}
	return outcome, nil
}

// record runs gate, claim and insert. It returns false for duplicates.
func (s *service) record(ctx context.Context, event conversions.ConversionEvent) (bool, error) {
	key := event.Key()
	dup, err := s.gate.IsDuplicate(ctx, key)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, key)
		if err != nil {
			// The unique key still protects the ledger when Redis is away.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "delivery claim unavailable")
		} else if !claimed {
			return false, s.lostClaim(ctx, key)
		}
	}

	inserted, err := s.writer.Append(ctx, event)
	if err != nil {
		s.release(ctx, key)
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "append conversion")
	}
	return inserted, nil
}

// lostClaim settles a delivery whose claim is held elsewhere. Only a key
// already in the ledger is a duplicate; an in-flight or abandoned claim asks
// the source to retry.
func (s *service) lostClaim(ctx context.Context, key conversions.Key) error {
	dup, err := s.gate.IsDuplicate(ctx, key)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "delivery in progress, retry later").
		WithDetails(map[string]any{"source": key.Source, "order_id": key.OrderID})
}

// release drops the claim on a detached context so a cancelled request
// still frees the key for redelivery.
func (s *service) release(ctx context.Context, key conversions.Key) {
	if s.guard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.guard.Release(ctx, key); err != nil {
		s.logg.Error(ctx, "release delivery claim", err)
	}
}
