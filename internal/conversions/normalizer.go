package conversions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
)

// ClickLookup resolves a click by its unique event id. It returns nil when no
// click matches.
type ClickLookup interface {
	FindByEventID(ctx context.Context, eventID string) (*models.ClickEvent, error)
}

// NormalizerParams wires the normalizer dependencies.
type NormalizerParams struct {
	Clicks   ClickLookup
	Location *time.Location
	Clock    func() time.Time
	Logger   *logger.Logger
}

// Normalizer turns source payloads into canonical conversion events.
type Normalizer struct {
	clicks ClickLookup
	loc    *time.Location
	now    func() time.Time
	logg   *logger.Logger
}

// Normalized is the canonical event plus what the normalizer decided on the
// way.
type Normalized struct {
	Event   ConversionEvent
	Adapter enums.IngestAdapter

	// Overridden is set when the click log replaced the pushed trackingId and
	// dealName.
	Overridden      bool
	PushedTracking  string
	PushedDealName  string
	StatusFallback  bool
	SourceStatusRaw string
}

// NewNormalizer validates dependencies and applies defaults.
func NewNormalizer(params NormalizerParams) (*Normalizer, error) {
	if params.Clicks == nil {
		return nil, errors.New("click lookup required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		clicks: params.Clicks,
		loc:    loc,
		now:    now,
		logg:   params.Logger,
	}, nil
}

// Normalize dispatches on the payload variant.
func (n *Normalizer) Normalize(ctx context.Context, payload RawPayload) (*Normalized, error) {
	switch p := payload.(type) {
	case WebhookPayload:
		return n.normalizeWebhook(ctx, p)
	case PostbackPayload:
		return n.normalizePostback(ctx, p)
	case PollRecord:
		return n.normalizePollRecord(p)
	case nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unsupported payload variant")
	}
}

func (n *Normalizer) normalizeWebhook(ctx context.Context, p WebhookPayload) (*Normalized, error) {
	source := NormalizeSource(p.Source)
	if source == "" {
		return nil, fieldError("source", "is required")
	}
	orderID := strings.TrimSpace(p.OrderID)
	if orderID == "" {
		return nil, fieldError("orderId", "is required")
	}
	if p.RewardAmount == nil {
		return nil, fieldError("rewardAmount", "is required")
	}
	reward := p.RewardAmount.Round(2)
	if reward.IsNegative() {
		return nil, fieldError("rewardAmount", "must be non-negative")
	}
	status, err := enums.ParseConversionStatus(p.Status)
	if err != nil {
		return nil, fieldError("status", "must be one of pending, approved, cancelled")
	}
	occurredAt := n.now()
	if p.OccurredAt != nil && !p.OccurredAt.IsZero() {
		occurredAt = *p.OccurredAt
	}

	out := &Normalized{
		Adapter: enums.IngestAdapterWebhook,
		Event: ConversionEvent{
			SourceName:   source,
			OrderID:      orderID,
			TrackingID:   strings.TrimSpace(p.TrackingID),
			EventID:      strings.TrimSpace(p.EventID),
			DealName:     strings.TrimSpace(p.DealName),
			RewardAmount: reward,
			Status:       status,
			OccurredAt:   occurredAt.UTC(),
		},
		SourceStatusRaw: p.Status,
	}

	if out.Event.EventID != "" {
		click, err := n.clicks.FindByEventID(ctx, out.Event.EventID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "lookup click by event id")
		}
		if click != nil {
			out.Overridden = true
			out.PushedTracking = out.Event.TrackingID
			out.PushedDealName = out.Event.DealName
			out.Event.TrackingID = click.TrackingID
			out.Event.DealName = click.DealName
		}
	}
	if out.Event.TrackingID == "" && out.Event.EventID == "" {
		return nil, fieldError("trackingId", "is required without eventId")
	}
	return out, nil
}

func (n *Normalizer) normalizePostback(ctx context.Context, p PostbackPayload) (*Normalized, error) {
	source := NormalizeSource(p.Source)
	if source == "" {
		return nil, fieldError("source", "is required")
	}
	if missing := p.Missing(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required parameters").
			WithDetails(map[string]any{"missing": missing})
	}

	occurredAt, err := time.ParseInLocation(SourceTimeLayout, p.Time, n.loc)
	if err != nil {
		return nil, fieldError(ParamTime, "must use YYYY-MM-DD HH:MM:SS")
	}
	reward, err := ParseReward(p.Price)
	if err != nil {
		return nil, fieldError(ParamPrice, "must be numeric")
	}
	if reward.IsNegative() {
		return nil, fieldError(ParamPrice, "must be non-negative")
	}

	status, known := StatusFromJudgeCode(p.Judge)
	if !known && n.logg != nil {
		ctx = n.logg.WithFields(ctx, map[string]any{
			"source":     source,
			"order_id":   p.UniqueID,
			"judge_code": p.Judge,
		})
		n.logg.Warn(ctx, "unrecognized postback judge code, recording as pending")
	}

	return &Normalized{
		Adapter: enums.IngestAdapterPostback,
		Event: ConversionEvent{
			SourceName:   source,
			OrderID:      p.UniqueID,
			TrackingID:   p.MemberID,
			DealName:     p.AdID,
			RewardAmount: reward,
			Status:       status,
			OccurredAt:   occurredAt.UTC(),
		},
		StatusFallback:  !known,
		SourceStatusRaw: p.Judge,
	}, nil
}

func (n *Normalizer) normalizePollRecord(r PollRecord) (*Normalized, error) {
	source := NormalizeSource(r.Source)
	if source == "" {
		return nil, fieldError("source", "is required")
	}
	orderID := strings.TrimSpace(r.ID)
	if orderID == "" {
		return nil, fieldError("id", "is required")
	}
	occurredAt, err := n.parseSourceTime(r.OccurredAt)
	if err != nil {
		return nil, fieldError("occurred_at", "must be a source-local or RFC 3339 timestamp")
	}
	reward := r.Reward.Round(2)
	if reward.IsNegative() {
		return nil, fieldError("reward", "must be non-negative")
	}
	status, ok := pollStatuses[strings.ToLower(strings.TrimSpace(r.Status))]
	if !ok {
		return nil, fieldError("status", "is not a recognized source status")
	}

	return &Normalized{
		Adapter: enums.IngestAdapterPoll,
		Event: ConversionEvent{
			SourceName:   source,
			OrderID:      orderID,
			DealName:     strings.TrimSpace(r.ProgramName),
			RewardAmount: reward,
			Status:       status,
			OccurredAt:   occurredAt.UTC(),
		},
		SourceStatusRaw: r.Status,
	}, nil
}

func (n *Normalizer) parseSourceTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(SourceTimeLayout, raw, n.loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

var judgeCodes = map[string]enums.ConversionStatus{
	"0": enums.ConversionStatusPending,
	"1": enums.ConversionStatusApproved,
	"2": enums.ConversionStatusCancelled,
	"9": enums.ConversionStatusCancelled,
}

// StatusFromJudgeCode maps a postback judge code onto the canonical status.
// Unknown codes map to pending and report false.
func StatusFromJudgeCode(code string) (enums.ConversionStatus, bool) {
	status, ok := judgeCodes[strings.TrimSpace(code)]
	if !ok {
		return enums.ConversionStatusPending, false
	}
	return status, true
}

var pollStatuses = map[string]enums.ConversionStatus{
	"pending":     enums.ConversionStatusPending,
	"unconfirmed": enums.ConversionStatusPending,
	"approved":    enums.ConversionStatusApproved,
	"confirmed":   enums.ConversionStatusApproved,
	"cancelled":   enums.ConversionStatusCancelled,
	"canceled":    enums.ConversionStatusCancelled,
	"rejected":    enums.ConversionStatusCancelled,
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid conversion payload").
		WithDetails(map[string]any{field: msg})
}
