package matching

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
	"github.com/shopspring/decimal"
)

const (
	DefaultCandidateWindow = 24 * time.Hour
	DefaultTimeRangeWindow = 24 * time.Hour
)

// ClickSource reads clicks inside a time range, in log order.
type ClickSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]models.ClickEvent, error)
}

// DealCatalog looks up the expected payout of a deal. It returns nil for
// unknown deals.
type DealCatalog interface {
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)
}

// Query is the conversion being attributed.
type Query struct {
	OrderID      string          `json:"order_id" validate:"required,max=128"`
	DealName     string          `json:"deal_name" validate:"max=255"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	OccurredAt   time.Time       `json:"occurred_at" validate:"required"`
}

// Click is the API view of a candidate click.
type Click struct {
	EventID    string    `json:"event_id"`
	TrackingID string    `json:"tracking_id"`
	DealID     string    `json:"deal_id"`
	DealName   string    `json:"deal_name"`
	ClickedAt  time.Time `json:"clicked_at"`
}

// Candidate is one scored click.
type Candidate struct {
	Click          Click          `json:"click"`
	Score          int            `json:"score"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
	Confidence     Confidence     `json:"confidence"`
}

// Result lists every candidate for one conversion, best first.
type Result struct {
	OrderID      string          `json:"order_id"`
	DealName     string          `json:"deal_name"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Candidates   []Candidate     `json:"candidates"`
	BestMatch    *Candidate      `json:"best_match"`
}

// BatchResult holds the results that could be computed and how many items
// failed.
type BatchResult struct {
	Results []Result `json:"results"`
	Failed  int      `json:"failed"`
}

// EngineParams wires the matching engine.
type EngineParams struct {
	Clicks          ClickSource
	Deals           DealCatalog
	Logger          *logger.Logger
	Metrics         *metrics.IngestionMetrics
	CandidateWindow time.Duration
	TimeRangeWindow time.Duration
}

// Engine ranks historical clicks against conversions. It only reads.
type Engine struct {
	clicks          ClickSource
	deals           DealCatalog
	logg            *logger.Logger
	metrics         *metrics.IngestionMetrics
	candidateWindow time.Duration
	timeRangeWindow time.Duration
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Clicks == nil {
		return nil, errors.New("click source required")
	}
	if params.Deals == nil {
		return nil, errors.New("deal catalog required")
	}
	candidateWindow := params.CandidateWindow
	if candidateWindow <= 0 {
		candidateWindow = DefaultCandidateWindow
	}
	timeRangeWindow := params.TimeRangeWindow
	if timeRangeWindow <= 0 {
		timeRangeWindow = DefaultTimeRangeWindow
	}
	return &Engine{
		clicks:          params.Clicks,
		deals:           params.Deals,
		logg:            params.Logger,
		metrics:         params.Metrics,
		candidateWindow: candidateWindow,
		timeRangeWindow: timeRangeWindow,
	}, nil
}

// FindMatchingCandidates scores every click within the candidate window of
// q.OccurredAt and returns them best first.
func (e *Engine) FindMatchingCandidates(ctx context.Context, q Query) (*Result, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveMatch("single", time.Since(started)) }()

	return e.match(ctx, q, newDealCache(e.deals))
}

// FindBatch matches each query in order. A failing item is logged and left
// out of the results; the rest of the batch still runs.
func (e *Engine) FindBatch(ctx context.Context, queries []Query) *BatchResult {
	started := time.Now()
	defer func() { e.metrics.ObserveMatch("batch", time.Since(started)) }()

	cache := newDealCache(e.deals)
	out := &BatchResult{Results: make([]Result, 0, len(queries))}
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			out.Failed += len(queries) - len(out.Results) - out.Failed
			e.logError(ctx, q.OrderID, "batch matching cancelled", err)
			break
		}
		result, err := e.match(ctx, q, cache)
		if err != nil {
			out.Failed++
			e.logError(ctx, q.OrderID, "matching failed for conversion", err)
			continue
		}
		out.Results = append(out.Results, *result)
	}
	return out
}

func (e *Engine) match(ctx context.Context, q Query, cache *dealCache) (*Result, error) {
	if strings.TrimSpace(q.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if q.OccurredAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "occurred at is required")
	}
	occurredAt := q.OccurredAt.UTC()

	clicks, err := e.clicks.ListBetween(ctx, occurredAt.Add(-e.candidateWindow), occurredAt.Add(e.candidateWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list candidate clicks")
	}

	candidates := make([]Candidate, 0, len(clicks))
	for _, click := range clicks {
		if absDuration(occurredAt.Sub(click.ClickedAt)) > e.candidateWindow {
			continue
		}
		expected, err := cache.expectedReward(ctx, click.DealID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "lookup deal")
		}
		breakdown := ScoreBreakdown{
			TimeRange:     ScoreTimeRange(click.ClickedAt, occurredAt, e.timeRangeWindow),
			DealNameMatch: ScoreDealName(click.DealName, q.DealName),
			RewardMatch:   ScoreReward(expected, q.RewardAmount),
		}
		score := breakdown.Total()
		candidates = append(candidates, Candidate{
			Click: Click{
				EventID:    click.EventID,
				TrackingID: click.TrackingID,
				DealID:     click.DealID,
				DealName:   click.DealName,
				ClickedAt:  click.ClickedAt.UTC(),
			},
			Score:          score,
			ScoreBreakdown: breakdown,
			Confidence:     ConfidenceFor(score),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	result := &Result{
		OrderID:      q.OrderID,
		DealName:     q.DealName,
		RewardAmount: q.RewardAmount,
		OccurredAt:   occurredAt,
		Candidates:   candidates,
	}
	if len(candidates) > 0 {
		best := candidates[0]
		result.BestMatch = &best
	}
	return result, nil
}

func (e *Engine) logError(ctx context.Context, orderID, msg string, err error) {
	if e.logg == nil {
		return
	}
	ctx = e.logg.WithOrderID(ctx, orderID)
	e.logg.Error(ctx, msg, err)
}

// dealCache memoizes catalog lookups for the lifetime of one call.
type dealCache struct {
	catalog DealCatalog
	seen    map[string]*decimal.Decimal
}

func newDealCache(catalog DealCatalog) *dealCache {
	return &dealCache{catalog: catalog, seen: map[string]*decimal.Decimal{}}
}

func (c *dealCache) expectedReward(ctx context.Context, dealID string) (*decimal.Decimal, error) {
	if dealID == "" {
		return nil, nil
	}
	if v, ok := c.seen[dealID]; ok {
		return v, nil
	}
	deal, err := c.catalog.GetDealByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	var expected *decimal.Decimal
	if deal != nil {
		expected = deal.ExpectedRewardAmount
	}
	c.seen[dealID] = expected
	return expected, nil
}
