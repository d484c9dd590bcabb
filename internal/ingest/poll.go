package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	"github.com/angelmondragon/convtrack-backend/pkg/aspclient"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultPollWindowDays = 7

// RecordFetcher pulls source records for an occurrence window.
type RecordFetcher interface {
	FetchConversions(ctx context.Context, from, to time.Time) ([]aspclient.Record, error)
}

// SnapshotSource reads the recorded order ids of one source.
type SnapshotSource interface {
	Snapshot(ctx context.Context, source string) (*ledger.KeySet, error)
}

// PollerParams configures the pull adapter.
type PollerParams struct {
	Fetcher    RecordFetcher
	Snapshots  SnapshotSource
	Source     string
	WindowDays int
	Clock      func() time.Time
}

// Poller holds the pull adapter settings. Runs go through Service.Poll.
type Poller struct {
	fetcher    RecordFetcher
	snapshots  SnapshotSource
	source     string
	windowDays int
	now        func() time.Time
}

// NewPoller validates the pull adapter settings.
func NewPoller(params PollerParams) (*Poller, error) {
	if params.Fetcher == nil {
		return nil, errors.New("record fetcher required")
	}
	if params.Snapshots == nil {
		return nil, errors.New("snapshot source required")
	}
	source := conversions.NormalizeSource(params.Source)
	if source == "" {
		return nil, errors.New("poll source name required")
	}
	days := params.WindowDays
	if days <= 0 {
		days = defaultPollWindowDays
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Poller{
		fetcher:    params.Fetcher,
		snapshots:  params.Snapshots,
		source:     source,
		windowDays: days,
		now:        now,
	}, nil
}

// Window returns the look-back range ending now.
func (p *Poller) Window() (time.Time, time.Time) {
	to := p.now().UTC()
	return to.AddDate(0, 0, -p.windowDays), to
}

// PollSummary reports one poll run. Total counts fetched records and Skipped
// those already in the ledger. New is Total minus Skipped and splits into
// Recorded and Errors.
type PollSummary struct {
	Source   string    `json:"source"`
	Total    int       `json:"total"`
	New      int       `json:"new"`
	Skipped  int       `json:"skipped"`
	Recorded int       `json:"recorded"`
	Errors   int       `json:"errors"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`

	// Err joins the per-record failures of the run.
	Err error `json:"-"`
}

func (s *service) Poll(ctx context.Context) (*PollSummary, error) {
	if s.poller == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "poll source not configured")
	}
	p := s.poller
	from, to := p.Window()
	ctx = s.logg.WithSource(ctx, p.source)

	records, err := p.fetcher.FetchConversions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	existing, err := p.snapshots.Snapshot(ctx, p.source)
	if err != nil {
		return nil, err
	}

	summary := &PollSummary{Source: p.source, Total: len(records), From: from, To: to}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		orderID := strings.TrimSpace(rec.ID)
		if orderID != "" && existing.Contains(orderID) {
			summary.Skipped++
			continue
		}

		inserted, err := s.recordPolled(ctx, rec)
		switch {
		case err != nil:
			summary.Errors++
			summary.Err = multierr.Append(summary.Err, fmt.Errorf("order %q: %w", orderID, err))
		case inserted:
			summary.Recorded++
			existing.Add(orderID)
		default:
			summary.Skipped++
			existing.Add(orderID)
		}
	}
	summary.New = summary.Total - summary.Skipped

	s.metrics.AddPollRecords(p.source, "skipped", summary.Skipped)
	s.metrics.AddPollRecords(p.source, "recorded", summary.Recorded)
	s.metrics.AddPollRecords(p.source, "errors", summary.Errors)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"total":    summary.Total,
		"new":      summary.New,
		"skipped":  summary.Skipped,
		"recorded": summary.Recorded,
		"errors":   summary.Errors,
	})
	if summary.Err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("poll run finished with record errors: %v", summary.Err))
	} else {
		s.logg.Info(ctx, "poll run finished")
	}
	return summary, nil
}

// recordPolled writes one record. The snapshot stands in for the gate, and
// the insert still resolves races with concurrent pushes.
func (s *service) recordPolled(ctx context.Context, rec aspclient.Record) (bool, error) {
	adapter := enums.IngestAdapterPoll.String()
	normalized, err := s.normalizer.Normalize(ctx, conversions.PollRecord{
		Source:      s.poller.source,
		ID:          rec.ID,
		ProgramName: rec.ProgramName,
		Reward:      rec.Reward,
		Status:      rec.Status,
		OccurredAt:  rec.OccurredAt,
	})
	if err != nil {
		s.metrics.IncConversion(adapter, s.poller.source, metrics.OutcomeRejected)
		return false, err
	}
	inserted, err := s.writer.Append(ctx, normalized.Event)
	if err != nil {
		s.metrics.IncConversion(adapter, s.poller.source, metrics.OutcomeFailed)
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "append conversion")
	}
	if inserted {
		s.metrics.IncConversion(adapter, s.poller.source, metrics.OutcomeRecorded)
	} else {
		s.metrics.IncConversion(adapter, s.poller.source, metrics.OutcomeDuplicate)
	}
	return inserted, nil
}
