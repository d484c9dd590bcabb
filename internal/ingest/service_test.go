package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/clicks"
	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/internal/ledger"
	"github.com/angelmondragon/convtrack-backend/pkg/aspclient"
	"github.com/angelmondragon/convtrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/signature"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var tokyo = time.FixedZone("UTC+09:00", 9*3600)

type fakeFetcher struct {
	fetchFn func(ctx context.Context, from, to time.Time) ([]aspclient.Record, error)
}

func (f fakeFetcher) FetchConversions(ctx context.Context, from, to time.Time) ([]aspclient.Record, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, from, to)
	}
	return nil, nil
}

type fakeGuard struct {
	claimFn  func(ctx context.Context, key conversions.Key) (bool, error)
	released []conversions.Key
}

func (f *fakeGuard) Claim(ctx context.Context, key conversions.Key) (bool, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, key)
	}
	return true, nil
}

func (f *fakeGuard) Release(_ context.Context, key conversions.Key) error {
	f.released = append(f.released, key)
	return nil
}

type fakeWriter struct {
	appendFn func(ctx context.Context, event conversions.ConversionEvent) (bool, error)
}

func (f fakeWriter) Append(ctx context.Context, event conversions.ConversionEvent) (bool, error) {
	return f.appendFn(ctx, event)
}

type harness struct {
	db      *gorm.DB
	svc     Service
	gate    *ledger.Gate
	writer  *ledger.Writer
	norm    *conversions.Normalizer
	secrets *signature.SecretResolver
	logg    *logger.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	repo := ledger.NewRepository(db)
	gate, err := ledger.NewGate(repo)
	require.NoError(t, err)
	writer, err := ledger.NewWriter(repo)
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	norm, err := conversions.NewNormalizer(conversions.NormalizerParams{
		Clicks:   clicks.NewRepository(db),
		Location: tokyo,
		Clock:    func() time.Time { return time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC) },
		Logger:   logg,
	})
	require.NoError(t, err)

	h := &harness{
		db:      db,
		gate:    gate,
		writer:  writer,
		norm:    norm,
		secrets: signature.NewSecretResolver(map[string]string{"acme": "s3cret"}),
		logg:    logg,
	}
	h.svc = h.build(t, ServiceParams{})
	return h
}

// build fills unset params from the harness defaults.
func (h *harness) build(t *testing.T, params ServiceParams) Service {
	t.Helper()
	if params.Secrets == nil {
		params.Secrets = h.secrets
	}
	if params.Normalizer == nil {
		params.Normalizer = h.norm
	}
	if params.Gate == nil {
		params.Gate = h.gate
	}
	if params.Writer == nil {
		params.Writer = h.writer
	}
	if params.Logger == nil {
		params.Logger = h.logg
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func (h *harness) countRows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.RawConversion{}).Count(&n).Error)
	return n
}

func examplePostback() conversions.PostbackPayload {
	return conversions.PostbackPayload{
		Source:   "postback",
		MemberID: "member-1",
		AdID:     "ad1",
		Time:     "2025-01-03 21:00:00",
		Price:    "5000",
		Judge:    "1",
		UniqueID: "X1",
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestHandlePostbackRecordsOnceAndAcknowledgesDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.svc.HandlePostback(ctx, examplePostback())
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, out.Status)
	assert.Equal(t, "X1", out.OrderID)

	var row models.RawConversion
	require.NoError(t, h.db.Where("order_id = ?", "X1").First(&row).Error)
	assert.Equal(t, enums.ConversionStatusApproved, row.Status)
	assert.True(t, row.RewardAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "member-1", row.TrackingID)
	assert.Equal(t, "postback", row.SourceName)
	assert.True(t, row.OccurredAt.Equal(time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)))

	out, err = h.svc.HandlePostback(ctx, examplePostback())
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, out.Status)
	assert.EqualValues(t, 1, h.countRows(t))
}

func TestHandlePostbackMissingParams(t *testing.T) {
	h := newHarness(t)
	payload := examplePostback()
	payload.UniqueID = ""

	_, err := h.svc.HandlePostback(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.EqualValues(t, 0, h.countRows(t))
}

func TestVerifyWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	body := []byte(`{"trackingId":"member-1","orderId":"O1"}`)

	require.NoError(t, h.svc.VerifyWebhook(ctx, "acme", body, "sha256="+signature.Generate(body, "s3cret")))

	err := h.svc.VerifyWebhook(ctx, "acme", body, signature.Generate(body, "wrong"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	err = h.svc.VerifyWebhook(ctx, "acme", body, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	err = h.svc.VerifyWebhook(ctx, "globex", body, signature.Generate(body, "s3cret"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))

	err = h.svc.VerifyWebhook(ctx, "globex", body, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}

func TestHandleWebhookAppliesClickOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.db.Create(&models.ClickEvent{
		EventID:    "evt-1",
		TrackingID: "member-9",
		DealID:     "deal-1",
		DealName:   "Rakuten Card",
		ClickedAt:  time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
	}).Error)

	reward := decimal.RequireFromString("1200.456")
	out, err := h.svc.HandleWebhook(ctx, conversions.WebhookPayload{
		Source:       "acme",
		TrackingID:   "member-1",
		EventID:      "evt-1",
		OrderID:      "O1",
		DealName:     "pushed name",
		RewardAmount: &reward,
		Status:       "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, out.Status)
	assert.True(t, out.Overridden)

	var row models.RawConversion
	require.NoError(t, h.db.Where("order_id = ?", "O1").First(&row).Error)
	assert.Equal(t, "member-9", row.TrackingID)
	assert.Equal(t, "Rakuten Card", row.DealName)
	assert.Equal(t, "1200.46", row.RewardAmount.StringFixed(2))
}

func TestRecordLostClaimWithoutRowAsksForRetry(t *testing.T) {
	h := newHarness(t)
	guard := &fakeGuard{claimFn: func(context.Context, conversions.Key) (bool, error) { return false, nil }}
	svc := h.build(t, ServiceParams{Guard: guard})

	out, err := svc.HandlePostback(context.Background(), examplePostback())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.EqualValues(t, 0, h.countRows(t))
}

func TestRecordLostClaimWithRowIsDuplicate(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandlePostback(context.Background(), examplePostback())
	require.NoError(t, err)

	guard := &fakeGuard{claimFn: func(context.Context, conversions.Key) (bool, error) { return false, nil }}
	svc := h.build(t, ServiceParams{Guard: guard})

	out, err := svc.HandlePostback(context.Background(), examplePostback())
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, out.Status)
	assert.EqualValues(t, 1, h.countRows(t))
}

// memoryGuard behaves like the Redis claim store, including failing calls
// made on a cancelled context.
type memoryGuard struct {
	held map[conversions.Key]bool
}

func (g *memoryGuard) Claim(ctx context.Context, key conversions.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *memoryGuard) Release(ctx context.Context, key conversions.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(g.held, key)
	return nil
}

func TestRecordCancelledWriteLeavesKeyRetryable(t *testing.T) {
	h := newHarness(t)
	guard := &memoryGuard{held: map[conversions.Key]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writes := 0
	writer := fakeWriter{appendFn: func(ctx context.Context, event conversions.ConversionEvent) (bool, error) {
		writes++
		if writes == 1 {
			cancel()
			return false, ctx.Err()
		}
		return h.writer.Append(ctx, event)
	}}
	svc := h.build(t, ServiceParams{Guard: guard, Writer: writer})

	_, err := svc.HandlePostback(ctx, examplePostback())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	assert.Empty(t, guard.held)

	out, err := svc.HandlePostback(context.Background(), examplePostback())
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, out.Status)
	assert.EqualValues(t, 1, h.countRows(t))
}

func TestRecordContinuesWhenClaimStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	guard := &fakeGuard{claimFn: func(context.Context, conversions.Key) (bool, error) {
		return false, errors.New("redis down")
	}}
	svc := h.build(t, ServiceParams{Guard: guard})

	out, err := svc.HandlePostback(context.Background(), examplePostback())
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, out.Status)
}

func TestRecordReleasesClaimOnWriteFailure(t *testing.T) {
	h := newHarness(t)
	guard := &fakeGuard{}
	writer := fakeWriter{appendFn: func(context.Context, conversions.ConversionEvent) (bool, error) {
		return false, errors.New("disk full")
	}}
	svc := h.build(t, ServiceParams{Guard: guard, Writer: writer})

	_, err := svc.HandlePostback(context.Background(), examplePostback())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	require.Len(t, guard.released, 1)
	assert.Equal(t, conversions.Key{Source: "postback", OrderID: "X1"}, guard.released[0])
}

func TestPollRequiresPoller(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Poll(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfiguration))
}

func TestPollSummarizesAndIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	existing := conversions.ConversionEvent{
		SourceName:   "asp",
		OrderID:      "A1",
		RewardAmount: decimal.NewFromInt(100),
		Status:       enums.ConversionStatusPending,
		OccurredAt:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	_, err := h.writer.Append(ctx, existing)
	require.NoError(t, err)

	now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	var gotFrom, gotTo time.Time
	poller, err := NewPoller(PollerParams{
		Fetcher: fakeFetcher{fetchFn: func(_ context.Context, from, to time.Time) ([]aspclient.Record, error) {
			gotFrom, gotTo = from, to
			return []aspclient.Record{
				{ID: "A1", ProgramName: "Card", Reward: decimal.NewFromInt(100), Status: "pending", OccurredAt: "2025-01-02 09:00:00"},
				{ID: "A2", ProgramName: "Card", Reward: decimal.NewFromInt(200), Status: "confirmed", OccurredAt: "2025-01-03 09:00:00"},
				{ID: "A3", ProgramName: "Card", Reward: decimal.NewFromInt(300), Status: "mystery", OccurredAt: "2025-01-03 10:00:00"},
				{ID: "A2", ProgramName: "Card", Reward: decimal.NewFromInt(200), Status: "confirmed", OccurredAt: "2025-01-03 09:00:00"},
				{ID: "A4", ProgramName: "Loan", Reward: decimal.NewFromInt(400), Status: "rejected", OccurredAt: "2025-01-04T01:00:00Z"},
			}, nil
		}},
		Snapshots:  h.gate,
		Source:     "ASP",
		WindowDays: 7,
		Clock:      func() time.Time { return now },
	})
	require.NoError(t, err)
	svc := h.build(t, ServiceParams{Poller: poller})

	summary, err := svc.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -7), gotFrom)
	assert.Equal(t, now, gotTo)
	assert.Equal(t, "asp", summary.Source)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 3, summary.New)
	assert.Equal(t, 2, summary.Recorded)
	assert.Equal(t, 1, summary.Errors)
	require.Error(t, summary.Err)
	assert.Contains(t, summary.Err.Error(), "A3")
	assert.EqualValues(t, 3, h.countRows(t))

	var row models.RawConversion
	require.NoError(t, h.db.Where("source_name = ? AND order_id = ?", "asp", "A4").First(&row).Error)
	assert.Equal(t, enums.ConversionStatusCancelled, row.Status)
	assert.Equal(t, "", row.TrackingID)
}

func TestPollContinuesAfterWriteFailure(t *testing.T) {
	h := newHarness(t)
	calls := 0
	writer := fakeWriter{appendFn: func(ctx context.Context, event conversions.ConversionEvent) (bool, error) {
		calls++
		if event.OrderID == "B1" {
			return false, errors.New("write timeout")
		}
		return h.writer.Append(ctx, event)
	}}
	poller, err := NewPoller(PollerParams{
		Fetcher: fakeFetcher{fetchFn: func(context.Context, time.Time, time.Time) ([]aspclient.Record, error) {
			return []aspclient.Record{
				{ID: "B1", Reward: decimal.NewFromInt(1), Status: "approved", OccurredAt: "2025-01-03 09:00:00"},
				{ID: "B2", Reward: decimal.NewFromInt(2), Status: "approved", OccurredAt: "2025-01-03 09:00:00"},
			}, nil
		}},
		Snapshots: h.gate,
		Source:    "asp",
	})
	require.NoError(t, err)
	svc := h.build(t, ServiceParams{Poller: poller, Writer: writer})

	summary, err := svc.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.Errors)
	assert.True(t, pkgerrors.IsCode(summary.Err, pkgerrors.CodeStorage))
}

func TestPollFetchFailureAbortsRun(t *testing.T) {
	h := newHarness(t)
	poller, err := NewPoller(PollerParams{
		Fetcher: fakeFetcher{fetchFn: func(context.Context, time.Time, time.Time) ([]aspclient.Record, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "upstream down")
		}},
		Snapshots: h.gate,
		Source:    "asp",
	})
	require.NoError(t, err)
	svc := h.build(t, ServiceParams{Poller: poller})

	_, err = svc.Poll(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
