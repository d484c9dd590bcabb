package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/convtrack-backend/internal/conversions"
	"github.com/angelmondragon/convtrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(source, orderID string, occurredAt time.Time) conversions.ConversionEvent {
	return conversions.ConversionEvent{
		SourceName:   source,
		OrderID:      orderID,
		TrackingID:   "member-1",
		DealName:     "ad1",
		RewardAmount: decimal.NewFromInt(5000),
		Status:       enums.ConversionStatusApproved,
		OccurredAt:   occurredAt,
	}
}

func TestWriterAppendIsInsertIfAbsent(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	writer, err := NewWriter(repo)
	require.NoError(t, err)
	ctx := context.Background()

	event := sampleEvent("postback", "X1", time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC))

	inserted, err := writer.Append(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = writer.Append(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same order id under another source is a different conversion.
	inserted, err = writer.Append(ctx, sampleEvent("acme", "X1", event.OccurredAt))
	require.NoError(t, err)
	assert.True(t, inserted)

	var count int64
	require.NoError(t, db.Table("raw_conversions").Count(&count).Error)
	assert.Equal(t, int64(2), count)

	row, err := repo.Get(ctx, "postback", "X1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "member-1", row.TrackingID)
	assert.Equal(t, enums.ConversionStatusApproved, row.Status)
	assert.True(t, row.RewardAmount.Equal(decimal.NewFromInt(5000)))
	assert.True(t, row.OccurredAt.Equal(event.OccurredAt))
}

func TestGateAndSnapshot(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	gate, err := NewGate(repo)
	require.NoError(t, err)
	writer, err := NewWriter(repo)
	require.NoError(t, err)
	ctx := context.Background()

	at := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"A", "B"} {
		_, err := writer.Append(ctx, sampleEvent("poll", id, at))
		require.NoError(t, err)
	}

	dup, err := gate.IsDuplicate(ctx, conversions.Key{Source: "poll", OrderID: "A"})
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = gate.IsDuplicate(ctx, conversions.Key{Source: "acme", OrderID: "A"})
	require.NoError(t, err)
	assert.False(t, dup)

	_, err = gate.IsDuplicate(ctx, conversions.Key{Source: "poll"})
	require.Error(t, err)

	keys, err := gate.Snapshot(ctx, "poll")
	require.NoError(t, err)
	assert.Equal(t, 2, keys.Len())
	assert.True(t, keys.Contains("B"))
	assert.False(t, keys.Contains("C"))
	keys.Add("C")
	assert.True(t, keys.Contains("C"))
}

func TestListPagesNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	writer, err := NewWriter(repo)
	require.NoError(t, err)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := sampleEvent("acme", fmt.Sprintf("O%d", i), base.Add(time.Duration(i)*time.Hour))
		if i == 4 {
			event.Status = enums.ConversionStatusPending
		}
		_, err := writer.Append(ctx, event)
		require.NoError(t, err)
	}
	_, err = writer.Append(ctx, sampleEvent("other", "Z", base))
	require.NoError(t, err)

	page, err := svc.List(ctx, ListParams{Source: "ACME"})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.Empty(t, page.Cursor)

	first, err := svc.List(ctx, ListParams{Source: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "O4", first.Items[0].OrderID)

	var ids []string
	params := ListParams{Source: "acme"}
	params.Limit = 2
	for {
		result, err := svc.List(ctx, params)
		require.NoError(t, err)
		for _, item := range result.Items {
			ids = append(ids, item.OrderID)
		}
		if result.Cursor == "" {
			break
		}
		params.Cursor = result.Cursor
	}
	assert.Equal(t, []string{"O4", "O3", "O2", "O1", "O0"}, ids)

	pending, err := svc.List(ctx, ListParams{Source: "acme", Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	assert.Equal(t, "O4", pending.Items[0].OrderID)

	_, err = svc.List(ctx, ListParams{Status: "paid"})
	require.Error(t, err)
}

func TestServiceGet(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	writer, err := NewWriter(repo)
	require.NoError(t, err)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = writer.Append(ctx, sampleEvent("acme", "O1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	got, err := svc.Get(ctx, conversions.Key{Source: "Acme", OrderID: "O1"})
	require.NoError(t, err)
	assert.Equal(t, "ad1", got.DealName)

	_, err = svc.Get(ctx, conversions.Key{Source: "acme", OrderID: "missing"})
	require.Error(t, err)
}
