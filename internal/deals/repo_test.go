package deals

import (
	"context"
	"testing"

	"github.com/angelmondragon/convtrack-backend/pkg/db/dbtest"
	"github.com/angelmondragon/convtrack-backend/pkg/db/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDealByID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	expected := decimal.NewFromInt(8000)
	require.NoError(t, db.Create(&models.Deal{ID: "deal-1", Name: "Medical Insurance", ExpectedRewardAmount: &expected}).Error)
	require.NoError(t, db.Create(&models.Deal{ID: "deal-2", Name: "Open Payout"}).Error)

	got, err := repo.GetDealByID(ctx, "deal-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ExpectedRewardAmount)
	assert.True(t, got.ExpectedRewardAmount.Equal(expected))

	open, err := repo.GetDealByID(ctx, "deal-2")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Nil(t, open.ExpectedRewardAmount)

	missing, err := repo.GetDealByID(ctx, "deal-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	blank, err := repo.GetDealByID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, blank)
}
