package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal is a catalog offer. ExpectedRewardAmount is nil when the payout is not
// fixed.
type Deal struct {
	ID                   string           `gorm:"column:id;primaryKey"`
	Name                 string           `gorm:"column:name;not null"`
	ExpectedRewardAmount *decimal.Decimal `gorm:"column:expected_reward_amount;type:numeric(12,2)"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Deal) TableName() string { return "deals" }
