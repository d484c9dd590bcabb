package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/convtrack-backend/pkg/enums"
)

// RawConversion is one row of the append-only conversion ledger. The eight
// business columns mirror the raw ledger schema; ID and CreatedAt are
// bookkeeping only.
type RawConversion struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	TrackingID   string                 `gorm:"column:tracking_id;not null;default:''"`
	EventID      string                 `gorm:"column:event_id;not null;default:''"`
	DealName     string                 `gorm:"column:deal_name;not null;default:''"`
	SourceName   string                 `gorm:"column:source_name;not null;uniqueIndex:raw_conversions_source_order_key,priority:1"`
	RewardAmount decimal.Decimal        `gorm:"column:reward_amount;type:numeric(12,2);not null"`
	Status       enums.ConversionStatus `gorm:"column:status;not null"`
	OrderID      string                 `gorm:"column:order_id;not null;uniqueIndex:raw_conversions_source_order_key,priority:2"`
	OccurredAt   time.Time              `gorm:"column:occurred_at;not null"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (RawConversion) TableName() string { return "raw_conversions" }
