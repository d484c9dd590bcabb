package conversions

import (
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// SourceTimeLayout is the wall-clock format sources use for local timestamps.
const SourceTimeLayout = "2006-01-02 15:04:05"

// Key identifies a conversion within the ledger. Order ids are only unique
// inside a single source.
type Key struct {
	Source  string
	OrderID string
}

// ConversionEvent is the canonical shape every adapter normalizes into.
type ConversionEvent struct {
	SourceName   string
	OrderID      string
	TrackingID   string
	EventID      string
	DealName     string
	RewardAmount decimal.Decimal
	Status       enums.ConversionStatus
	OccurredAt   time.Time
}

// Key returns the dedup key for the event.
func (e ConversionEvent) Key() Key {
	return Key{Source: e.SourceName, OrderID: e.OrderID}
}

// NormalizeSource lowercases and trims a source name so lookups and dedup
// keys agree regardless of how the caller spelled it.
func NormalizeSource(source string) string {
	return strings.ToLower(strings.TrimSpace(source))
}

// ParseReward parses a currency amount and fixes it to two decimal places.
func ParseReward(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	return value.Round(2), nil
}
