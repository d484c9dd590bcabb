package matching

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sub-score weights.
const (
	TimeRangeScore         = 10
	DealNameExactScore     = 40
	DealNameSubstringScore = 20
	RewardExactScore       = 30
	RewardToleranceScore   = 15
	MaxScore               = TimeRangeScore + DealNameExactScore + RewardExactScore
)

var rewardTolerance = decimal.NewFromFloat(0.1)

// Confidence is the coarse tier derived from a score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFor maps a score onto its tier: >=90 high, 70-89 medium, else low.
func ConfidenceFor(score int) Confidence {
	switch {
	case score >= 90:
		return ConfidenceHigh
	case score >= 70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ScoreBreakdown holds the per-signal points of a candidate.
type ScoreBreakdown struct {
	TimeRange      int `json:"time_range"`
	DealNameMatch  int `json:"deal_name_match"`
	RewardMatch    int `json:"reward_match"`
	AdditionalInfo int `json:"additional_info"`
}

// Total is the candidate score.
func (b ScoreBreakdown) Total() int {
	return b.TimeRange + b.DealNameMatch + b.RewardMatch + b.AdditionalInfo
}

// ScoreTimeRange gives full credit when the click lies within window of the
// conversion in either direction.
func ScoreTimeRange(clickedAt, occurredAt time.Time, window time.Duration) int {
	if absDuration(occurredAt.Sub(clickedAt)) <= window {
		return TimeRangeScore
	}
	return 0
}

// ScoreDealName compares names case-insensitively: exact match, then
// substring in either direction. Blank names never match.
func ScoreDealName(clickDeal, conversionDeal string) int {
	a := strings.ToLower(strings.TrimSpace(clickDeal))
	b := strings.ToLower(strings.TrimSpace(conversionDeal))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return DealNameExactScore
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return DealNameSubstringScore
	}
	return 0
}

// ScoreReward compares the reported reward with the catalog expectation. A
// missing or non-positive expectation scores 0.
func ScoreReward(expected *decimal.Decimal, actual decimal.Decimal) int {
	if expected == nil || !expected.IsPositive() {
		return 0
	}
	if actual.Equal(*expected) {
		return RewardExactScore
	}
	band := expected.Mul(rewardTolerance)
	if actual.Sub(*expected).Abs().LessThanOrEqual(band) {
		return RewardToleranceScore
	}
	return 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
