package conversions

import (
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// RawPayload is one of the source-specific payload shapes. The set of
// variants is closed; adding a source means adding a variant and a
// normalizer for it.
type RawPayload interface {
	Adapter() enums.IngestAdapter
	SourceName() string
	isRawPayload()
}

// WebhookPayload is the JSON body pushed by signing sources.
type WebhookPayload struct {
	Source       string           `json:"-"`
	TrackingID   string           `json:"trackingId" validate:"required_without=EventID,max=128"`
	OrderID      string           `json:"orderId" validate:"required,max=128"`
	EventID      string           `json:"eventId,omitempty" validate:"max=128"`
	DealName     string           `json:"dealName,omitempty" validate:"max=255"`
	RewardAmount *decimal.Decimal `json:"rewardAmount" validate:"required"`
	Status       string           `json:"status" validate:"required"`
	OccurredAt   *time.Time       `json:"occurredAt,omitempty"`
}

func (WebhookPayload) Adapter() enums.IngestAdapter { return enums.IngestAdapterWebhook }
func (p WebhookPayload) SourceName() string { return p.Source }
func (WebhookPayload) isRawPayload() {}

// Postback query parameter names.
const (
	ParamMemberID  = "paid"
	ParamAdID      = "adid"
	ParamTime      = "time"
	ParamJudgeTime = "judgetime"
	ParamPrice     = "price"
	ParamJudge     = "judge"
	ParamUniqueID  = "u"
	ParamAmount    = "amount"
)

var requiredPostbackParams = []string{
	ParamMemberID,
	ParamAdID,
	ParamTime,
	ParamPrice,
	ParamJudge,
	ParamUniqueID,
}

// PostbackPayload carries the flat query parameters of a GET postback.
type PostbackPayload struct {
	Source    string
	MemberID  string
	AdID      string
	Time      string
	JudgeTime string
	Price     string
	Judge     string
	UniqueID  string
	Amount    string
}

func (PostbackPayload) Adapter() enums.IngestAdapter { return enums.IngestAdapterPostback }
func (p PostbackPayload) SourceName() string { return p.Source }
func (PostbackPayload) isRawPayload() {}

// PostbackFromQuery reads the postback parameters off a query string.
func PostbackFromQuery(source string, values url.Values) PostbackPayload {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	return PostbackPayload{
		Source:    source,
		MemberID:  get(ParamMemberID),
		AdID:      get(ParamAdID),
		Time:      get(ParamTime),
		JudgeTime: get(ParamJudgeTime),
		Price:     get(ParamPrice),
		Judge:     get(ParamJudge),
		UniqueID:  get(ParamUniqueID),
		Amount:    get(ParamAmount),
	}
}

// Missing lists the required parameters that are absent or blank.
func (p PostbackPayload) Missing() []string {
	values := map[string]string{
		ParamMemberID: p.MemberID,
		ParamAdID:     p.AdID,
		ParamTime:     p.Time,
		ParamPrice:    p.Price,
		ParamJudge:    p.Judge,
		ParamUniqueID: p.UniqueID,
	}
	var missing []string
	for _, key := range requiredPostbackParams {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// PollRecord is one conversion as returned by a polling source API.
type PollRecord struct {
	Source      string          `json:"-"`
	ID          string          `json:"id"`
	ProgramName string          `json:"program_name"`
	Reward      decimal.Decimal `json:"reward"`
	Status      string          `json:"status"`
	OccurredAt  string          `json:"occurred_at"`
}

func (PollRecord) Adapter() enums.IngestAdapter { return enums.IngestAdapterPoll }
func (r PollRecord) SourceName() string { return r.Source }
func (PollRecord) isRawPayload() {}
