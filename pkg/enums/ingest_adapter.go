package enums

// IngestAdapter names the entry point a conversion arrived through.
type IngestAdapter string

const (
	IngestAdapterWebhook  IngestAdapter = "webhook"
	IngestAdapterPostback IngestAdapter = "postback"
	IngestAdapterPoll     IngestAdapter = "poll"
)

func (a IngestAdapter) String() string {
	return string(a)
}
