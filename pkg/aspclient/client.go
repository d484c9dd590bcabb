package aspclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	dateLayout          = "2006-01-02"
	defaultPageSize     = 100
	maxPages            = 500
	errorBodyReadLimit  = 1024
	conversionsEndpoint = "conversions"
)

var (
	errAPIKeyRequired  = errors.New("conversion api key is required")
	errBaseURLRequired = errors.New("conversion api base url is required")
)

// Client pulls conversion reports from an affiliate network's reporting API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	loc        *time.Location
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithLocation sets the zone the API interprets date parameters in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewClient builds the reporting client for baseURL authenticated by apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		apiKey:     trimmedKey,
		pageSize:   defaultPageSize,
		loc:        time.UTC,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Record is one conversion as the reporting API returns it.
type Record struct {
	ID          string          `json:"id"`
	ProgramName string          `json:"program_name"`
	Reward      decimal.Decimal `json:"reward"`
	Status      string          `json:"status"`
	OccurredAt  string          `json:"occurred_at"`
}

type pageResponse struct {
	Data    []Record `json:"data"`
	HasMore bool     `json:"has_more"`
}

// FetchConversions returns every record whose occurrence date lies in
// [from, to], following pagination until the API reports no more pages.
func (c *Client) FetchConversions(ctx context.Context, from, to time.Time) ([]Record, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "conversion api client not configured")
	}
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fetch window end precedes start")
	}

	var records []Record
	for page := 1; page <= maxPages; page++ {
		resp, err := c.fetchPage(ctx, from, to, page)
		if err != nil {
			return nil, err
		}
		records = append(records, resp.Data...)
		if !resp.HasMore || len(resp.Data) == 0 {
			return records, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "conversion api returned too many pages").
		WithDetails(map[string]any{"max_pages": maxPages})
}

func (c *Client) fetchPage(ctx context.Context, from, to time.Time, page int) (*pageResponse, error) {
	query := url.Values{}
	query.Set("from", from.In(c.loc).Format(dateLayout))
	query.Set("to", to.In(c.loc).Format(dateLayout))
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(c.pageSize))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, conversionsEndpoint, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build conversions request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute conversions request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "conversions request failed")
	}

	var out pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode conversions response")
	}
	return &out, nil
}
