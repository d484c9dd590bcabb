package aspclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestFetchConversionsFollowsPages(t *testing.T) {
	pages := []string{
		`{"data":[{"id":"A-1","program_name":"Rakuten Card","reward":"5000","status":"approved","occurred_at":"2025-01-03 21:00:00"}],"has_more":true}`,
		`{"data":[{"id":"A-2","program_name":"Medical Insurance","reward":8000.5,"status":"pending","occurred_at":"2025-01-04 09:00:00"}],"has_more":false}`,
	}
	var urls []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		urls = append(urls, req.URL.String())
		if req.Header.Get("X-Api-Key") != "key" {
			t.Fatalf("api key header missing")
		}
		return jsonResponse(http.StatusOK, pages[len(urls)-1]), nil
	})

	tokyo := time.FixedZone("UTC+09:00", 9*3600)
	client, err := NewClient("http://asp.test/v2/", "key",
		WithHTTPClient(&http.Client{Transport: rt}),
		WithPageSize(1),
		WithLocation(tokyo),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	from := time.Date(2024, 12, 28, 16, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 4, 16, 0, 0, 0, time.UTC)
	records, err := client.FetchConversions(context.Background(), from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	want := "http://asp.test/v2/conversions?from=2024-12-29&page=1&per_page=1&to=2025-01-05"
	if urls[0] != want {
		t.Fatalf("unexpected first URL %q", urls[0])
	}
	if !strings.Contains(urls[1], "page=2") {
		t.Fatalf("expected second page request, got %q", urls[1])
	}
	if !records[1].Reward.Equal(decimal.RequireFromString("8000.5")) {
		t.Fatalf("unexpected reward %s", records[1].Reward)
	}
}

func TestFetchConversionsUpstreamFailure(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream down"), nil
	})
	client, err := NewClient("http://asp.test", "key", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	now := time.Now()
	_, err = client.FetchConversions(context.Background(), now.Add(-time.Hour), now)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, err := client.FetchConversions(context.Background(), now, now.Add(-time.Hour)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for inverted window, got %v", err)
	}
}

func TestNewClientRequiresSettings(t *testing.T) {
	if _, err := NewClient("", "key"); err == nil {
		t.Fatal("expected base url error")
	}
	if _, err := NewClient("http://asp.test", " "); err == nil {
		t.Fatal("expected api key error")
	}
	var nilClient *Client
	if _, err := nilClient.FetchConversions(context.Background(), time.Now(), time.Now()); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
