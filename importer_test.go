package importer

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"importer/internal/infra"
	"importer/internal/notify"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

const emptyCollection = `{"data":[],"meta":{"count":0,"total_count":0}}`

func testConfig() *infra.Config {
	return &infra.Config{
		AppEnv:          "test",
		PCOToken:        "t",
		PayPalClientID:  "id",
		PayPalSecret:    "secret",
		DefaultSourceID: "3",
	}
}

// referenceRoutes answers the cache loads and the email search every run
// performs; donation-path routes stack on top per test.
func referenceRoutes(r *http.Request) (*http.Response, bool) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/giving/v2/batches":
		return jsonResponse(200, emptyCollection), true
	case r.Method == http.MethodGet && r.URL.Path == "/giving/v2/funds":
		return jsonResponse(200, `{"data":[{"type":"Fund","id":"1","attributes":{"name":"General"}}],"meta":{"count":1,"total_count":1}}`), true
	case r.Method == http.MethodGet && r.URL.Path == "/giving/v2/payment_sources":
		return jsonResponse(200, `{"data":[{"type":"PaymentSource","id":"3","attributes":{"name":"PayPal"}}],"meta":{"count":1,"total_count":1}}`), true
	case r.Method == http.MethodGet && r.URL.Path == "/people/v2/emails":
		return jsonResponse(200, `{"data":[{"type":"Email","id":"e42","relationships":{"person":{"data":{"id":"42"}}}}],"meta":{"count":1,"total_count":1}}`), true
	case r.Method == http.MethodPost && r.URL.Path == "/giving/v2/batches":
		return jsonResponse(201, `{"data":{"type":"Batch","id":"10","attributes":{"description":"b"}}}`), true
	case r.Method == http.MethodPost && r.URL.Path == "/giving/v2/batches/10/donations":
		return jsonResponse(201, `{"data":{"type":"Donation","id":"900"}}`), true
	}
	return nil, false
}

func TestImportSheetEndToEnd(t *testing.T) {
	var events []Event
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if resp, ok := referenceRoutes(r); ok {
			return resp, nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		return nil, nil
	})

	imp, err := NewWithConfig(testConfig(), Options{
		HTTPClient: &http.Client{Transport: rt},
		Observers:  []Observer{ObserverFunc(func(e Event) { events = append(events, e) })},
	})
	if err != nil {
		t.Fatalf("NewWithConfig returned error: %v", err)
	}

	data := []byte("Name,Amount,email,date\nJane Doe,25.00,jane@x.com,2020-06-18\n")
	imported, err := imp.ImportSheet(context.Background(), data, Template{
		Name: "generic", Batch: "June import", Source: "PayPal", Method: "card", Fund: "General",
	})
	if err != nil {
		t.Fatalf("ImportSheet returned error: %v", err)
	}
	if imported != 1 {
		t.Fatalf("imported = %d, want 1", imported)
	}

	var succeeded bool
	for _, e := range events {
		if e.Code == notify.StatusDonationImported {
			succeeded = true
		}
	}
	if !succeeded {
		t.Fatalf("expected a donation-imported event, got %v", events)
	}
}

func TestPullFeedZeroSinceBoundsOnLastImport(t *testing.T) {
	lastImport := time.Now().AddDate(0, 0, -5).UTC().Truncate(time.Second)

	var feedStart string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if resp, ok := referenceRoutes(r); ok {
			return resp, nil
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/giving/v2/donations":
			return jsonResponse(200, `{"data":[{"type":"Donation","id":"801","attributes":{"received_at":"`+
				lastImport.Format(time.RFC3339)+`"},"relationships":{"payment_source":{"data":{"id":"3"}}}}],"meta":{"count":1,"total_count":1}}`), nil
		case r.Method == http.MethodPost && r.URL.Path == "/v1/oauth2/token":
			return jsonResponse(200, `{"access_token":"tok-1"}`), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v1/reporting/transactions":
			if feedStart == "" {
				feedStart = r.URL.Query().Get("start_date")
			}
			return jsonResponse(200, `{"transaction_details":[{
				"transaction_info":{"transaction_id":"TX1","transaction_initiation_date":"2021-03-01T10:30:00+0000","transaction_amount":{"value":"25.00"}},
				"payer_info":{"email_address":"jane@x.com"},
				"shipping_info":{"name":"Jane Doe"},
				"cart_info":{}
			}]}`), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		return nil, nil
	})

	imp, err := NewWithConfig(testConfig(), Options{HTTPClient: &http.Client{Transport: rt}})
	if err != nil {
		t.Fatalf("NewWithConfig returned error: %v", err)
	}

	imported, err := imp.PullFeed(context.Background(), time.Time{}, Template{
		Name: "paypal", Batch: "PayPal pull", Source: "PayPal", Method: "card",
	})
	if err != nil {
		t.Fatalf("PullFeed returned error: %v", err)
	}
	if imported != 1 {
		t.Fatalf("imported = %d, want 1", imported)
	}

	parsed, err := time.Parse(time.RFC3339, feedStart)
	if err != nil {
		t.Fatalf("start_date %q not parseable: %v", feedStart, err)
	}
	// The feed starts just past the last imported donation.
	if parsed.Before(lastImport) || parsed.After(lastImport.Add(time.Minute)) {
		t.Fatalf("feed start = %v, want just after %v", parsed, lastImport)
	}
}

func TestPullFeedWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.PayPalClientID = ""
	cfg.PayPalSecret = ""

	imp, err := NewWithConfig(cfg, Options{HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		return nil, nil
	})}})
	if err != nil {
		t.Fatalf("NewWithConfig returned error: %v", err)
	}
	if _, err := imp.PullFeed(context.Background(), time.Now(), Template{Name: "paypal"}); err == nil {
		t.Fatal("expected an error when feed credentials are absent")
	}
}
