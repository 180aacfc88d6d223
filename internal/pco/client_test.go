package pco

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"importer/internal/domain"
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

func newTestClient(t *testing.T, bus *notify.Bus, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		Token:      "test-token",
		BaseURL:    "https://remote.test",
		HTTPClient: &http.Client{Transport: rt},
		Bus:        bus,
		Cooldown:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

// pageBody builds a collection page with n numbered resources.
func pageBody(start, n, total int) string {
	var b strings.Builder
	b.WriteString(`{"data":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"type":"Fund","id":"%d","attributes":{"name":"fund %d"}}`, start+i, start+i)
	}
	fmt.Fprintf(&b, `],"meta":{"count":%d,"total_count":%d}}`, n, total)
	return b.String()
}

func TestFetchAllPagesUntilTotal(t *testing.T) {
	var fetches int
	client := newTestClient(t, nil, func(r *http.Request) (*http.Response, error) {
		fetches++
		q := r.URL.Query()
		if q.Get("per_page") != "100" {
			t.Fatalf("per_page = %q, want 100", q.Get("per_page"))
		}
		switch q.Get("offset") {
		case "0":
			return jsonResponse(200, pageBody(0, 100, 250)), nil
		case "100":
			return jsonResponse(200, pageBody(100, 100, 250)), nil
		case "200":
			return jsonResponse(200, pageBody(200, 50, 250)), nil
		default:
			t.Fatalf("unexpected offset %q", q.Get("offset"))
			return nil, nil
		}
	})

	items, err := client.FetchAll(context.Background(), "giving/v2/funds")
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if fetches != 3 {
		t.Fatalf("fetches = %d, want 3", fetches)
	}
	if len(items) != 250 {
		t.Fatalf("items = %d, want 250", len(items))
	}
	if items[249].ID != "249" {
		t.Fatalf("last item id = %q, want 249", items[249].ID)
	}
}

func TestFetchAllSurfacesTruncatedScan(t *testing.T) {
	var events []notify.Event
	bus := notify.NewBus(notify.ObserverFunc(func(e notify.Event) { events = append(events, e) }))

	client := newTestClient(t, bus, func(r *http.Request) (*http.Response, error) {
		if r.URL.Query().Get("offset") == "0" {
			return jsonResponse(200, pageBody(0, 100, 250)), nil
		}
		return jsonResponse(500, `{"errors":[{"detail":"boom"}]}`), nil
	})

	items, err := client.FetchAll(context.Background(), "giving/v2/funds")
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
	if len(items) != 100 {
		t.Fatalf("accumulated items = %d, want 100", len(items))
	}
	if len(events) == 0 || events[0].Code != notify.StatusError {
		t.Fatalf("expected an error event on the bus, got %v", events)
	}
}

func TestFetchOneRetriesAfterRateLimit(t *testing.T) {
	var events []notify.Event
	bus := notify.NewBus(notify.ObserverFunc(func(e notify.Event) { events = append(events, e) }))

	var requests int
	client := newTestClient(t, bus, func(r *http.Request) (*http.Response, error) {
		requests++
		if requests == 1 {
			return jsonResponse(http.StatusTooManyRequests, `{}`), nil
		}
		return jsonResponse(200, `{"data":{"type":"Person","id":"42","attributes":{"first_name":"Jane"}}}`), nil
	})

	doc, err := client.FetchOne(context.Background(), "people/v2/people/42")
	if err != nil {
		t.Fatalf("FetchOne returned error: %v", err)
	}
	if doc == nil || doc.Data.ID != "42" {
		t.Fatalf("doc = %+v, want person 42", doc)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want exactly one retry after the cooldown", requests)
	}

	var progress int
	for _, e := range events {
		if e.Code == notify.StatusInProgress {
			progress++
		}
	}
	if progress != 1 {
		t.Fatalf("in-progress events = %d, want 1", progress)
	}
}

func TestFetchOneDegradesToAbsent(t *testing.T) {
	var events []notify.Event
	bus := notify.NewBus(notify.ObserverFunc(func(e notify.Event) { events = append(events, e) }))

	client := newTestClient(t, bus, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(404, `{}`), nil
	})

	doc, err := client.FetchOne(context.Background(), "people/v2/people/404")
	if err != nil {
		t.Fatalf("FetchOne returned error: %v", err)
	}
	if doc != nil {
		t.Fatalf("doc = %+v, want nil", doc)
	}
	if len(events) != 1 || events[0].Code != notify.StatusError {
		t.Fatalf("events = %v, want a single error event", events)
	}
}

func TestCreateReportsAndRaises(t *testing.T) {
	var events []notify.Event
	bus := notify.NewBus(notify.ObserverFunc(func(e notify.Event) { events = append(events, e) }))

	client := newTestClient(t, bus, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(422, `{"errors":[{"detail":"invalid"}]}`), nil
	})

	_, err := client.Create(context.Background(), "giving/v2/batches", map[string]any{}, "batch")
	if !errors.Is(err, domain.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
	if len(events) != 1 || events[0].Code != notify.StatusError {
		t.Fatalf("events = %v, want a single error event", events)
	}
}

func TestCreateSendsAuthAndBody(t *testing.T) {
	var captured *http.Request
	var body []byte
	client := newTestClient(t, nil, func(r *http.Request) (*http.Response, error) {
		captured = r
		body, _ = io.ReadAll(r.Body)
		return jsonResponse(201, `{"data":{"type":"Batch","id":"7","attributes":{"description":"b"}}}`), nil
	})

	doc, err := client.Create(context.Background(), "giving/v2/batches",
		map[string]any{"data": map[string]any{"type": "Batch"}}, "batch")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if doc.Data.ID != "7" {
		t.Fatalf("created id = %q, want 7", doc.Data.ID)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Fatalf("authorization = %q, want bearer token", got)
	}
	if !strings.Contains(string(body), `"type":"Batch"`) {
		t.Fatalf("body = %s, want Batch payload", body)
	}
}

func TestFindFirstStopsAtMatch(t *testing.T) {
	var fetches int
	client := newTestClient(t, nil, func(r *http.Request) (*http.Response, error) {
		fetches++
		switch r.URL.Query().Get("offset") {
		case "0":
			return jsonResponse(200, pageBody(0, 100, 300)), nil
		case "100":
			return jsonResponse(200, pageBody(100, 100, 300)), nil
		default:
			t.Fatalf("unexpected offset %q", r.URL.Query().Get("offset"))
			return nil, nil
		}
	})

	res, err := client.FindFirst(context.Background(), "giving/v2/donations", "&order=-received_at",
		func(r Resource) bool { return r.ID == "150" })
	if err != nil {
		t.Fatalf("FindFirst returned error: %v", err)
	}
	if res == nil || res.ID != "150" {
		t.Fatalf("res = %+v, want id 150", res)
	}
	if fetches != 2 {
		t.Fatalf("fetches = %d, want the scan to stop at the match", fetches)
	}
}
