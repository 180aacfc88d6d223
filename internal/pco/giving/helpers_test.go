package giving

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"importer/internal/notify"
	"importer/internal/pco"
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

func newTestClient(t *testing.T, bus *notify.Bus, rt roundTripFunc) *pco.Client {
	t.Helper()
	client, err := pco.NewClient(pco.Options{
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
