package pco

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"importer/internal/domain"
	"importer/internal/infra"
	"importer/internal/notify"
)

// ErrMissingCredentials indicates the client was configured without a bearer
// token or an app id/secret pair.
var ErrMissingCredentials = errors.New("pco: credentials are required")

// PageSize is the fixed number of resources requested per page.
const PageSize = 100

// DefaultCooldown is how long a call suspends after a rate-limit response
// before retrying the identical request.
const DefaultCooldown = 20 * time.Second

const busSource = "pco"

// Options configures the Planning Center API client.
type Options struct {
	BaseURL string

	// Token takes precedence; otherwise AppID/Secret are sent as basic auth.
	Token  string
	AppID  string
	Secret string

	HTTPClient     *http.Client
	Logger         *infra.Logger
	Bus            *notify.Bus
	RequestTimeout time.Duration

	// Cooldown overrides the rate-limit wait. Zero means DefaultCooldown;
	// tests shrink it.
	Cooldown time.Duration
}

// Client performs rate-limited, paginated HTTP calls against the remote
// constituent-management API.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *infra.Logger
	bus        *notify.Bus
	cooldown   time.Duration
}

// Resource is one JSON:API resource as returned inside a collection.
type Resource struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes"`
	Relationships json.RawMessage `json:"relationships"`
}

// Document is a single-resource response envelope.
type Document struct {
	Data     Resource          `json:"data"`
	Included []json.RawMessage `json:"included"`
}

// Page is one page of a collection scan.
type Page struct {
	Items      []Resource
	Count      int
	TotalCount int
}

type collection struct {
	Data []Resource `json:"data"`
	Meta struct {
		Count      int `json:"count"`
		TotalCount int `json:"total_count"`
	} `json:"meta"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	var authHeader string
	switch {
	case strings.TrimSpace(opts.Token) != "":
		authHeader = "Bearer " + strings.TrimSpace(opts.Token)
	case opts.AppID != "" && opts.Secret != "":
		authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(opts.AppID+":"+opts.Secret))
	default:
		return nil, ErrMissingCredentials
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.planningcenteronline.com"
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	bus := opts.Bus
	if bus == nil {
		bus = notify.NewBus()
	}
	return &Client{
		baseURL:    baseURL,
		authHeader: authHeader,
		httpClient: httpClient,
		logger:     logger,
		bus:        bus,
		cooldown:   cooldown,
	}, nil
}

// do issues one request and transparently retries after rate-limit responses.
// There is no bounded attempt count: every 429 suspends the call chain for
// the cooldown and replays the identical request.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	for {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("pco: build request: %w", err)
		}
		req.Header.Set("Authorization", c.authHeader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("pco: http request: %w", err)
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("pco: read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.bus.Report(busSource, "rate limited, waiting for the API to accept requests again", notify.StatusInProgress)
			c.logger.Debug().Str("path", path).Dur("cooldown", c.cooldown).Msg("pco: rate limited")
			select {
			case <-time.After(c.cooldown):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("pco: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return raw, nil
	}
}

// paged appends the pagination query to a path that may already carry one.
func paged(path string, offset int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sper_page=%d&offset=%d", path, sep, PageSize, offset)
}

// FetchPage retrieves a single page of the collection at path.
func (c *Client) FetchPage(ctx context.Context, path string, offset int) (Page, error) {
	raw, err := c.do(ctx, http.MethodGet, paged(path, offset), nil)
	if err != nil {
		return Page{}, err
	}
	var col collection
	if err := json.Unmarshal(raw, &col); err != nil {
		return Page{}, fmt.Errorf("pco: decode page: %w", err)
	}
	return Page{Items: col.Data, Count: col.Meta.Count, TotalCount: col.Meta.TotalCount}, nil
}

// FetchAll scans the collection at path page by page until the cumulative
// count reaches the reported total. A mid-scan failure returns whatever was
// accumulated together with a non-nil error, so callers never mistake a
// truncated scan for a complete one.
func (c *Client) FetchAll(ctx context.Context, path string) ([]Resource, error) {
	var items []Resource
	for offset := 0; ; {
		page, err := c.FetchPage(ctx, path, offset)
		if err != nil {
			c.bus.ReportErr(busSource, "error scanning collection at "+path, notify.StatusError, err)
			return items, fmt.Errorf("%w: scan of %s truncated at offset %d: %w", domain.ErrRequestFailed, path, offset, err)
		}
		items = append(items, page.Items...)
		offset += page.Count
		if offset >= page.TotalCount || page.Count == 0 {
			return items, nil
		}
	}
}

// FindFirst scans the collection at prefix (with postfix query conditions
// appended after the pagination parameters) and returns the first resource
// the match function accepts, or nil when the scan completes without a hit.
func (c *Client) FindFirst(ctx context.Context, prefix, postfix string, match func(Resource) bool) (*Resource, error) {
	for offset := 0; ; {
		raw, err := c.do(ctx, http.MethodGet, paged(prefix, offset)+postfix, nil)
		if err != nil {
			return nil, err
		}
		var col collection
		if err := json.Unmarshal(raw, &col); err != nil {
			return nil, fmt.Errorf("pco: decode page: %w", err)
		}
		for _, res := range col.Data {
			if match(res) {
				found := res
				return &found, nil
			}
		}
		offset += col.Meta.Count
		if offset >= col.Meta.TotalCount || col.Meta.Count == 0 {
			return nil, nil
		}
	}
}

// FetchOne retrieves a single resource document. Failures are reported on the
// bus and yield a nil document so read paths degrade instead of propagating;
// only context cancellation is returned as an error.
func (c *Client) FetchOne(ctx context.Context, path string) (*Document, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.bus.ReportErr(busSource, "error getting object at "+path, notify.StatusError, err)
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.bus.ReportErr(busSource, "error decoding object at "+path, notify.StatusError, err)
		return nil, nil
	}
	return &doc, nil
}

// Create posts a new resource. Unlike the read paths, a failure here is both
// reported and returned: writes are fatal to the caller's current operation.
func (c *Client) Create(ctx context.Context, path string, payload any, objectName string) (*Document, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("pco: encode %s payload: %w", objectName, err)
	}
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		c.bus.ReportErr(busSource, "error creating "+objectName+" at "+path, notify.StatusError, err)
		return nil, fmt.Errorf("%w: create %s: %w", domain.ErrRequestFailed, objectName, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.bus.ReportErr(busSource, "error decoding created "+objectName, notify.StatusError, err)
		return nil, fmt.Errorf("%w: decode created %s: %w", domain.ErrRequestFailed, objectName, err)
	}
	c.bus.Report(busSource, "created new "+objectName, notify.StatusCreated)
	return &doc, nil
}
