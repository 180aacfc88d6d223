// Package importer synchronizes donation records from spreadsheet exports
// and a payment-processor transaction feed into a remote
// constituent-management service. It resolves each record's payer to a
// durable remote identity, translates batch/fund/payment-source names to
// remote ids through per-run caches, and submits the donations one row at a
// time with per-row error isolation.
//
// The package is the wiring facade; the machinery lives under internal/.
// Embedding applications supply the trigger (upload handler, scheduler, CLI)
// and subscribe to the notification bus for feedback.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"importer/internal/engine"
	"importer/internal/infra"
	"importer/internal/notify"
	"importer/internal/paypal"
	"importer/internal/pco"
	"importer/internal/pco/giving"
	"importer/internal/pco/people"
)

// Re-exported so callers can subscribe and define templates without
// reaching into internal packages.
type (
	Event    = notify.Event
	Observer = notify.Observer
	Template = engine.Template
)

// ObserverFunc adapts a plain function into a bus subscriber.
type ObserverFunc = notify.ObserverFunc

// LoadTemplates parses a YAML list of import templates keyed by name.
func LoadTemplates(data []byte) (map[string]Template, error) {
	return engine.LoadTemplates(data)
}

// Options tunes construction beyond what configuration provides.
type Options struct {
	// Observers receive every event of the run, in order.
	Observers []Observer

	// HTTPClient overrides the transport for both remote services.
	HTTPClient *http.Client

	// Logger defaults to a logger built from APP_ENV.
	Logger *infra.Logger
}

// Importer owns the state of one run: the bus, the caches and the resolver.
// Instances are independent; a scheduled feed pull and a manual upload run as
// separate Importers with separate caches, and nothing is shared between
// them.
type Importer struct {
	bus       *notify.Bus
	engine    *engine.Engine
	donations *giving.Donations
	feed      *paypal.Client

	// feedSourceID is the payment source feed pulls are attributed to; the
	// newest card donation under it bounds an unbounded pull.
	feedSourceID string

	logger *infra.Logger
	setup  bool
}

// New loads configuration from the environment (including a .env file when
// present) and wires up a ready-to-setup Importer.
func New(opts Options) (*Importer, error) {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig wires an Importer from explicit configuration.
func NewWithConfig(cfg *infra.Config, opts Options) (*Importer, error) {
	logger := opts.Logger
	if logger == nil {
		l := infra.NewLogger(cfg.AppEnv)
		logger = &l
	}

	bus := notify.NewBus(opts.Observers...)
	bus.Attach(notify.LogObserver(logger))

	client, err := pco.NewClient(pco.Options{
		BaseURL:        cfg.PCOBaseURL,
		Token:          cfg.PCOToken,
		AppID:          cfg.PCOAppID,
		Secret:         cfg.PCOSecret,
		HTTPClient:     opts.HTTPClient,
		Logger:         logger,
		Bus:            bus,
		RequestTimeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, err
	}

	batches := giving.NewBatches(client, bus)
	funds := giving.NewFunds(client, bus, cfg.DefaultFundID)
	sources := giving.NewSources(client, bus, cfg.DefaultSourceID)
	donations := giving.NewDonations(client, bus, batches, funds, sources)
	resolver := people.NewService(client, bus)

	var feed *paypal.Client
	if cfg.PayPalClientID != "" && cfg.PayPalSecret != "" {
		feed, err = paypal.NewClient(paypal.Options{
			ClientID:       cfg.PayPalClientID,
			Secret:         cfg.PayPalSecret,
			BaseURL:        cfg.PayPalBaseURL,
			HTTPClient:     opts.HTTPClient,
			Logger:         logger,
			RequestTimeout: cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Importer{
		bus:          bus,
		engine:       engine.NewEngine(bus, resolver, donations, logger),
		donations:    donations,
		feed:         feed,
		feedSourceID: cfg.DefaultSourceID,
		logger:       logger,
	}, nil
}

// Setup loads the batch, fund and source caches. It runs lazily on the first
// import, but callers can invoke it eagerly to fail fast.
func (imp *Importer) Setup(ctx context.Context) error {
	if imp.setup {
		return nil
	}
	if err := imp.engine.Setup(ctx); err != nil {
		return err
	}
	imp.setup = true
	return nil
}

// ImportSheet decodes the raw spreadsheet bytes with the template's decoder
// and synchronizes every row of every sheet. The returned count is the number
// of donations imported; row failures are reported on the bus and skipped.
func (imp *Importer) ImportSheet(ctx context.Context, data []byte, tpl Template) (int, error) {
	if err := imp.Setup(ctx); err != nil {
		return 0, err
	}
	dec, err := tpl.Decoder()
	if err != nil {
		return 0, err
	}
	sheets, err := dec.Decode(data)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, rows := range sheets {
		n, err := imp.engine.Sync(ctx, rows, tpl.Overrides())
		imported += n
		if err != nil {
			return imported, err
		}
	}
	imp.logger.Info().Int("imported", imported).Str("template", tpl.Name).Msg("importer: sheet import finished")
	return imported, nil
}

// PullFeed fetches payment-feed transactions since the given instant and
// synchronizes them using the template's classification defaults (typically a
// per-pull batch name, the processor's payment source and the card method).
// A zero since is bounded by the newest card donation already imported under
// the configured feed source, so repeated pulls resume where the last left
// off.
func (imp *Importer) PullFeed(ctx context.Context, since time.Time, tpl Template) (int, error) {
	if imp.feed == nil {
		return 0, errors.New("importer: payment feed credentials not configured")
	}
	if err := imp.Setup(ctx); err != nil {
		return 0, err
	}
	if since.IsZero() {
		if imp.feedSourceID == "" {
			return 0, errors.New("importer: a start time or DEFAULT_SOURCE_ID is required to bound the feed pull")
		}
		id, receivedAt, err := imp.donations.MostRecentCard(ctx, imp.feedSourceID)
		if err != nil {
			return 0, fmt.Errorf("importer: bound feed pull: %w", err)
		}
		if id == "" {
			// Nothing imported yet; pull a single window back.
			receivedAt = time.Now().AddDate(0, 0, -30)
		}
		since = receivedAt
		imp.logger.Debug().Time("since", since).Msg("importer: feed pull bounded by last imported donation")
	}
	transactions, err := imp.feed.Transactions(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("importer: pull feed: %w", err)
	}
	n, syncErr := imp.engine.SyncFeed(ctx, transactions, tpl.Overrides())
	if syncErr != nil {
		return n, syncErr
	}
	imp.logger.Info().Int("imported", n).Msg("importer: feed pull finished")
	return n, nil
}
