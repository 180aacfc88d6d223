package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"importer/internal/infra"
	"importer/internal/notify"
	"importer/internal/paypal"
	"importer/internal/pco/giving"
	"importer/internal/pco/people"
	"importer/internal/sheet"
)

const busSource = "engine"

// Engine drives the pipeline for one run: normalize each row, resolve the
// payer, submit the donation. Rows are processed strictly in sequence, since
// two racing lookups could both miss the batch cache and double-create. Every
// failure is reported then skipped, so one bad row never stops the run.
// There is no rollback: a batch created for a row that later fails stays in
// the remote system.
type Engine struct {
	bus       *notify.Bus
	people    *people.Service
	donations *giving.Donations
	logger    *infra.Logger
}

func NewEngine(bus *notify.Bus, p *people.Service, d *giving.Donations, logger *infra.Logger) *Engine {
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Engine{bus: bus, people: p, donations: d, logger: logger}
}

// Setup loads the reference caches. Must run once before the first row.
func (e *Engine) Setup(ctx context.Context) error {
	return e.donations.Setup(ctx)
}

// Sync pushes every row through the pipeline. The returned count is the
// number of donations actually imported.
func (e *Engine) Sync(ctx context.Context, rows []sheet.Row, ov Overrides) (int, error) {
	imported := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if e.syncRow(ctx, row, ov) {
			imported++
		} else {
			e.logger.Debug().Int("row", i).Msg("engine: row skipped")
		}
	}
	return imported, nil
}

func (e *Engine) syncRow(ctx context.Context, row sheet.Row, ov Overrides) bool {
	rec, err := Normalize(row, ov)
	if err != nil {
		e.bus.ReportErr(busSource, "error encountered during donation creation", notify.StatusDonationFailed, err)
		return false
	}

	payerID, err := e.people.Resolve(ctx, rec.FullName, rec.Email)
	if err != nil {
		e.bus.ReportErr(busSource, "error encountered during payer resolution", notify.StatusDonationFailed, err)
		return false
	}
	rec.Donation.PayerID = payerID

	if _, err := e.donations.Submit(ctx, rec.Donation); err != nil {
		e.bus.ReportErr(busSource, "error encountered during donation upload", notify.StatusDonationFailed, err)
		return false
	}

	e.bus.Report(busSource, "successfully uploaded donation", notify.StatusDonationImported)
	return true
}

// SyncFeed adapts payment-feed transactions to rows and runs them through
// the same pipeline as spreadsheet imports.
func (e *Engine) SyncFeed(ctx context.Context, transactions []paypal.Transaction, ov Overrides) (int, error) {
	rows := make([]sheet.Row, 0, len(transactions))
	for _, t := range transactions {
		rows = append(rows, sheet.Row{
			"Name":           t.FullName,
			"email":          t.Email,
			"Amount":         t.Amount,
			"date":           t.Date,
			"Fund":           t.Fund,
			"Transaction ID": t.TransactionID,
		})
	}
	e.bus.Report(busSource, fmt.Sprintf("syncing %d feed transactions", len(rows)), notify.StatusInProgress)
	return e.Sync(ctx, rows, ov)
}
