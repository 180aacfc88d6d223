package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"importer/internal/domain"
	"importer/internal/sheet"
)

// Column alias orders, tried left to right. Vendors disagree on header
// spelling; " Amount " really does appear in the wild.
var (
	nameAliases   = []string{"Name", "Full Name", "Full_Name"}
	emailAliases  = []string{"email", "email address"}
	amountAliases = []string{"Amount", "Total Paid", " Amount "}
	dateAliases   = []string{"timestamp", "date", "received date"}
	txnAliases    = []string{"Transaction ID", "transaction id"}
)

// Overrides are the fixed classification values an import template supplies.
// A zero field defers to the row's own column.
type Overrides struct {
	Batch  string
	Source string
	Method string
	Fund   string
}

// Record is one normalized row: the donor's raw name and email, and the
// donation with every field populated except the payer id, which identity
// resolution fills in.
type Record struct {
	FullName string
	Email    string
	Donation domain.Donation
}

// Normalize maps one raw spreadsheet or feed row into a Record. A missing
// required field (name, amount, any classification, date) fails the row with
// ErrRowInvalid; the caller skips the row, not the run.
func Normalize(row sheet.Row, ov Overrides) (*Record, error) {
	fullName, ok := lookup(row, nameAliases...)
	if !ok {
		first, okFirst := lookup(row, "First Name")
		last, okLast := lookup(row, "Last Name")
		if !okFirst || !okLast {
			return nil, fmt.Errorf("%w: full name", domain.ErrRowInvalid)
		}
		fullName = first + " " + last
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, fmt.Errorf("%w: full name", domain.ErrRowInvalid)
	}

	// Absence of an email is tolerated; resolution falls back to the name.
	email, _ := lookup(row, emailAliases...)

	rawAmount, ok := lookup(row, amountAliases...)
	if !ok {
		return nil, fmt.Errorf("%w: amount", domain.ErrRowInvalid)
	}
	cents, err := parseCents(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", domain.ErrRowInvalid, rawAmount)
	}

	batch, err := classify(row, ov.Batch, "Batch")
	if err != nil {
		return nil, err
	}
	source, err := classify(row, ov.Source, "Payment source")
	if err != nil {
		return nil, err
	}
	method, err := classify(row, ov.Method, "Payment method")
	if err != nil {
		return nil, err
	}
	fund, err := classify(row, ov.Fund, "Fund")
	if err != nil {
		return nil, err
	}

	rawDate, ok := lookup(row, dateAliases...)
	if !ok {
		return nil, fmt.Errorf("%w: date", domain.ErrRowInvalid)
	}
	received, err := parseDate(rawDate)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", domain.ErrRowInvalid, rawDate)
	}

	txn, _ := lookup(row, txnAliases...)

	return &Record{
		FullName: strings.TrimSpace(fullName),
		Email:    strings.TrimSpace(email),
		Donation: domain.Donation{
			ReceivedAt:    received,
			Source:        source,
			Method:        method,
			Batch:         batch,
			AmountCents:   cents,
			Fund:          fund,
			TransactionID: txn,
		},
	}, nil
}

// lookup returns the first alias present in the row with a non-empty value.
func lookup(row sheet.Row, aliases ...string) (string, bool) {
	for _, alias := range aliases {
		if v, ok := row[alias]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// classify picks a classification value: the template override when set,
// otherwise the row's own column.
func classify(row sheet.Row, override, column string) (string, error) {
	if override != "" {
		return override, nil
	}
	if v, ok := lookup(row, column); ok {
		return strings.TrimSpace(v), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrRowInvalid, strings.ToLower(column))
}

// parseCents converts a major-currency-unit amount to integer cents,
// rounding: "12.50" becomes 1250.
func parseCents(raw string) (int64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	cents := int64(math.Round(amount * 100))
	if cents <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", raw)
	}
	return cents, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"January 2, 2006",
}

// parseDate interprets a cell as either a spreadsheet serial day-count or a
// date string. Date-only exports land a day early once parsed, so a day is
// added to compensate, matching the historical imports.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return fromSerial(serial).AddDate(0, 0, 1), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.AddDate(0, 0, 1), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// serialEpoch is the spreadsheet serial-date epoch. Day 1 is 1900-01-01, and
// the epoch sits at 1899-12-30 to absorb the format's historical phantom leap
// day.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// fromSerial converts a serial day-count (with a fractional time-of-day part)
// to an instant.
func fromSerial(serial float64) time.Time {
	days := math.Floor(serial)
	frac := serial - days
	seconds := math.Round(frac * 24 * 60 * 60)
	return serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second)
}
