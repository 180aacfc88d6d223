package giving

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"importer/internal/domain"
	"importer/internal/notify"
	"importer/internal/pco"
)

const fundsPath = "giving/v2/funds"

// Funds caches the closed, pre-configured set of funds on the remote service.
// Lookups compare canonicalized names so spreadsheet spellings like
// "Tithes & Offerings" match a fund stored as "tithes-offerings"; a name with
// no match at all routes to the configured fallback fund instead of failing
// the row.
type Funds struct {
	client     *pco.Client
	bus        *notify.Bus
	fallbackID string
	entries    []domain.RefEntry
}

func NewFunds(client *pco.Client, bus *notify.Bus, fallbackID string) *Funds {
	return &Funds{client: client, bus: bus, fallbackID: fallbackID}
}

// Load clears the cache and rebuilds it from a full collection scan.
func (f *Funds) Load(ctx context.Context) error {
	f.entries = nil

	items, err := f.client.FetchAll(ctx, fundsPath)
	if err != nil {
		return fmt.Errorf("giving: load funds: %w", err)
	}
	for _, item := range items {
		var attrs struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
			return fmt.Errorf("giving: decode fund %s: %w", item.ID, err)
		}
		f.entries = append(f.entries, domain.RefEntry{ID: item.ID, Name: attrs.Name})
	}
	return nil
}

// Resolve returns the id of the fund whose canonicalized name matches the
// canonicalized query. On a miss the configured fallback id is returned and
// the miss reported, since funds are managed remotely and an unmatched name
// usually means a spreadsheet typo rather than a missing fund.
func (f *Funds) Resolve(name string) (string, error) {
	want := CanonicalName(name)
	for _, entry := range f.entries {
		if CanonicalName(entry.Name) == want {
			return entry.ID, nil
		}
	}
	if f.fallbackID == "" {
		return "", fmt.Errorf("%w: %q and no fallback fund configured", domain.ErrFundUnknown, name)
	}
	f.bus.ReportErr("giving", fmt.Sprintf("fund %q not found, routing to fallback fund %s", name, f.fallbackID),
		notify.StatusError, domain.ErrFundUnknown)
	return f.fallbackID, nil
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var lower = cases.Lower(language.Und)

// CanonicalName reduces a fund name for comparison: diacritics stripped,
// non-alphanumerics dropped, runs of whitespace or dashes collapsed to a
// single dash, lowercased. "Tithes & Offerings" and "tithes-offerings" both
// reduce to "tithes-offerings".
func CanonicalName(name string) string {
	if out, _, err := transform.String(deaccent, name); err == nil {
		name = out
	}
	name = lower.String(name)

	var b strings.Builder
	sep := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			sep = true
		}
	}
	return b.String()
}
