package giving

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"importer/internal/domain"
	"importer/internal/notify"
	"importer/internal/pco"
)

// Donations submits giving records to the remote service, translating the
// human-readable batch/fund/source/method names through the caches first.
type Donations struct {
	client *pco.Client
	bus    *notify.Bus

	Batches *Batches
	Funds   *Funds
	Sources *Sources
}

func NewDonations(client *pco.Client, bus *notify.Bus, batches *Batches, funds *Funds, sources *Sources) *Donations {
	return &Donations{client: client, bus: bus, Batches: batches, Funds: funds, Sources: sources}
}

// Setup loads the three reference caches. It must run once per import run
// before any donation is submitted.
func (d *Donations) Setup(ctx context.Context) error {
	if err := d.Batches.Load(ctx); err != nil {
		return err
	}
	if err := d.Funds.Load(ctx); err != nil {
		return err
	}
	return d.Sources.Load(ctx)
}

type donationAttributes struct {
	PaymentSourceID string `json:"payment_source_id"`
	PaymentMethod   string `json:"payment_method"`
	ReceivedAt      string `json:"received_at"`
	PersonID        string `json:"person_id"`
}

type fundRelationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type designation struct {
	Type       string `json:"type"`
	Attributes struct {
		AmountCents int64 `json:"amount_cents"`
	} `json:"attributes"`
	Relationships struct {
		Fund fundRelationship `json:"fund"`
	} `json:"relationships"`
}

type donationPayload struct {
	Data struct {
		Type          string             `json:"type"`
		Attributes    donationAttributes `json:"attributes"`
		Relationships map[string]any     `json:"relationships"`
	} `json:"data"`
	Included []designation `json:"included"`
}

// Submit resolves the donation's classification names and creates the remote
// donation with its designation. The returned string is the remote donation
// id.
func (d *Donations) Submit(ctx context.Context, don domain.Donation) (string, error) {
	if !don.Valid() {
		return "", fmt.Errorf("%w: donation not submittable", domain.ErrRowInvalid)
	}
	batchID, err := d.Batches.Resolve(ctx, don.Batch)
	if err != nil {
		return "", err
	}
	fundID, err := d.Funds.Resolve(don.Fund)
	if err != nil {
		return "", err
	}
	sourceID, err := d.Sources.Resolve(don.Source)
	if err != nil {
		return "", err
	}
	method, err := NormalizeMethod(don.Method)
	if err != nil {
		return "", err
	}

	var payload donationPayload
	payload.Data.Type = "Donation"
	payload.Data.Attributes = donationAttributes{
		PaymentSourceID: sourceID,
		PaymentMethod:   method,
		ReceivedAt:      don.ReceivedAt.UTC().Format(time.RFC3339),
		PersonID:        don.PayerID,
	}
	payload.Data.Relationships = map[string]any{}

	var des designation
	des.Type = "Designation"
	des.Attributes.AmountCents = don.AmountCents
	des.Relationships.Fund.Data.Type = "Fund"
	des.Relationships.Fund.Data.ID = fundID
	payload.Included = []designation{des}

	path := fmt.Sprintf("giving/v2/batches/%s/donations?include=designations,labels", batchID)
	doc, err := d.client.Create(ctx, path, payload, "donation")
	if err != nil {
		return "", err
	}
	return doc.Data.ID, nil
}

// MostRecentCard returns the id and received-at instant of the newest card
// donation attributed to the given payment source, or a zero value when none
// exists. Feed pulls use it to bound their date window to what has already
// been imported.
func (d *Donations) MostRecentCard(ctx context.Context, sourceID string) (string, time.Time, error) {
	res, err := d.client.FindFirst(ctx, "giving/v2/donations",
		"&where[payment_method]=card&order=-received_at",
		func(res pco.Resource) bool {
			var rels struct {
				PaymentSource struct {
					Data struct {
						ID string `json:"id"`
					} `json:"data"`
				} `json:"payment_source"`
			}
			if err := json.Unmarshal(res.Relationships, &rels); err != nil {
				return false
			}
			return rels.PaymentSource.Data.ID == sourceID
		})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("giving: most recent donation: %w", err)
	}
	if res == nil {
		return "", time.Time{}, nil
	}
	var attrs struct {
		ReceivedAt time.Time `json:"received_at"`
	}
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return "", time.Time{}, fmt.Errorf("giving: decode donation %s: %w", res.ID, err)
	}
	return res.ID, attrs.ReceivedAt, nil
}

// NormalizeMethod maps a free-form payment method to the remote vocabulary:
// cash, card or check, case-insensitively, with "cheque" accepted as check.
func NormalizeMethod(method string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "cash":
		return "cash", nil
	case "card":
		return "card", nil
	case "check", "cheque":
		return "check", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrMethodInvalid, method)
	}
}
