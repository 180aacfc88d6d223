package giving

import (
	"context"
	"encoding/json"
	"fmt"

	"importer/internal/domain"
	"importer/internal/notify"
	"importer/internal/pco"
)

const sourcesPath = "giving/v2/payment_sources"

// Sources caches the payment sources configured on the remote service. The
// set is closed, so an unmatched name routes to the configured fallback
// source rather than aborting the row.
type Sources struct {
	client     *pco.Client
	bus        *notify.Bus
	fallbackID string
	entries    []domain.RefEntry
}

func NewSources(client *pco.Client, bus *notify.Bus, fallbackID string) *Sources {
	return &Sources{client: client, bus: bus, fallbackID: fallbackID}
}

// Load clears the cache and rebuilds it from a full collection scan.
func (s *Sources) Load(ctx context.Context) error {
	s.entries = nil

	items, err := s.client.FetchAll(ctx, sourcesPath)
	if err != nil {
		return fmt.Errorf("giving: load sources: %w", err)
	}
	for _, item := range items {
		var attrs struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
			return fmt.Errorf("giving: decode source %s: %w", item.ID, err)
		}
		s.entries = append(s.entries, domain.RefEntry{ID: item.ID, Name: attrs.Name})
	}
	return nil
}

// Resolve returns the id of the source with the exact given name, or the
// configured fallback id on a miss.
func (s *Sources) Resolve(name string) (string, error) {
	for _, entry := range s.entries {
		if entry.Name == name {
			return entry.ID, nil
		}
	}
	if s.fallbackID == "" {
		return "", fmt.Errorf("%w: %q and no fallback source configured", domain.ErrSourceUnknown, name)
	}
	s.bus.ReportErr("giving", fmt.Sprintf("payment source %q not found, routing to fallback source %s", name, s.fallbackID),
		notify.StatusError, domain.ErrSourceUnknown)
	return s.fallbackID, nil
}
