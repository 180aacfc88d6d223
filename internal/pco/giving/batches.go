package giving

import (
	"context"
	"encoding/json"
	"fmt"

	"importer/internal/domain"
	"importer/internal/notify"
	"importer/internal/pco"
)

const batchesPath = "giving/v2/batches"

// Batches caches the id/name pairs of every batch known to the remote
// service. Unlike funds and sources, batches are created per import run, so
// the cache is appended to whenever a lookup misses.
type Batches struct {
	client  *pco.Client
	bus     *notify.Bus
	entries []domain.RefEntry
}

func NewBatches(client *pco.Client, bus *notify.Bus) *Batches {
	return &Batches{client: client, bus: bus}
}

// Load clears the cache and rebuilds it from a full collection scan.
func (b *Batches) Load(ctx context.Context) error {
	b.entries = nil

	items, err := b.client.FetchAll(ctx, batchesPath)
	if err != nil {
		return fmt.Errorf("giving: load batches: %w", err)
	}
	for _, item := range items {
		var attrs struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
			return fmt.Errorf("giving: decode batch %s: %w", item.ID, err)
		}
		b.entries = append(b.entries, domain.RefEntry{ID: item.ID, Name: attrs.Description})
	}
	return nil
}

// Resolve returns the id of the batch with the given name, creating the batch
// when no cached entry matches. Batches must exist before a donation can be
// filed under them, so a creation failure propagates.
func (b *Batches) Resolve(ctx context.Context, name string) (string, error) {
	for _, entry := range b.entries {
		if entry.Name == name {
			return entry.ID, nil
		}
	}
	entry, err := b.create(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", domain.ErrBatchCreation, name, err)
	}
	return entry.ID, nil
}

// create posts a new batch using the name as its description and appends it
// to the cache.
func (b *Batches) create(ctx context.Context, name string) (domain.RefEntry, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type": "Batch",
			"attributes": map[string]any{
				"description": name,
			},
		},
	}

	doc, err := b.client.Create(ctx, batchesPath, payload, "batch")
	if err != nil {
		return domain.RefEntry{}, err
	}
	var attrs struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
		return domain.RefEntry{}, fmt.Errorf("decode created batch: %w", err)
	}

	entry := domain.RefEntry{ID: doc.Data.ID, Name: attrs.Description}
	b.entries = append(b.entries, entry)
	return entry, nil
}
