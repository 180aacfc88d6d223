package people

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"importer/internal/domain"
	"importer/internal/notify"
	"importer/internal/pco"
)

const busSource = "people"

// Service maps donor names and emails to stable remote person records,
// creating records when resolution misses.
type Service struct {
	client *pco.Client
	bus    *notify.Bus
}

func NewService(client *pco.Client, bus *notify.Bus) *Service {
	return &Service{client: client, bus: bus}
}

// SearchByEmail returns the ids of every person with the exact email address,
// de-duplicated (the same address can be attached to one profile twice). A
// failed query degrades to whatever was found so the caller can fall back to
// creation; the failure itself is reported on the bus by the client.
func (s *Service) SearchByEmail(ctx context.Context, address string) []string {
	path := "people/v2/emails?where[address]=" + url.QueryEscape(address)
	items, err := s.client.FetchAll(ctx, path)
	if err != nil {
		items = nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		var rels struct {
			Person struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"person"`
		}
		if err := json.Unmarshal(item.Relationships, &rels); err != nil {
			continue
		}
		if id := rels.Person.Data.ID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// SearchByName returns the ids of every person matching the full name.
func (s *Service) SearchByName(ctx context.Context, fullName string) []string {
	path := "people/v2/people?where[search_name]=" + url.QueryEscape(fullName)
	items, err := s.client.FetchAll(ctx, path)
	if err != nil {
		items = nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Get fetches one person's profile. A failed fetch degrades to nil.
func (s *Service) Get(ctx context.Context, id string) (*domain.PersonIdentity, error) {
	doc, err := s.client.FetchOne(ctx, "people/v2/people/"+id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	var attrs struct {
		FirstName string `json:"first_name"`
		GivenName string `json:"given_name"`
		LastName  string `json:"last_name"`
		Child     bool   `json:"child"`
	}
	if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("people: decode person %s: %w", id, err)
	}
	return &domain.PersonIdentity{
		ID:        id,
		FirstName: attrs.FirstName,
		GivenName: attrs.GivenName,
		LastName:  attrs.LastName,
		Minor:     attrs.Child,
	}, nil
}

// placeholderBirthdate is stamped on created records so they are never
// mistaken for fully entered profiles.
const placeholderBirthdate = "1900-01-01"

// Create submits a new person record and, when an email is supplied, attaches
// it with a secondary request. Returns the new person id.
func (s *Service) Create(ctx context.Context, name domain.ParsedName, email string) (string, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type": "Person",
			"attributes": map[string]any{
				"first_name":         name.First,
				"nickname":           "",
				"middle_name":        name.Middle,
				"last_name":          name.Last,
				"birthdate":          placeholderBirthdate,
				"child":              "false",
				"anniversary":        "",
				"gender":             "",
				"grade":              "",
				"status":             "",
				"site_administrator": false,
			},
		},
	}

	doc, err := s.client.Create(ctx, "people/v2/people", payload, "person")
	if err != nil {
		return "", err
	}
	id := doc.Data.ID

	if email != "" {
		if err := s.AttachEmail(ctx, id, email); err != nil {
			return "", err
		}
	}
	return id, nil
}

// AttachEmail adds an email address to an existing person record.
func (s *Service) AttachEmail(ctx context.Context, id, email string) error {
	payload := map[string]any{
		"data": map[string]any{
			"type": "Email",
			"attributes": map[string]any{
				"address":  email,
				"location": "primary",
				"primary":  false,
			},
		},
	}
	_, err := s.client.Create(ctx, "people/v2/people/"+id+"/emails", payload, "email")
	return err
}

// SplitName parses a free-form full name on whitespace. One token is taken as
// a last name only, two as first and last, three or more as first, middle and
// last with extra tokens ignored. Western ordering only; titles and suffixes
// are not recognized.
func SplitName(fullName string) domain.ParsedName {
	tokens := strings.Fields(fullName)
	switch len(tokens) {
	case 0:
		return domain.ParsedName{}
	case 1:
		return domain.ParsedName{Last: tokens[0]}
	case 2:
		return domain.ParsedName{First: tokens[0], Last: tokens[1]}
	default:
		return domain.ParsedName{First: tokens[0], Middle: tokens[1], Last: tokens[2]}
	}
}
