package people

import (
	"context"
	"fmt"
	"strings"

	"importer/internal/domain"
	"importer/internal/notify"
)

// Resolve maps a donor's full name and optional email to a remote person id.
// When the email is present the query runs against email addresses, otherwise
// against the full name; either way zero matches create a new record, one
// match resolves immediately and several matches go through disambiguation.
func (s *Service) Resolve(ctx context.Context, fullName, email string) (string, error) {
	parsed := SplitName(fullName)

	var ids []string
	if email != "" {
		ids = s.SearchByEmail(ctx, email)
		s.bus.Publish(notify.Event{
			Source:  busSource,
			Message: fmt.Sprintf("searched for people with email %q", email),
			Code:    notify.StatusRead,
			Payload: ids,
		})
	} else {
		ids = s.SearchByName(ctx, fullName)
		s.bus.Publish(notify.Event{
			Source:  busSource,
			Message: fmt.Sprintf("searched for people named %q", fullName),
			Code:    notify.StatusRead,
			Payload: ids,
		})
	}

	switch len(ids) {
	case 1:
		s.bus.Report(busSource, "resolved "+fullName+" to "+ids[0], notify.StatusSuccess)
		return ids[0], nil
	case 0:
		id, err := s.Create(ctx, parsed, email)
		if err != nil {
			s.bus.ReportErr(busSource, "error creating new person for "+fullName, notify.StatusError, err)
			return "", err
		}
		s.bus.Report(busSource, "created new person "+id+" for "+fullName, notify.StatusCreated)
		return id, nil
	default:
		return s.disambiguate(ctx, ids, parsed, fullName, email)
	}
}

// disambiguate fetches the full profile of every candidate and narrows them
// down: minors are never the payer of record, a sole survivor wins, and
// otherwise the parsed name decides. Zero name matches means the identity
// cannot be located; several means duplicate profiles that only a human merge
// can fix, so no guess is made.
func (s *Service) disambiguate(ctx context.Context, ids []string, parsed domain.ParsedName, fullName, email string) (string, error) {
	var candidates []domain.PersonIdentity
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if p != nil && !p.Minor {
			candidates = append(candidates, *p)
		}
	}

	if len(candidates) == 1 {
		s.bus.Report(busSource, "resolved "+fullName+" to sole adult match "+candidates[0].ID, notify.StatusSuccess)
		return candidates[0].ID, nil
	}

	var matched []domain.PersonIdentity
	for _, p := range candidates {
		if matchesName(p, parsed) {
			matched = append(matched, p)
		}
	}

	switch len(matched) {
	case 1:
		s.bus.Report(busSource, "resolved "+fullName+" to "+matched[0].ID, notify.StatusSuccess)
		return matched[0].ID, nil
	case 0:
		err := fmt.Errorf("%w: no candidate named %q with email %q", domain.ErrIdentityNotFound, fullName, email)
		s.bus.ReportErr(busSource, "unable to locate a matching profile for "+fullName, notify.StatusError, err)
		return "", err
	default:
		err := fmt.Errorf("%w: several people named %q share email %q, merge their profiles before re-running the import",
			domain.ErrDuplicateProfile, fullName, email)
		s.bus.ReportErr(busSource, "multiple profiles match "+fullName, notify.StatusDuplicateProfile, err)
		return "", err
	}
}

// matchesName compares a candidate profile against the parsed query name,
// case-insensitively. It tolerates a "first middle" pair folded into the
// candidate's first-name field and a "first last" pair recorded as the
// query's first two tokens.
func matchesName(p domain.PersonIdentity, q domain.ParsedName) bool {
	first := strings.ToLower(p.FirstName)
	if first == "" {
		first = strings.ToLower(p.GivenName)
	}
	last := strings.ToLower(p.LastName)
	if first == "" || last == "" {
		return false
	}

	qf := strings.ToLower(q.First)
	qm := strings.ToLower(q.Middle)
	ql := strings.ToLower(q.Last)

	if (first == qf || (qm != "" && first == qf+" "+qm)) && last == ql {
		return true
	}
	return qm != "" && first+" "+last == qf+" "+qm
}
