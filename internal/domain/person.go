package domain

// PersonIdentity is the remote constituent record a donation is attributed
// to. It is created once on a resolution miss and never mutated afterward,
// except to attach an email address.
type PersonIdentity struct {
	ID        string
	FirstName string
	GivenName string
	LastName  string
	Minor     bool
}

// RefEntry is one name↔id pair in a reference cache (batch, fund or payment
// source).
type RefEntry struct {
	ID   string
	Name string
}

// ParsedName is the best-effort split of a free-form full name. The heuristic
// assumes Western "First [Middle] Last" ordering and does not handle titles
// or suffixes; callers treat it as a documented limitation, not a parser.
type ParsedName struct {
	First  string
	Middle string
	Last   string
}
