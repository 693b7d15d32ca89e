package filter

import "github.com/fairline/loft/pkg/datum"

// ParameterCriteria defines filtering criteria for shared parameters.
// All filters are ANDed together.
type ParameterCriteria struct {
	SinceMs    int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilMs    int64  // Unix timestamp in milliseconds, 0 = no filter
	Discipline string // Exact match on owning discipline, empty = no filter
}

// Matches returns true if the parameter matches all filter criteria.
// Time bounds apply to the last committed revision, not registration.
func (c *ParameterCriteria) Matches(p *datum.Parameter) bool {
	if c.SinceMs > 0 && p.UpdatedAtMs < c.SinceMs {
		return false
	}
	if c.UntilMs > 0 && p.UpdatedAtMs > c.UntilMs {
		return false
	}
	if c.Discipline != "" && p.Discipline != c.Discipline {
		return false
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *ParameterCriteria) HasFilters() bool {
	return c.SinceMs > 0 || c.UntilMs > 0 || c.Discipline != ""
}
