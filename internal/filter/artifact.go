package filter

import (
	"path/filepath"

	"github.com/fairline/loft/pkg/datum"
)

// ArtifactCriteria defines filtering criteria for derived artifacts.
// All filters are ANDed together - an artifact must match ALL criteria to pass.
type ArtifactCriteria struct {
	SinceMs    int64                // Unix timestamp in milliseconds, 0 = no filter
	UntilMs    int64                // Unix timestamp in milliseconds, 0 = no filter
	KindGlob   string               // Glob pattern for artifact kind, empty = no filter
	Discipline string               // Exact match on producing discipline, empty = no filter
	Status     datum.ArtifactStatus // Exact match on consistency status, empty = no filter
}

// Matches returns true if the artifact matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
// Time bounds apply to the last update, not registration.
func (c *ArtifactCriteria) Matches(a *datum.Artifact) bool {
	if c.SinceMs > 0 && a.UpdatedAtMs < c.SinceMs {
		return false
	}
	if c.UntilMs > 0 && a.UpdatedAtMs > c.UntilMs {
		return false
	}

	// Kind filtering - glob pattern matching
	if c.KindGlob != "" {
		matched, err := filepath.Match(c.KindGlob, string(a.Kind))
		if err != nil || !matched {
			return false
		}
	}

	if c.Discipline != "" && a.Discipline != c.Discipline {
		return false
	}

	if c.Status != "" && a.Status != c.Status {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *ArtifactCriteria) HasFilters() bool {
	return c.SinceMs > 0 ||
		c.UntilMs > 0 ||
		c.KindGlob != "" ||
		c.Discipline != "" ||
		c.Status != ""
}
