package instance

import "github.com/fairline/loft/pkg/datum"

// Health represents the derivation health of a loft instance
type Health string

const (
	// HealthConverged indicates every artifact is current
	HealthConverged Health = "Converged"

	// HealthDeriving indicates stale artifacts are awaiting recompute
	HealthDeriving Health = "Deriving"

	// HealthDegraded indicates at least one derivation failed
	HealthDegraded Health = "Degraded"

	// HealthIdle indicates the instance has no registered artifacts
	HealthIdle Health = "Idle"
)

// DetermineHealth folds artifact statuses into an instance-level health.
// A failure dominates staleness, staleness dominates convergence.
func DetermineHealth(statuses []datum.ArtifactStatus) Health {
	if len(statuses) == 0 {
		return HealthIdle
	}

	health := HealthConverged
	for _, s := range statuses {
		switch s {
		case datum.ArtifactStatusFailed:
			return HealthDegraded
		case datum.ArtifactStatusStale:
			health = HealthDeriving
		}
	}
	return health
}

// Info holds information about a discovered loft instance
type Info struct {
	Name       string `json:"name"`
	Health     Health `json:"health"`
	Parameters int    `json:"parameters"`
	Artifacts  int    `json:"artifacts"`
	Failed     int    `json:"failed"`
}
