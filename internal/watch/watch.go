package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/fairline/loft/pkg/datum"
)

// pollInterval is how often WaitForConvergence re-reads the store.
const pollInterval = 200 * time.Millisecond

// Result summarizes the artifact population at the moment a wait completed.
type Result struct {
	Artifacts int      // Total artifacts checked
	Failed    []string // Artifacts whose last recompute failed, in ID order
	Blocked   []string // Artifacts stuck stale behind a failed input, in ID order
}

// Settled returns true if every artifact recomputed cleanly.
func (r *Result) Settled() bool {
	return len(r.Failed) == 0 && len(r.Blocked) == 0
}

// WaitForConvergence polls until no artifact is stale or behind the current
// revisions of its inputs, then returns a summary. Failed artifacts count as
// settled: they keep their last-known-good value and are only retried by a
// later pass that touches their inputs. Artifacts downstream of a failure
// also count as settled; they stay stale until the failure is fixed.
// Polls every 200ms for the specified timeout duration.
//
// Convergence must hold on two consecutive polls before it is reported. A
// freshly committed change reaches the recompute pass a moment before any
// artifact is marked stale, and a single read inside that window would
// mistake an untouched store for a settled one.
func WaitForConvergence(ctx context.Context, client *datum.Client, timeout time.Duration) (*Result, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	confirmations := 0
	for {
		result, settled, err := observe(ctx, client)
		if err != nil {
			return nil, err
		}
		if settled {
			confirmations++
			if confirmations >= 2 {
				return result, nil
			}
		} else {
			confirmations = 0
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for recomputation to settle after %v", timeout)

		case <-ticker.C:
		}
	}
}

// observe takes one snapshot of the store and reports whether every
// artifact is settled against the current revisions of its inputs.
func observe(ctx context.Context, client *datum.Client) (*Result, bool, error) {
	parameters, err := client.ListParameters(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read parameters: %w", err)
	}
	artifacts, err := client.ListArtifacts(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read artifacts: %w", err)
	}

	current := make(map[string]int64, len(parameters)+len(artifacts))
	for _, p := range parameters {
		current[p.ID] = p.Revision
	}
	byID := make(map[string]*datum.Artifact, len(artifacts))
	for _, a := range artifacts {
		current[a.ID] = a.Revision
		byID[a.ID] = a
	}

	result := &Result{Artifacts: len(artifacts)}
	memo := make(map[string]bool)
	for _, a := range artifacts {
		switch {
		case a.Status == datum.ArtifactStatusFailed:
			result.Failed = append(result.Failed, a.ID)

		case a.Status == datum.ArtifactStatusStale || a.StaleAgainst(current):
			if !blockedByFailure(a, byID, memo) {
				return nil, false, nil
			}
			result.Blocked = append(result.Blocked, a.ID)
		}
	}

	return result, true, nil
}

// blockedByFailure reports whether a stale artifact cannot recompute until a
// failed input is fixed. The engine skips an artifact whenever any transitive
// input failed or was itself skipped, so a blocked artifact stays stale
// across passes rather than converging.
func blockedByFailure(a *datum.Artifact, byID map[string]*datum.Artifact, memo map[string]bool) bool {
	if blocked, ok := memo[a.ID]; ok {
		return blocked
	}
	// Seed the memo before recursing; registration rejects cycles, but a
	// snapshot read outside the engine should not be able to hang us.
	memo[a.ID] = false

	for _, inputID := range a.Inputs {
		input, ok := byID[inputID]
		if !ok {
			// Parameter input, always usable
			continue
		}
		if input.Status == datum.ArtifactStatusFailed {
			memo[a.ID] = true
			return true
		}
		if input.Status == datum.ArtifactStatusStale && blockedByFailure(input, byID, memo) {
			memo[a.ID] = true
			return true
		}
	}

	return false
}
