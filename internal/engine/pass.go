package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fairline/loft/internal/graph"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// nodeState tracks one working-set artifact through a pass.
type nodeState int

const (
	nodePending nodeState = iota
	nodeRunning
	nodeComputed
	nodeFailed
	nodeSkipped
)

func (s nodeState) String() string {
	switch s {
	case nodePending:
		return "pending"
	case nodeRunning:
		return "running"
	case nodeComputed:
		return "computed"
	case nodeFailed:
		return "failed"
	case nodeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// passNode is the staged recompute of one artifact. Nothing here is
// visible outside the pass until the commit step swaps the whole batch
// in atomically.
type passNode struct {
	artifact   *datum.Artifact
	spec       *registry.KindSpec
	plannedRev int64
	staged     datum.Value
	provenance datum.Provenance
	state      nodeState
	reason     string
}

// inputView is the committed state of an input read at pass start.
type inputView struct {
	revision int64
	value    datum.Value
}

// pass carries the working state of one invalidation pass.
type pass struct {
	order     []string             // working set in topological order
	nodes     map[string]*passNode // by artifact ID
	committed map[string]inputView // inputs outside the working set
}

// runPass plans and executes one invalidation pass over the candidate
// artifact set: prune candidates whose provenance is already current,
// topologically order the rest, recompute with bounded parallelism, and
// commit the results as one atomic batch. Candidates come from a
// reachability walk (change-triggered) or the full artifact set
// (reconciliation); both shapes plan identically.
func (e *Engine) runPass(ctx context.Context, candidateIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()

	p, err := e.plan(ctx, candidateIDs)
	if err != nil {
		return err
	}
	if len(p.order) == 0 {
		return nil
	}

	e.logger.Info("pass planned",
		zap.Int("candidates", len(candidateIDs)),
		zap.Strings("working_set", p.order))

	// Flag the working set before computing so concurrent readers see
	// these artifacts as pending rather than spuriously current. An
	// aborted pass leaves only these flags behind; reconciliation
	// recomputes them.
	if err := e.client.MarkArtifactsStale(ctx, p.order); err != nil {
		return fmt.Errorf("failed to flag working set: %w", err)
	}

	if err := e.execute(ctx, p); err != nil {
		return err
	}

	if err := e.commit(ctx, p); err != nil {
		return err
	}

	e.logger.Info("pass committed",
		zap.Int("recomputed", countState(p, nodeComputed)),
		zap.Int("failed", countState(p, nodeFailed)),
		zap.Int("skipped", countState(p, nodeSkipped)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// plan reads the committed state touched by the pass and decides which
// candidates actually need recomputation.
//
// Planning walks candidates in topological order carrying a planned
// revision per node: a kept candidate's revision-to-be is current+1, so
// a downstream candidate sees its upstream's planned bump and keeps
// itself stale even though nothing is committed yet. That is what makes
// one pass converge a whole chain.
func (e *Engine) plan(ctx context.Context, candidateIDs []string) (*pass, error) {
	p := &pass{
		nodes:     make(map[string]*passNode),
		committed: make(map[string]inputView),
	}

	candidateOrder := e.graph.TopologicalOrder(candidateIDs)
	candidateSet := make(map[string]bool, len(candidateOrder))
	for _, id := range candidateOrder {
		candidateSet[id] = true
	}

	// Load candidate artifacts and the committed state of every input
	// that is not itself a candidate.
	loaded := make(map[string]*datum.Artifact, len(candidateOrder))
	for _, id := range candidateOrder {
		a, err := e.client.GetArtifact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load artifact %q: %w", id, err)
		}
		loaded[id] = a
	}
	for _, id := range candidateOrder {
		for _, in := range e.graph.Inputs(id) {
			if candidateSet[in] {
				continue
			}
			if _, done := p.committed[in]; done {
				continue
			}
			view, err := e.readInput(ctx, in)
			if err != nil {
				return nil, err
			}
			p.committed[in] = view
		}
	}

	plannedRev := make(map[string]int64, len(candidateOrder)+len(p.committed))
	for in, view := range p.committed {
		plannedRev[in] = view.revision
	}
	for _, id := range candidateOrder {
		plannedRev[id] = loaded[id].Revision
	}

	for _, id := range candidateOrder {
		a := loaded[id]
		// Current artifacts whose provenance already matches every
		// input's (planned) revision are dropped: an upstream change
		// that never reached their inputs costs nothing. Failed and
		// stale-flagged artifacts are always retried.
		if a.Status == datum.ArtifactStatusCurrent && !a.StaleAgainst(plannedRev) {
			continue
		}

		spec, ok := e.registry.Lookup(id)
		if !ok {
			// Registered in the store but no derivation bound in this
			// process, e.g. a discipline pack that was not loaded.
			e.logger.Warn("no derivation registered for stale artifact",
				zap.String("artifact_id", id))
			continue
		}

		plannedRev[id] = a.Revision + 1
		p.nodes[id] = &passNode{
			artifact:   a,
			spec:       spec,
			plannedRev: a.Revision + 1,
			state:      nodePending,
		}
		p.order = append(p.order, id)
	}

	// Pruned candidates can still feed kept ones; expose their committed
	// state as input views.
	for _, id := range p.order {
		for _, in := range p.nodes[id].spec.Inputs {
			if _, kept := p.nodes[in]; kept {
				continue
			}
			if _, ok := p.committed[in]; ok {
				continue
			}
			if a, wasCandidate := loaded[in]; wasCandidate {
				p.committed[in] = inputView{revision: a.Revision, value: a.Value}
				continue
			}
			view, err := e.readInput(ctx, in)
			if err != nil {
				return nil, err
			}
			p.committed[in] = view
		}
	}

	return p, nil
}

// readInput fetches the committed revision and value of a non-candidate
// input, parameter or artifact.
func (e *Engine) readInput(ctx context.Context, id string) (inputView, error) {
	t, ok := e.graph.Type(id)
	if !ok {
		return inputView{}, fmt.Errorf("input %q is not in the dependency graph", id)
	}

	switch t {
	case graph.NodeTypeParameter:
		param, err := e.client.GetParameter(ctx, id)
		if err != nil {
			return inputView{}, fmt.Errorf("failed to load parameter %q: %w", id, err)
		}
		return inputView{revision: param.Revision, value: param.Value}, nil
	default:
		a, err := e.client.GetArtifact(ctx, id)
		if err != nil {
			return inputView{}, fmt.Errorf("failed to load artifact %q: %w", id, err)
		}
		return inputView{revision: a.Revision, value: a.Value}, nil
	}
}

// commit writes the pass outcome: successful recomputes land as one
// atomic batch stamped with their provenance vectors, failures are
// recorded on their artifacts with the last-known-good value kept, and
// the gateway is notified only after the store reflects everything.
func (e *Engine) commit(ctx context.Context, p *pass) error {
	now := time.Now().UnixMilli()

	batch := make([]*datum.Artifact, 0, len(p.order))
	var failed []*passNode
	for _, id := range p.order {
		node := p.nodes[id]
		switch node.state {
		case nodeComputed:
			a := node.artifact
			batch = append(batch, &datum.Artifact{
				ID:          a.ID,
				Kind:        a.Kind,
				Discipline:  a.Discipline,
				Inputs:      a.Inputs,
				Value:       node.staged,
				Revision:    node.plannedRev,
				Provenance:  node.provenance,
				Status:      datum.ArtifactStatusCurrent,
				CreatedAtMs: a.CreatedAtMs,
				UpdatedAtMs: now,
			})
		case nodeFailed:
			failed = append(failed, node)
		}
		// Skipped nodes stay flagged stale; the next pass over their
		// branch picks them up.
	}

	if err := e.client.CommitArtifactBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to commit pass batch: %w", err)
	}

	events := make([]*datum.ArtifactEvent, 0, len(batch)+len(failed))
	for _, a := range batch {
		events = append(events, &datum.ArtifactEvent{
			ArtifactID:  a.ID,
			Kind:        a.Kind,
			Revision:    a.Revision,
			Provenance:  a.Provenance.Clone(),
			Status:      a.Status,
			TimestampMs: a.UpdatedAtMs,
		})
	}

	for _, node := range failed {
		a := node.artifact
		e.logger.Warn("derivation failed",
			zap.String("artifact_id", a.ID),
			zap.String("reason", node.reason))
		if err := e.client.MarkArtifactFailed(ctx, a.ID, node.reason); err != nil {
			return fmt.Errorf("failed to record derivation failure for %q: %w", a.ID, err)
		}
		events = append(events, &datum.ArtifactEvent{
			ArtifactID:  a.ID,
			Kind:        a.Kind,
			Revision:    a.Revision,
			Provenance:  a.Provenance.Clone(),
			Status:      datum.ArtifactStatusFailed,
			TimestampMs: now,
		})
	}

	if e.notifier != nil && len(events) > 0 {
		e.notifier.ArtifactsCommitted(events)
	}
	return nil
}

func countState(p *pass, s nodeState) int {
	n := 0
	for _, node := range p.nodes {
		if node.state == s {
			n++
		}
	}
	return n
}
