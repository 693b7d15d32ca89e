package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

type workItem struct {
	id     string
	derive registry.DerivationFunc
	inputs registry.Inputs
}

type workResult struct {
	id    string
	value datum.Value
	err   error
}

// execute recomputes the working set with up to e.workers parallel
// derivations. Dispatch is dependency-driven: an artifact becomes ready
// the moment its last in-set input computes, so one slow or blocked
// branch never holds up unrelated branches. Ties among ready artifacts
// break lexically by ID, which keeps single-worker runs fully
// deterministic.
//
// A failed derivation marks its artifact failed and transitively skips
// its in-set dependents; every other branch keeps computing.
func (e *Engine) execute(ctx context.Context, p *pass) error {
	if len(p.order) == 0 {
		return nil
	}

	workCh := make(chan workItem, e.workers)
	doneCh := make(chan workResult, e.workers)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				value, err := item.derive(ctx, item.inputs)
				if err != nil {
					err = &registry.DerivationError{ArtifactID: item.id, Err: err}
				}
				doneCh <- workResult{id: item.id, value: value, err: err}
			}
		}()
	}

	// In-set adjacency: waiting counts unfinished in-set inputs per
	// artifact; dependents is the reverse map used to unlock them.
	waiting := make(map[string]int, len(p.order))
	dependents := make(map[string][]string, len(p.order))
	for _, id := range p.order {
		for _, in := range p.nodes[id].spec.Inputs {
			if _, inSet := p.nodes[in]; inSet {
				waiting[id]++
				dependents[in] = append(dependents[in], id)
			}
		}
	}
	for in := range dependents {
		sort.Strings(dependents[in])
	}

	var ready []string
	for _, id := range p.order {
		if waiting[id] == 0 {
			ready = insertReady(ready, id)
		}
	}

	finished := 0
	inFlight := 0
	for finished < len(p.order) {
		for inFlight < e.workers && len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			node := p.nodes[id]
			node.state = nodeRunning

			inputs, provenance := assembleInputs(p, node)
			node.provenance = provenance

			inFlight++
			workCh <- workItem{id: id, derive: node.spec.Derive, inputs: inputs}
		}

		if inFlight == 0 {
			// Every remaining node is pending with unfinished inputs
			// that nothing will finish. The graph is validated acyclic,
			// so this indicates corrupted pass state.
			stopWorkers()
			return fmt.Errorf("pass stalled with %d of %d artifacts unschedulable", len(p.order)-finished, len(p.order))
		}

		select {
		case <-ctx.Done():
			stopWorkers()
			return fmt.Errorf("pass aborted: %w", ctx.Err())

		case res := <-doneCh:
			inFlight--
			node := p.nodes[res.id]

			if res.err != nil {
				node.state = nodeFailed
				node.reason = res.err.Error()
				finished++
				finished += skipDependents(p, dependents, res.id)
				continue
			}

			node.state = nodeComputed
			node.staged = res.value
			finished++
			for _, dep := range dependents[res.id] {
				if p.nodes[dep].state != nodePending {
					continue
				}
				waiting[dep]--
				if waiting[dep] == 0 {
					ready = insertReady(ready, dep)
				}
			}
		}
	}

	stopWorkers()
	return nil
}

// assembleInputs resolves the input values and provenance for one
// derivation call. In-set inputs use the value staged earlier in this
// pass and its planned revision; everything else uses the committed
// state read at pass start. One derivation therefore never mixes old
// and new values of the same pass.
func assembleInputs(p *pass, node *passNode) (registry.Inputs, datum.Provenance) {
	inputs := make(registry.Inputs, len(node.spec.Inputs))
	provenance := make(datum.Provenance, len(node.spec.Inputs))
	for _, in := range node.spec.Inputs {
		if up, inSet := p.nodes[in]; inSet {
			inputs[in] = up.staged
			provenance[in] = up.plannedRev
			continue
		}
		view := p.committed[in]
		inputs[in] = view.value
		provenance[in] = view.revision
	}
	return inputs, provenance
}

// skipDependents transitively marks the in-set dependents of a failed
// artifact as skipped and returns how many it marked. Skipped artifacts
// were never dispatched, so only pending nodes are touched.
func skipDependents(p *pass, dependents map[string][]string, failedID string) int {
	skipped := 0
	queue := append([]string(nil), dependents[failedID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := p.nodes[id]
		if node.state != nodePending {
			continue
		}
		node.state = nodeSkipped
		node.reason = fmt.Sprintf("upstream %q failed", failedID)
		skipped++
		queue = append(queue, dependents[id]...)
	}
	return skipped
}

// insertReady inserts an ID into the sorted ready queue.
func insertReady(ready []string, id string) []string {
	i := sort.SearchStrings(ready, id)
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = id
	return ready
}
