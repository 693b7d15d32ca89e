// Package graph maintains the dependency graph linking shared design
// parameters to the derived artifacts that consume them. Nodes are tagged
// as parameter or artifact; edges run from producer to consumer and must
// form a DAG. Cycles are rejected at registration time, never discovered
// mid-pass.
package graph

import (
	"fmt"
	"sort"
	"sync"
)

// NodeType tags a graph node as a shared parameter or a derived artifact.
type NodeType string

const (
	// NodeTypeParameter is a shared design input; it has no inputs of its own
	NodeTypeParameter NodeType = "parameter"

	// NodeTypeArtifact is a derived value; it declares one or more inputs
	NodeTypeArtifact NodeType = "artifact"
)

// Graph is the mutable dependency structure over parameter and artifact
// IDs. Reads may run concurrently; mutations take the write lock. All
// returned sequences are sorted so traversal order is deterministic.
type Graph struct {
	mu        sync.RWMutex
	nodes     map[string]NodeType
	inputs    map[string][]string // artifact ID -> declared inputs, sorted
	consumers map[string][]string // producer ID -> consuming artifacts, sorted
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]NodeType),
		inputs:    make(map[string][]string),
		consumers: make(map[string][]string),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Contains reports whether a node exists.
func (g *Graph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Type returns a node's type.
func (g *Graph) Type(id string) (NodeType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[id]
	return t, ok
}

// ParameterIDs returns all parameter node IDs in sorted order.
func (g *Graph) ParameterIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.idsOfType(NodeTypeParameter)
}

// ArtifactIDs returns all artifact node IDs in sorted order.
func (g *Graph) ArtifactIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.idsOfType(NodeTypeArtifact)
}

func (g *Graph) idsOfType(t NodeType) []string {
	ids := make([]string, 0, len(g.nodes))
	for id, nt := range g.nodes {
		if nt == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AddParameter registers a parameter node. Parameters are pure producers
// and never declare inputs.
func (g *Graph) AddParameter(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node %q already in graph", id)
	}
	g.nodes[id] = NodeTypeParameter
	return nil
}

// AddArtifact registers an artifact node together with its declared input
// edges. Every input must already exist as a parameter or artifact node.
// A new artifact has no consumers yet, so every added edge ends at it and
// the graph stays acyclic without a traversal.
func (g *Graph) AddArtifact(id string, inputs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node %q already in graph", id)
	}
	sortedInputs, err := g.checkInputs(id, inputs)
	if err != nil {
		return err
	}

	g.nodes[id] = NodeTypeArtifact
	g.inputs[id] = sortedInputs
	for _, in := range sortedInputs {
		g.consumers[in] = insertSorted(g.consumers[in], id)
	}
	return nil
}

// SetInputs rewires an existing artifact's declared inputs, used when a
// kind is re-registered with a changed input set. Rewiring can close a
// loop (the artifact may already have consumers), so the candidate edge
// set is checked for cycles first; on CycleError the graph keeps its
// prior state.
func (g *Graph) SetInputs(id string, inputs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, exists := g.nodes[id]; !exists {
		return fmt.Errorf("unknown node %q", id)
	} else if t != NodeTypeArtifact {
		return fmt.Errorf("node %q is a parameter, not an artifact", id)
	}
	sortedInputs, err := g.checkInputs(id, inputs)
	if err != nil {
		return err
	}

	candidate := make(map[string][]string, len(g.inputs))
	for a, ins := range g.inputs {
		candidate[a] = ins
	}
	candidate[id] = sortedInputs

	if cycle := findCycle(g.nodes, consumersOf(candidate)); cycle != nil {
		return &CycleError{Path: cycle}
	}

	for _, in := range g.inputs[id] {
		g.consumers[in] = removeSorted(g.consumers[in], id)
	}
	g.inputs[id] = sortedInputs
	for _, in := range sortedInputs {
		g.consumers[in] = insertSorted(g.consumers[in], id)
	}
	return nil
}

// checkInputs validates a declared input set against the current nodes.
// Returns the inputs sorted. Caller holds the write lock.
func (g *Graph) checkInputs(id string, inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("artifact %q must declare at least one input", id)
	}
	sorted := make([]string, len(inputs))
	copy(sorted, inputs)
	sort.Strings(sorted)
	for i, in := range sorted {
		if in == id {
			return nil, &CycleError{Path: []string{id, id}}
		}
		if i > 0 && sorted[i-1] == in {
			return nil, fmt.Errorf("artifact %q declares input %q twice", id, in)
		}
		if _, exists := g.nodes[in]; !exists {
			return nil, fmt.Errorf("artifact %q references unknown input %q", id, in)
		}
	}
	return sorted, nil
}

// Remove deletes a node. Fails while any artifact still consumes it;
// dependents must be retired first.
func (g *Graph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; !exists {
		return fmt.Errorf("unknown node %q", id)
	}
	if deps := g.consumers[id]; len(deps) > 0 {
		return fmt.Errorf("node %q still has %d dependent(s): %v", id, len(deps), deps)
	}

	for _, in := range g.inputs[id] {
		g.consumers[in] = removeSorted(g.consumers[in], id)
	}
	delete(g.inputs, id)
	delete(g.consumers, id)
	delete(g.nodes, id)
	return nil
}

// Load replaces the whole graph from a parameter list and an artifact ->
// inputs map, validating references and acyclicity as one unit. Used at
// engine startup where persisted artifacts arrive in arbitrary order. On
// any error the graph keeps its prior state.
func (g *Graph) Load(parameterIDs []string, artifactInputs map[string][]string) error {
	nodes := make(map[string]NodeType, len(parameterIDs)+len(artifactInputs))
	for _, id := range parameterIDs {
		if _, exists := nodes[id]; exists {
			return fmt.Errorf("duplicate node %q", id)
		}
		nodes[id] = NodeTypeParameter
	}
	for id := range artifactInputs {
		if _, exists := nodes[id]; exists {
			return fmt.Errorf("duplicate node %q", id)
		}
		nodes[id] = NodeTypeArtifact
	}

	inputs := make(map[string][]string, len(artifactInputs))
	for id, ins := range artifactInputs {
		if len(ins) == 0 {
			return fmt.Errorf("artifact %q must declare at least one input", id)
		}
		sorted := make([]string, len(ins))
		copy(sorted, ins)
		sort.Strings(sorted)
		for i, in := range sorted {
			if in == id {
				return &CycleError{Path: []string{id, id}}
			}
			if i > 0 && sorted[i-1] == in {
				return fmt.Errorf("artifact %q declares input %q twice", id, in)
			}
			if _, exists := nodes[in]; !exists {
				return fmt.Errorf("artifact %q references unknown input %q", id, in)
			}
		}
		inputs[id] = sorted
	}

	consumers := consumersOf(inputs)
	if cycle := findCycle(nodes, consumers); cycle != nil {
		return &CycleError{Path: cycle}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.inputs = inputs
	g.consumers = consumers
	return nil
}

// Inputs returns an artifact's declared inputs in sorted order.
// Parameters and unknown IDs have none.
func (g *Graph) Inputs(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ins := g.inputs[id]
	out := make([]string, len(ins))
	copy(out, ins)
	return out
}

// Dependents returns the direct consumers of a node in sorted order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, exists := g.nodes[id]; !exists {
		return nil, fmt.Errorf("unknown node %q", id)
	}
	deps := g.consumers[id]
	out := make([]string, len(deps))
	copy(out, deps)
	return out, nil
}

// Reachable returns every artifact transitively downstream of the given
// seed nodes, in sorted order. The seeds themselves are excluded unless
// reachable from another seed. Unknown seeds are ignored.
func (g *Graph) Reachable(seedIDs []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	queue := make([]string, 0, len(seedIDs))
	for _, id := range seedIDs {
		if _, exists := g.nodes[id]; exists {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.consumers[id] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// consumersOf inverts an artifact -> inputs map into producer -> sorted
// consumers adjacency.
func consumersOf(inputs map[string][]string) map[string][]string {
	consumers := make(map[string][]string, len(inputs))
	for id, ins := range inputs {
		for _, in := range ins {
			consumers[in] = insertSorted(consumers[in], id)
		}
	}
	return consumers
}

// insertSorted inserts id into a sorted slice, keeping it sorted.
// Idempotent for an id already present.
func insertSorted(s []string, id string) []string {
	i := sort.SearchStrings(s, id)
	if i < len(s) && s[i] == id {
		return s
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

// removeSorted removes id from a sorted slice, keeping it sorted.
func removeSorted(s []string, id string) []string {
	i := sort.SearchStrings(s, id)
	if i < len(s) && s[i] == id {
		return append(s[:i], s[i+1:]...)
	}
	return s
}
