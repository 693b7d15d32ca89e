package graph

import (
	"container/heap"
	"sort"
)

type stringMinHeap []string

func (h stringMinHeap) Len() int           { return len(h) }
func (h stringMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h stringMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stringMinHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *stringMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder returns a deterministic computation order over the
// induced subgraph of the given IDs: every member appears after all of
// its in-subset inputs. Determinism comes from Kahn's algorithm with the
// ready set kept as a min-heap by ID. IDs not in the graph are dropped.
//
// The graph is validated acyclic at every mutation, so the induced
// subgraph is acyclic and every surviving ID is emitted.
func (g *Graph) TopologicalOrder(subset []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	member := make(map[string]bool, len(subset))
	for _, id := range subset {
		if _, exists := g.nodes[id]; exists {
			member[id] = true
		}
	}

	indeg := make(map[string]int, len(member))
	for id := range member {
		for _, in := range g.inputs[id] {
			if member[in] {
				indeg[id]++
			}
		}
	}

	ready := &stringMinHeap{}
	heap.Init(ready)
	for id := range member {
		if indeg[id] == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, len(member))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, dep := range g.consumers[id] {
			if !member[dep] {
				continue
			}
			indeg[dep]--
			if indeg[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}
	return out
}

// findCycle runs a deterministic DFS over sorted node IDs and extracts
// one cycle path as a witness, or nil if the edge set is acyclic. It does
// not try to list all cycles; a single stable witness is enough for the
// rejection error.
func findCycle(nodes map[string]NodeType, consumers map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))

	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range consumers[u] { // already sorted
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v closes a cycle. Walk parents from u
				// back to v, then reverse into forward order.
				walk := []string{v}
				for cur := u; cur != v; cur = parent[cur] {
					walk = append(walk, cur)
				}
				walk = append(walk, v)
				cycle = make([]string, len(walk))
				for i := range walk {
					cycle[i] = walk[len(walk)-1-i]
				}
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, id := range ids {
		if color[id] != white {
			continue
		}
		if dfs(id) {
			return cycle
		}
	}
	return nil
}
