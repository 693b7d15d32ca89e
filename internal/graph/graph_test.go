package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPipingGraph builds the canonical test topology:
//
//	pipeDiameter -> stressCalc -> isoDrawing
//	designPressure -> stressCalc
//	designPressure -> hydraulicReport
func buildPipingGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	require.NoError(t, g.AddParameter("pipeDiameter"))
	require.NoError(t, g.AddParameter("designPressure"))
	require.NoError(t, g.AddArtifact("stressCalc", []string{"pipeDiameter", "designPressure"}))
	require.NoError(t, g.AddArtifact("isoDrawing", []string{"stressCalc"}))
	require.NoError(t, g.AddArtifact("hydraulicReport", []string{"designPressure"}))
	return g
}

func TestAddParameter(t *testing.T) {
	g := New()

	require.NoError(t, g.AddParameter("pipeDiameter"))
	assert.True(t, g.Contains("pipeDiameter"))

	nt, ok := g.Type("pipeDiameter")
	require.True(t, ok)
	assert.Equal(t, NodeTypeParameter, nt)

	err := g.AddParameter("pipeDiameter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in graph")
}

func TestAddArtifact(t *testing.T) {
	t.Run("registers node and edges", func(t *testing.T) {
		g := buildPipingGraph(t)

		nt, ok := g.Type("stressCalc")
		require.True(t, ok)
		assert.Equal(t, NodeTypeArtifact, nt)
		assert.Equal(t, []string{"designPressure", "pipeDiameter"}, g.Inputs("stressCalc"))

		deps, err := g.Dependents("designPressure")
		require.NoError(t, err)
		assert.Equal(t, []string{"hydraulicReport", "stressCalc"}, deps)
	})

	t.Run("rejects duplicate node", func(t *testing.T) {
		g := buildPipingGraph(t)
		err := g.AddArtifact("stressCalc", []string{"pipeDiameter"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already in graph")
	})

	t.Run("rejects unknown input", func(t *testing.T) {
		g := buildPipingGraph(t)
		err := g.AddArtifact("nozzleCheck", []string{"nozzleLoads"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown input")
		assert.False(t, g.Contains("nozzleCheck"))
	})

	t.Run("rejects empty input set", func(t *testing.T) {
		g := New()
		err := g.AddArtifact("stressCalc", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one input")
	})

	t.Run("rejects duplicate input declaration", func(t *testing.T) {
		g := buildPipingGraph(t)
		err := g.AddArtifact("coversheet", []string{"pipeDiameter", "pipeDiameter"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "twice")
	})

	t.Run("rejects self-reference as a cycle", func(t *testing.T) {
		g := New()
		err := g.AddArtifact("stressCalc", []string{"stressCalc"})
		require.Error(t, err)
		assert.True(t, IsCycle(err))
	})
}

func TestSetInputs(t *testing.T) {
	t.Run("rewires declared inputs", func(t *testing.T) {
		g := buildPipingGraph(t)

		require.NoError(t, g.SetInputs("hydraulicReport", []string{"designPressure", "stressCalc"}))
		assert.Equal(t, []string{"designPressure", "stressCalc"}, g.Inputs("hydraulicReport"))

		deps, err := g.Dependents("stressCalc")
		require.NoError(t, err)
		assert.Equal(t, []string{"hydraulicReport", "isoDrawing"}, deps)
	})

	t.Run("drops stale reverse edges", func(t *testing.T) {
		g := buildPipingGraph(t)

		require.NoError(t, g.SetInputs("hydraulicReport", []string{"pipeDiameter"}))

		deps, err := g.Dependents("designPressure")
		require.NoError(t, err)
		assert.Equal(t, []string{"stressCalc"}, deps)
	})

	t.Run("rejects a cycle and keeps prior state", func(t *testing.T) {
		g := buildPipingGraph(t)

		// stressCalc -> isoDrawing already exists; consuming isoDrawing
		// from stressCalc would close the loop.
		err := g.SetInputs("stressCalc", []string{"pipeDiameter", "isoDrawing"})
		require.Error(t, err)
		assert.True(t, IsCycle(err))

		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		require.NotEmpty(t, cycleErr.Path)
		assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
		assert.Contains(t, cycleErr.Path, "stressCalc")
		assert.Contains(t, cycleErr.Path, "isoDrawing")

		// The rejected rewire left the graph untouched.
		assert.Equal(t, []string{"designPressure", "pipeDiameter"}, g.Inputs("stressCalc"))
		deps, err := g.Dependents("isoDrawing")
		require.NoError(t, err)
		assert.Empty(t, deps)
	})

	t.Run("rejects unknown artifact", func(t *testing.T) {
		g := buildPipingGraph(t)
		err := g.SetInputs("ghostArtifact", []string{"pipeDiameter"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown node")
	})

	t.Run("rejects parameter target", func(t *testing.T) {
		g := buildPipingGraph(t)
		err := g.SetInputs("pipeDiameter", []string{"designPressure"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not an artifact")
	})
}

func TestRemove(t *testing.T) {
	t.Run("refuses while dependents remain", func(t *testing.T) {
		g := buildPipingGraph(t)

		err := g.Remove("stressCalc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "still has")
		assert.True(t, g.Contains("stressCalc"))
	})

	t.Run("removes leaves first", func(t *testing.T) {
		g := buildPipingGraph(t)

		require.NoError(t, g.Remove("isoDrawing"))
		require.NoError(t, g.Remove("stressCalc"))

		deps, err := g.Dependents("pipeDiameter")
		require.NoError(t, err)
		assert.Empty(t, deps)
		require.NoError(t, g.Remove("pipeDiameter"))
	})

	t.Run("unknown node", func(t *testing.T) {
		g := New()
		err := g.Remove("ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown node")
	})
}

func TestDependents(t *testing.T) {
	g := buildPipingGraph(t)

	deps, err := g.Dependents("pipeDiameter")
	require.NoError(t, err)
	assert.Equal(t, []string{"stressCalc"}, deps)

	deps, err = g.Dependents("isoDrawing")
	require.NoError(t, err)
	assert.Empty(t, deps)

	_, err = g.Dependents("ghost")
	require.Error(t, err)
}

func TestReachable(t *testing.T) {
	g := buildPipingGraph(t)

	t.Run("transitive closure from one parameter", func(t *testing.T) {
		got := g.Reachable([]string{"pipeDiameter"})
		assert.Equal(t, []string{"isoDrawing", "stressCalc"}, got)
	})

	t.Run("independent branches from a shared parameter", func(t *testing.T) {
		got := g.Reachable([]string{"designPressure"})
		assert.Equal(t, []string{"hydraulicReport", "isoDrawing", "stressCalc"}, got)
	})

	t.Run("seeds are excluded unless re-reached", func(t *testing.T) {
		got := g.Reachable([]string{"stressCalc"})
		assert.Equal(t, []string{"isoDrawing"}, got)

		// stressCalc is a seed and downstream of the other seed.
		got = g.Reachable([]string{"pipeDiameter", "stressCalc"})
		assert.Equal(t, []string{"isoDrawing", "stressCalc"}, got)
	})

	t.Run("unknown seeds are ignored", func(t *testing.T) {
		assert.Empty(t, g.Reachable([]string{"ghost"}))
	})
}

func TestTopologicalOrder(t *testing.T) {
	g := buildPipingGraph(t)

	t.Run("every artifact after its in-subset inputs", func(t *testing.T) {
		order := g.TopologicalOrder([]string{"isoDrawing", "stressCalc", "hydraulicReport"})
		require.Len(t, order, 3)

		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		assert.Less(t, pos["stressCalc"], pos["isoDrawing"])
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		subset := []string{"hydraulicReport", "isoDrawing", "stressCalc"}
		first := g.TopologicalOrder(subset)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, g.TopologicalOrder(subset))
		}
	})

	t.Run("ties break by ID", func(t *testing.T) {
		// hydraulicReport and stressCalc are both roots of the induced
		// subgraph; the smaller ID comes out first.
		order := g.TopologicalOrder([]string{"stressCalc", "hydraulicReport"})
		assert.Equal(t, []string{"hydraulicReport", "stressCalc"}, order)
	})

	t.Run("edges outside the subset are ignored", func(t *testing.T) {
		order := g.TopologicalOrder([]string{"isoDrawing"})
		assert.Equal(t, []string{"isoDrawing"}, order)
	})

	t.Run("unknown IDs are dropped", func(t *testing.T) {
		order := g.TopologicalOrder([]string{"ghost", "isoDrawing"})
		assert.Equal(t, []string{"isoDrawing"}, order)
	})
}

func TestLoad(t *testing.T) {
	t.Run("builds from arbitrary declaration order", func(t *testing.T) {
		g := New()
		err := g.Load(
			[]string{"pipeDiameter", "designPressure"},
			map[string][]string{
				"isoDrawing":      {"stressCalc"},
				"stressCalc":      {"pipeDiameter", "designPressure"},
				"hydraulicReport": {"designPressure"},
			},
		)
		require.NoError(t, err)
		assert.Equal(t, 5, g.Len())
		assert.Equal(t, []string{"hydraulicReport", "isoDrawing", "stressCalc"}, g.ArtifactIDs())
		assert.Equal(t, []string{"designPressure", "pipeDiameter"}, g.ParameterIDs())
	})

	t.Run("rejects cycles with a witness", func(t *testing.T) {
		g := New()
		err := g.Load(
			[]string{"pipeDiameter"},
			map[string][]string{
				"stressCalc": {"pipeDiameter", "isoDrawing"},
				"isoDrawing": {"stressCalc"},
			},
		)
		require.Error(t, err)
		assert.True(t, IsCycle(err))

		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])

		// The failed load left the graph empty.
		assert.Equal(t, 0, g.Len())
	})

	t.Run("rejects unknown references", func(t *testing.T) {
		g := New()
		err := g.Load(nil, map[string][]string{"stressCalc": {"pipeDiameter"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown input")
	})

	t.Run("replaces prior state on success", func(t *testing.T) {
		g := buildPipingGraph(t)
		require.NoError(t, g.Load([]string{"wallThickness"}, nil))
		assert.Equal(t, 1, g.Len())
		assert.False(t, g.Contains("stressCalc"))
	})
}

func TestCycleErrorMessage(t *testing.T) {
	err := &CycleError{Path: []string{"stressCalc", "isoDrawing", "stressCalc"}}
	assert.Equal(t, "dependency cycle detected: stressCalc -> isoDrawing -> stressCalc", err.Error())
	assert.Equal(t, "dependency cycle detected", (&CycleError{}).Error())

	assert.True(t, IsCycle(fmt.Errorf("register: %w", err)))
	assert.False(t, IsCycle(fmt.Errorf("plain failure")))
}
