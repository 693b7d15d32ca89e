package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairline/loft/pkg/datum"
)

// resetListFlags restores the list command's flag variables to their
// declared defaults between tests.
func resetListFlags() {
	listInstanceName = ""
	listOutputFormat = "default"
	listParameters = false
	listKind = ""
	listStatus = ""
	listDiscipline = ""
	listSince = ""
	listUntil = ""
}

func TestRunList(t *testing.T) {
	t.Run("lists artifacts", func(t *testing.T) {
		resetListFlags()
		client := setupStore(t)
		seedParameter(t, client, "designPressure", datum.NumberValue(285))
		seedArtifact(t, client, "pipeStressCalc", datum.ArtifactKindCalculation, []string{"designPressure"})

		require.NoError(t, runList(listCmd, nil))
	})

	t.Run("lists parameters as jsonl", func(t *testing.T) {
		resetListFlags()
		client := setupStore(t)
		seedParameter(t, client, "designPressure", datum.NumberValue(285))

		listParameters = true
		listOutputFormat = "jsonl"
		require.NoError(t, runList(listCmd, nil))
	})

	t.Run("status filter accepts the three states", func(t *testing.T) {
		resetListFlags()
		client := setupStore(t)
		seedParameter(t, client, "designPressure", datum.NumberValue(285))
		seedArtifact(t, client, "pipeStressCalc", datum.ArtifactKindCalculation, []string{"designPressure"})

		for _, status := range []string{"current", "stale", "failed"} {
			listStatus = status
			require.NoError(t, runList(listCmd, nil), status)
		}
	})

	t.Run("invalid output format", func(t *testing.T) {
		resetListFlags()

		listOutputFormat = "xml"
		err := runList(listCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})

	t.Run("invalid status", func(t *testing.T) {
		resetListFlags()
		setupStore(t)

		listStatus = "bogus"
		err := runList(listCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --status")
	})

	t.Run("artifact filters are refused for parameters", func(t *testing.T) {
		resetListFlags()

		listParameters = true
		listKind = "calculation"
		err := runList(listCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid filter combination")
	})

	t.Run("invalid time filter", func(t *testing.T) {
		resetListFlags()

		listSince = "not-a-time"
		err := runList(listCmd, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid time filter")
	})
}
