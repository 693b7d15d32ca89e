package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairline/loft/pkg/datum"
)

func setupResolverTest(t *testing.T) *datum.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := datum.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	for _, id := range []string{"designPressure", "designTemperature", "pipeOutsideDiameter"} {
		err := client.RegisterParameter(ctx, &datum.Parameter{
			ID:         id,
			Value:      datum.NumberValue(1),
			Discipline: "process",
		})
		require.NoError(t, err)
	}
	for _, id := range []string{"pipeStressCalc", "stressSummaryReport"} {
		err := client.RegisterArtifact(ctx, &datum.Artifact{
			ID:         id,
			Kind:       datum.ArtifactKindCalculation,
			Discipline: "piping",
			Inputs:     []string{"designPressure"},
		})
		require.NoError(t, err)
	}

	return client
}

func TestResolveRef(t *testing.T) {
	ctx := context.Background()

	t.Run("exact parameter ID", func(t *testing.T) {
		client := setupResolverTest(t)

		match, err := ResolveRef(ctx, client, "designPressure")
		require.NoError(t, err)
		assert.Equal(t, Match{ID: "designPressure", Entity: EntityParameter}, match)
	})

	t.Run("exact artifact ID", func(t *testing.T) {
		client := setupResolverTest(t)

		match, err := ResolveRef(ctx, client, "pipeStressCalc")
		require.NoError(t, err)
		assert.Equal(t, Match{ID: "pipeStressCalc", Entity: EntityArtifact}, match)
	})

	t.Run("unique parameter prefix", func(t *testing.T) {
		client := setupResolverTest(t)

		match, err := ResolveRef(ctx, client, "pipeO")
		require.NoError(t, err)
		assert.Equal(t, Match{ID: "pipeOutsideDiameter", Entity: EntityParameter}, match)
	})

	t.Run("unique artifact prefix", func(t *testing.T) {
		client := setupResolverTest(t)

		match, err := ResolveRef(ctx, client, "stress")
		require.NoError(t, err)
		assert.Equal(t, Match{ID: "stressSummaryReport", Entity: EntityArtifact}, match)
	})

	t.Run("exact match wins over longer IDs", func(t *testing.T) {
		client := setupResolverTest(t)

		// "design" is ambiguous, so register a parameter with that exact ID
		err := client.RegisterParameter(ctx, &datum.Parameter{
			ID:         "design",
			Value:      datum.NumberValue(1),
			Discipline: "process",
		})
		require.NoError(t, err)

		match, err := ResolveRef(ctx, client, "design")
		require.NoError(t, err)
		assert.Equal(t, Match{ID: "design", Entity: EntityParameter}, match)
	})

	t.Run("ambiguous prefix across namespaces", func(t *testing.T) {
		client := setupResolverTest(t)

		// "pipe" matches the pipeOutsideDiameter parameter and the
		// pipeStressCalc artifact
		_, err := ResolveRef(ctx, client, "pipe")
		require.Error(t, err)
		require.True(t, IsAmbiguousError(err))

		ambErr := err.(*AmbiguousError)
		assert.Equal(t, "pipe", ambErr.Ref)
		assert.Len(t, ambErr.Matches, 2)
		assert.Contains(t, ambErr.Matches, Match{ID: "pipeOutsideDiameter", Entity: EntityParameter})
		assert.Contains(t, ambErr.Matches, Match{ID: "pipeStressCalc", Entity: EntityArtifact})
	})

	t.Run("no match", func(t *testing.T) {
		client := setupResolverTest(t)

		_, err := ResolveRef(ctx, client, "nozzle")
		require.Error(t, err)
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "nozzle")
	})

	t.Run("empty ref", func(t *testing.T) {
		client := setupResolverTest(t)

		_, err := ResolveRef(ctx, client, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ref cannot be empty")
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	t.Run("few matches listed with entity", func(t *testing.T) {
		err := &AmbiguousError{
			Ref: "pipe",
			Matches: []Match{
				{ID: "pipeOutsideDiameter", Entity: EntityParameter},
				{ID: "pipeStressCalc", Entity: EntityArtifact},
			},
		}

		msg := FormatAmbiguousError(err)
		assert.Contains(t, msg, "ambiguous ref 'pipe' matches 2 IDs")
		assert.Contains(t, msg, "pipeOutsideDiameter (parameter)")
		assert.Contains(t, msg, "pipeStressCalc (artifact)")
		assert.Contains(t, msg, "Use a longer prefix")
	})

	t.Run("many matches truncated at 10", func(t *testing.T) {
		err := &AmbiguousError{Ref: "p"}
		for i := 0; i < 13; i++ {
			err.Matches = append(err.Matches, Match{
				ID:     fmt.Sprintf("param%02d", i),
				Entity: EntityParameter,
			})
		}

		msg := FormatAmbiguousError(err)
		assert.Contains(t, msg, "param09 (parameter)")
		assert.NotContains(t, msg, "param10")
		assert.Contains(t, msg, "...and 3 more")
	})
}
