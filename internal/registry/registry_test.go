package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairline/loft/pkg/datum"
)

func stressCalcSpec() *KindSpec {
	return &KindSpec{
		ID:         "stressCalc",
		Kind:       datum.ArtifactKindCalculation,
		Discipline: "piping",
		Inputs:     []string{"pipeDiameter", "designPressure"},
		Derive: func(ctx context.Context, in Inputs) (datum.Value, error) {
			d, err := in.Number("pipeDiameter")
			if err != nil {
				return datum.Value{}, err
			}
			p, err := in.Number("designPressure")
			if err != nil {
				return datum.Value{}, err
			}
			return datum.NumberValue(d * p), nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("registers and looks up a kind", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(stressCalcSpec()))

		spec, ok := r.Lookup("stressCalc")
		require.True(t, ok)
		assert.Equal(t, datum.ArtifactKindCalculation, spec.Kind)
		assert.Equal(t, []string{"pipeDiameter", "designPressure"}, spec.Inputs)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("rejects duplicate ID", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(stressCalcSpec()))
		err := r.Register(stressCalcSpec())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects invalid spec", func(t *testing.T) {
		r := New()

		spec := stressCalcSpec()
		spec.Derive = nil
		err := r.Register(spec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no derivation function")

		spec = stressCalcSpec()
		spec.Inputs = nil
		assert.Error(t, r.Register(spec))

		spec = stressCalcSpec()
		spec.Kind = "sketch"
		assert.Error(t, r.Register(spec))
	})
}

func TestUpdate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stressCalcSpec()))

	t.Run("replaces the declaration", func(t *testing.T) {
		spec := stressCalcSpec()
		spec.Inputs = []string{"pipeDiameter"}
		require.NoError(t, r.Update(spec))

		got, ok := r.Lookup("stressCalc")
		require.True(t, ok)
		assert.Equal(t, []string{"pipeDiameter"}, got.Inputs)
	})

	t.Run("rejects unknown ID", func(t *testing.T) {
		spec := stressCalcSpec()
		spec.ID = "ghostKind"
		err := r.Update(spec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stressCalcSpec()))

	require.NoError(t, r.Unregister("stressCalc"))
	_, ok := r.Lookup("stressCalc")
	assert.False(t, ok)

	assert.Error(t, r.Unregister("stressCalc"))
}

func TestIDs(t *testing.T) {
	r := New()
	for _, id := range []string{"isoDrawing", "coversheet", "stressCalc"} {
		spec := stressCalcSpec()
		spec.ID = id
		require.NoError(t, r.Register(spec))
	}
	assert.Equal(t, []string{"coversheet", "isoDrawing", "stressCalc"}, r.IDs())
}

func TestInputs(t *testing.T) {
	in := Inputs{
		"pipeDiameter": datum.NumberValue(10.75),
		"material":     datum.StringValue("A106-B"),
		"loadCases":    datum.MustRecordValue(map[string]any{"sustained": 1.0}),
	}

	t.Run("typed accessors", func(t *testing.T) {
		d, err := in.Number("pipeDiameter")
		require.NoError(t, err)
		assert.Equal(t, 10.75, d)

		m, err := in.String("material")
		require.NoError(t, err)
		assert.Equal(t, "A106-B", m)

		lc, err := in.Record("loadCases")
		require.NoError(t, err)
		assert.Equal(t, 1.0, lc["sustained"])
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := in.Number("ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing input")
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := in.Number("material")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not number")
	})
}

func TestDerivationError(t *testing.T) {
	cause := fmt.Errorf("flow solver diverged")
	err := &DerivationError{ArtifactID: "hydraulicReport", Err: cause}

	assert.Contains(t, err.Error(), "hydraulicReport")
	assert.Contains(t, err.Error(), "flow solver diverged")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsDerivation(fmt.Errorf("pass: %w", err)))
	assert.False(t, IsDerivation(cause))
}

func TestDeriveDeterminism(t *testing.T) {
	spec := stressCalcSpec()
	in := Inputs{
		"pipeDiameter":   datum.NumberValue(12),
		"designPressure": datum.NumberValue(425),
	}

	first, err := spec.Derive(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := spec.Derive(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}
