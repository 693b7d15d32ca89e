package watch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairline/loft/pkg/datum"
)

func TestFormatChange(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	err := f.FormatChange(&datum.ChangeEvent{
		RequestID:   "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		RequesterID: "mechanical",
		Revisions: map[string]int64{
			"wallThickness":  2,
			"designPressure": 4,
		},
	})
	require.NoError(t, err)

	// Parameters listed in ID order, request ID truncated
	assert.Equal(t, "● change a1b2c3d4 by mechanical: designPressure=v4, wallThickness=v2\n", buf.String())
}

func TestFormatArtifact(t *testing.T) {
	tests := []struct {
		name     string
		event    *datum.ArtifactEvent
		expected string
	}{
		{
			name: "clean recompute",
			event: &datum.ArtifactEvent{
				ArtifactID: "pipeStressCalc",
				Kind:       datum.ArtifactKindCalculation,
				Revision:   3,
				Status:     datum.ArtifactStatusCurrent,
			},
			expected: "✓ pipeStressCalc v3 (calculation) recomputed\n",
		},
		{
			name: "failure keeps prior revision",
			event: &datum.ArtifactEvent{
				ArtifactID: "hydraulicReport",
				Kind:       datum.ArtifactKindReport,
				Revision:   1,
				Status:     datum.ArtifactStatusFailed,
			},
			expected: "✗ hydraulicReport (report) recompute failed, keeping v1\n",
		},
		{
			name: "failure before first compute",
			event: &datum.ArtifactEvent{
				ArtifactID: "hydraulicReport",
				Kind:       datum.ArtifactKindReport,
				Revision:   0,
				Status:     datum.ArtifactStatusFailed,
			},
			expected: "✗ hydraulicReport (report) recompute failed\n",
		},
		{
			name: "registration",
			event: &datum.ArtifactEvent{
				ArtifactID: "isoStressDrawing",
				Kind:       datum.ArtifactKindDrawing,
				Revision:   0,
				Status:     datum.ArtifactStatusStale,
			},
			expected: "+ isoStressDrawing (drawing) registered\n",
		},
		{
			name: "marked stale",
			event: &datum.ArtifactEvent{
				ArtifactID: "isoStressDrawing",
				Kind:       datum.ArtifactKindDrawing,
				Revision:   2,
				Status:     datum.ArtifactStatusStale,
			},
			expected: "○ isoStressDrawing (drawing) marked stale\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(&buf)

			require.NoError(t, f.FormatArtifact(tt.event))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}
