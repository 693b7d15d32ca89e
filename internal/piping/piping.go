// Package piping is the built-in piping discipline pack. It registers
// reference derivation kinds for a pipe stress workflow: a Barlow hoop
// and longitudinal stress calculation, a nozzle allowable-load check,
// an isometric stress contour drawing model, a stress summary report,
// and an analysis coversheet template. The daemon registers the pack
// when the config lists it; deployments with their own derivations
// leave it out.
package piping

import (
	"context"
	"fmt"
	"sort"

	"github.com/fairline/loft/internal/engine"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// Discipline stamped on every kind the pack registers.
const Discipline = "piping"

// Parameter IDs the pack's kinds consume. A deployment seeds these
// before enabling the pack; the scaffolded config carries working
// defaults for all of them.
const (
	ParamDesignPressure      = "designPressure"      // psig
	ParamDesignTemperature   = "designTemperature"   // degF
	ParamPipeOutsideDiameter = "pipeOutsideDiameter" // in
	ParamWallThickness       = "wallThickness"       // in
	ParamCorrosionAllowance  = "corrosionAllowance"  // in
	ParamAllowableStress     = "allowableStress"     // psi, code allowable at temperature

	// ParamNozzleLoads is a record of applied nozzle loads with fields
	// axialLb, shearLb, bendingFtLb and torsionFtLb.
	ParamNozzleLoads = "nozzleLoads"

	ParamAnalysisNumber = "analysisNumber"
	ParamAnalysisTitle  = "analysisTitle"
	ParamStationName    = "stationName"
)

// Artifact IDs the pack registers.
const (
	ArtifactPipeStressCalc      = "pipeStressCalc"
	ArtifactNozzleLoadCheck     = "nozzleLoadCheck"
	ArtifactIsoStressDrawing    = "isoStressDrawing"
	ArtifactStressSummaryReport = "stressSummaryReport"
	ArtifactAnalysisCoversheet  = "analysisCoversheet"
)

// Kinds returns the pack's kind specs in registration order. Kinds that
// consume other pack artifacts come after their inputs, which is the
// order graph input checking requires.
func Kinds() []*registry.KindSpec {
	return []*registry.KindSpec{
		{
			ID:         ArtifactPipeStressCalc,
			Kind:       datum.ArtifactKindCalculation,
			Discipline: Discipline,
			Inputs: []string{
				ParamDesignPressure,
				ParamPipeOutsideDiameter,
				ParamWallThickness,
				ParamCorrosionAllowance,
				ParamAllowableStress,
			},
			Derive: derivePipeStress,
		},
		{
			ID:         ArtifactNozzleLoadCheck,
			Kind:       datum.ArtifactKindCalculation,
			Discipline: Discipline,
			Inputs: []string{
				ParamPipeOutsideDiameter,
				ParamWallThickness,
				ParamNozzleLoads,
			},
			Derive: deriveNozzleLoadCheck,
		},
		{
			ID:         ArtifactIsoStressDrawing,
			Kind:       datum.ArtifactKindDrawing,
			Discipline: Discipline,
			Inputs: []string{
				ArtifactPipeStressCalc,
				ParamPipeOutsideDiameter,
			},
			Derive: deriveIsoStressDrawing,
		},
		{
			ID:         ArtifactStressSummaryReport,
			Kind:       datum.ArtifactKindReport,
			Discipline: Discipline,
			Inputs: []string{
				ArtifactPipeStressCalc,
				ArtifactNozzleLoadCheck,
				ParamDesignPressure,
				ParamDesignTemperature,
			},
			Derive: deriveStressSummary,
		},
		{
			ID:         ArtifactAnalysisCoversheet,
			Kind:       datum.ArtifactKindTemplate,
			Discipline: Discipline,
			Inputs: []string{
				ArtifactStressSummaryReport,
				ParamAnalysisNumber,
				ParamAnalysisTitle,
				ParamStationName,
			},
			Derive: deriveAnalysisCoversheet,
		},
	}
}

// Register registers every pack kind on the engine. Safe to call on
// every daemon start: an already-registered kind is rebound to the
// current derivation rather than duplicated.
func Register(ctx context.Context, eng *engine.Engine) error {
	for _, spec := range Kinds() {
		if err := eng.RegisterKind(ctx, spec); err != nil {
			return fmt.Errorf("failed to register pack kind %q: %w", spec.ID, err)
		}
	}
	return nil
}

// RequiredParameters returns the sorted parameter IDs that must exist
// before Register is called.
func RequiredParameters() []string {
	ids := []string{
		ParamDesignPressure,
		ParamDesignTemperature,
		ParamPipeOutsideDiameter,
		ParamWallThickness,
		ParamCorrosionAllowance,
		ParamAllowableStress,
		ParamNozzleLoads,
		ParamAnalysisNumber,
		ParamAnalysisTitle,
		ParamStationName,
	}
	sort.Strings(ids)
	return ids
}
