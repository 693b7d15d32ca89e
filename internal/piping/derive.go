package piping

import (
	"context"
	"fmt"
	"math"

	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// Nozzle allowable-load basis. Yield strength assumes carbon steel
// pipe; the factors size allowable axial and bending loads from the
// yield capacity of the cross section.
const (
	nozzleYieldStrengthPsi = 35000.0
	nozzleAxialFactor      = 0.01
	nozzleBendingFactor    = 0.1
)

// contourBandCount quantizes hoop stress into drawing legend bands.
const contourBandCount = 5

// derivePipeStress runs the pressure-design check: Barlow hoop and
// longitudinal stress on the corroded wall, the minimum wall the design
// pressure requires, and both stress ratios against the code allowable.
func derivePipeStress(_ context.Context, in registry.Inputs) (datum.Value, error) {
	pressure, err := in.Number(ParamDesignPressure)
	if err != nil {
		return datum.Value{}, err
	}
	od, err := in.Number(ParamPipeOutsideDiameter)
	if err != nil {
		return datum.Value{}, err
	}
	wall, err := in.Number(ParamWallThickness)
	if err != nil {
		return datum.Value{}, err
	}
	corrosion, err := in.Number(ParamCorrosionAllowance)
	if err != nil {
		return datum.Value{}, err
	}
	allowable, err := in.Number(ParamAllowableStress)
	if err != nil {
		return datum.Value{}, err
	}

	if pressure < 0 {
		return datum.Value{}, fmt.Errorf("design pressure cannot be negative, got %g psig", pressure)
	}
	if od <= 0 {
		return datum.Value{}, fmt.Errorf("pipe outside diameter must be positive, got %g in", od)
	}
	if wall <= 0 {
		return datum.Value{}, fmt.Errorf("wall thickness must be positive, got %g in", wall)
	}
	if corrosion < 0 {
		return datum.Value{}, fmt.Errorf("corrosion allowance cannot be negative, got %g in", corrosion)
	}
	if allowable <= 0 {
		return datum.Value{}, fmt.Errorf("allowable stress must be positive, got %g psi", allowable)
	}
	corroded := wall - corrosion
	if corroded <= 0 {
		return datum.Value{}, fmt.Errorf("corrosion allowance %g in consumes the full %g in wall", corrosion, wall)
	}

	hoop := pressure * od / (2 * corroded)
	longitudinal := pressure * od / (4 * corroded)
	requiredWall := pressure * od / (2 * allowable)

	return datum.RecordValue(map[string]any{
		"hoopStressPsi":         roundTo(hoop, 1),
		"longitudinalStressPsi": roundTo(longitudinal, 1),
		"corrodedWallIn":        roundTo(corroded, 4),
		"requiredWallIn":        roundTo(requiredWall, 4),
		"allowableStressPsi":    allowable,
		"hoopRatio":             roundTo(hoop/allowable, 3),
		"longitudinalRatio":     roundTo(longitudinal/allowable, 3),
		"withinAllowable":       hoop <= allowable && longitudinal <= allowable,
	})
}

// nozzleDirections fixes the reporting order of the four load directions.
var nozzleDirections = []string{"axialLb", "shearLb", "bendingFtLb", "torsionFtLb"}

// deriveNozzleLoadCheck computes allowable nozzle loads from the pipe
// cross section and compares each applied load against its allowable.
// Shear capacity equals axial capacity and torsion capacity is twice
// bending capacity.
func deriveNozzleLoadCheck(_ context.Context, in registry.Inputs) (datum.Value, error) {
	od, err := in.Number(ParamPipeOutsideDiameter)
	if err != nil {
		return datum.Value{}, err
	}
	wall, err := in.Number(ParamWallThickness)
	if err != nil {
		return datum.Value{}, err
	}
	loads, err := in.Record(ParamNozzleLoads)
	if err != nil {
		return datum.Value{}, err
	}

	if od <= 0 {
		return datum.Value{}, fmt.Errorf("pipe outside diameter must be positive, got %g in", od)
	}
	if wall <= 0 {
		return datum.Value{}, fmt.Errorf("wall thickness must be positive, got %g in", wall)
	}
	bore := od - 2*wall
	if bore <= 0 {
		return datum.Value{}, fmt.Errorf("wall thickness %g in leaves no bore in a %g in pipe", wall, od)
	}

	area := math.Pi * (sq(od/2) - sq(bore/2))
	sectionModulus := math.Pi * (math.Pow(od, 4) - math.Pow(bore, 4)) / (32 * od)

	allowAxial := math.Trunc(nozzleAxialFactor * nozzleYieldStrengthPsi * area)
	// Bending capacity comes out in inch-pounds; applied loads are
	// quoted in foot-pounds.
	allowBending := math.Trunc(nozzleBendingFactor * nozzleYieldStrengthPsi * sectionModulus / 12)
	allowables := map[string]float64{
		"axialLb":     allowAxial,
		"shearLb":     allowAxial,
		"bendingFtLb": allowBending,
		"torsionFtLb": 2 * allowBending,
	}

	actuals := make(map[string]any, len(nozzleDirections))
	ratios := make(map[string]any, len(nozzleDirections))
	maxRatio := 0.0
	governing := nozzleDirections[0]
	for _, name := range nozzleDirections {
		actual, err := recordNumber("nozzle loads", loads, name)
		if err != nil {
			return datum.Value{}, err
		}
		ratio := math.Abs(actual) / allowables[name]
		actuals[name] = actual
		ratios[name] = roundTo(ratio, 3)
		if ratio > maxRatio {
			maxRatio = ratio
			governing = name
		}
	}

	return datum.RecordValue(map[string]any{
		"boreDiameterIn":     roundTo(bore, 4),
		"metalAreaSqIn":      roundTo(area, 4),
		"sectionModulusCuIn": roundTo(sectionModulus, 4),
		"allowable":          allowables,
		"actual":             actuals,
		"ratio":              ratios,
		"maxRatio":           roundTo(maxRatio, 3),
		"governing":          governing,
		"withinAllowable":    maxRatio < 1.0,
	})
}

// deriveStressSummary rolls the ratios of the pack's checks into one
// report record with a prose verdict.
func deriveStressSummary(_ context.Context, in registry.Inputs) (datum.Value, error) {
	pressure, err := in.Number(ParamDesignPressure)
	if err != nil {
		return datum.Value{}, err
	}
	temperature, err := in.Number(ParamDesignTemperature)
	if err != nil {
		return datum.Value{}, err
	}
	stress, err := in.Record(ArtifactPipeStressCalc)
	if err != nil {
		return datum.Value{}, err
	}
	nozzle, err := in.Record(ArtifactNozzleLoadCheck)
	if err != nil {
		return datum.Value{}, err
	}

	hoopRatio, err := recordNumber("pipe stress", stress, "hoopRatio")
	if err != nil {
		return datum.Value{}, err
	}
	longRatio, err := recordNumber("pipe stress", stress, "longitudinalRatio")
	if err != nil {
		return datum.Value{}, err
	}
	nozzleRatio, err := recordNumber("nozzle check", nozzle, "maxRatio")
	if err != nil {
		return datum.Value{}, err
	}

	maxRatio, governing := hoopRatio, "hoopStress"
	if longRatio > maxRatio {
		maxRatio, governing = longRatio, "longitudinalStress"
	}
	if nozzleRatio > maxRatio {
		maxRatio, governing = nozzleRatio, "nozzleLoads"
	}

	within := maxRatio < 1.0
	text := "All actual pipe stresses meet code allowable stresses."
	if !within {
		text = fmt.Sprintf("Code allowable stresses potentially exceeded. The maximum stress ratio found is %.3f.", maxRatio)
	}

	return datum.RecordValue(map[string]any{
		"designPressurePsig":    pressure,
		"designTemperatureDegF": temperature,
		"checks": []any{
			summaryCheck("hoopStress", hoopRatio),
			summaryCheck("longitudinalStress", longRatio),
			summaryCheck("nozzleLoads", nozzleRatio),
		},
		"maxRatio":        roundTo(maxRatio, 3),
		"governingCheck":  governing,
		"withinAllowable": within,
		"summaryText":     text,
	})
}

func summaryCheck(name string, ratio float64) map[string]any {
	return map[string]any{
		"check":           name,
		"ratio":           roundTo(ratio, 3),
		"withinAllowable": ratio < 1.0,
	}
}

// deriveIsoStressDrawing builds the drawing model for an isometric
// stress contour: legend bands spanning zero to the code allowable and
// the band the computed hoop stress falls in. Rendering is a client
// concern; the model carries what a plotter needs.
func deriveIsoStressDrawing(_ context.Context, in registry.Inputs) (datum.Value, error) {
	od, err := in.Number(ParamPipeOutsideDiameter)
	if err != nil {
		return datum.Value{}, err
	}
	stress, err := in.Record(ArtifactPipeStressCalc)
	if err != nil {
		return datum.Value{}, err
	}
	hoop, err := recordNumber("pipe stress", stress, "hoopStressPsi")
	if err != nil {
		return datum.Value{}, err
	}
	allowable, err := recordNumber("pipe stress", stress, "allowableStressPsi")
	if err != nil {
		return datum.Value{}, err
	}
	if allowable <= 0 {
		return datum.Value{}, fmt.Errorf("pipe stress record has non-positive allowable stress %g", allowable)
	}

	width := allowable / contourBandCount
	bands := make([]any, 0, contourBandCount)
	for i := 0; i < contourBandCount; i++ {
		bands = append(bands, map[string]any{
			"band":    i + 1,
			"fromPsi": roundTo(float64(i)*width, 1),
			"toPsi":   roundTo(float64(i+1)*width, 1),
		})
	}
	highlight := int(hoop/width) + 1
	if highlight > contourBandCount {
		highlight = contourBandCount
	}

	return datum.RecordValue(map[string]any{
		"title":             "ISOMETRIC STRESS CONTOUR - PIPING",
		"outsideDiameterIn": od,
		"hoopStressPsi":     hoop,
		"contourUnits":      "psi",
		"bands":             bands,
		"highlightBand":     highlight,
		"exceedsScale":      hoop > allowable,
	})
}

// deriveAnalysisCoversheet fills the coversheet template model from the
// analysis identity parameters and the summary report's verdict.
func deriveAnalysisCoversheet(_ context.Context, in registry.Inputs) (datum.Value, error) {
	number, err := in.String(ParamAnalysisNumber)
	if err != nil {
		return datum.Value{}, err
	}
	title, err := in.String(ParamAnalysisTitle)
	if err != nil {
		return datum.Value{}, err
	}
	station, err := in.String(ParamStationName)
	if err != nil {
		return datum.Value{}, err
	}
	report, err := in.Record(ArtifactStressSummaryReport)
	if err != nil {
		return datum.Value{}, err
	}
	summaryText, err := recordString("stress summary", report, "summaryText")
	if err != nil {
		return datum.Value{}, err
	}
	maxRatio, err := recordNumber("stress summary", report, "maxRatio")
	if err != nil {
		return datum.Value{}, err
	}

	return datum.RecordValue(map[string]any{
		"template": "analysis-coversheet",
		"fields": map[string]any{
			"analysisNumber": number,
			"analysisTitle":  title,
			"station":        station,
			"summaryText":    summaryText,
			"maxStressRatio": maxRatio,
			"acceptable":     maxRatio < 1.0,
		},
	})
}

// recordNumber reads a numeric field out of an upstream record value.
func recordNumber(source string, rec map[string]any, field string) (float64, error) {
	raw, ok := rec[field]
	if !ok {
		return 0, fmt.Errorf("%s record is missing field %q", source, field)
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%s record field %q is not a number", source, field)
	}
	return f, nil
}

func recordString(source string, rec map[string]any, field string) (string, error) {
	raw, ok := rec[field]
	if !ok {
		return "", fmt.Errorf("%s record is missing field %q", source, field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s record field %q is not a string", source, field)
	}
	return s, nil
}

func sq(x float64) float64 { return x * x }

// roundTo rounds x to the given number of decimal places.
func roundTo(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
