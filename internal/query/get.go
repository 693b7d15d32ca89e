package query

import (
	"context"
	"fmt"
	"io"

	"github.com/fairline/loft/pkg/datum"
)

// GetArtifact retrieves a single artifact by ID and writes it as
// pretty-printed JSON to the writer. Not-found errors pass through
// unwrapped so callers can test them with datum.IsNotFound.
func GetArtifact(ctx context.Context, client *datum.Client, artifactID string, w io.Writer) error {
	if err := datum.ValidateID(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}

	artifact, err := client.GetArtifact(ctx, artifactID)
	if err != nil {
		if datum.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to fetch artifact: %w", err)
	}

	if err := FormatSingleJSON(w, artifact); err != nil {
		return fmt.Errorf("failed to format artifact: %w", err)
	}

	return nil
}

// GetParameter retrieves a single parameter by ID and writes it as
// pretty-printed JSON to the writer. Not-found errors pass through
// unwrapped so callers can test them with datum.IsNotFound.
func GetParameter(ctx context.Context, client *datum.Client, parameterID string, w io.Writer) error {
	if err := datum.ValidateID(parameterID); err != nil {
		return fmt.Errorf("invalid parameter ID: %w", err)
	}

	parameter, err := client.GetParameter(ctx, parameterID)
	if err != nil {
		if datum.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to fetch parameter: %w", err)
	}

	if err := FormatSingleJSON(w, parameter); err != nil {
		return fmt.Errorf("failed to format parameter: %w", err)
	}

	return nil
}

// ParameterHistory retrieves the surviving revision snapshots of a
// parameter in ascending revision order and writes them to the provided
// writer. Revisions pruned by the retention policy are absent from the
// output.
func ParameterHistory(ctx context.Context, client *datum.Client, parameterID string, format OutputFormat, w io.Writer) error {
	if err := datum.ValidateID(parameterID); err != nil {
		return fmt.Errorf("invalid parameter ID: %w", err)
	}

	history, err := client.ParameterHistory(ctx, parameterID)
	if err != nil {
		if datum.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to fetch parameter history: %w", err)
	}

	switch format {
	case OutputFormatDefault:
		FormatParameterHistory(w, history, parameterID)
	case OutputFormatJSONL:
		if err := FormatParametersJSONL(w, history); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
