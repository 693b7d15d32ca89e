package query

import (
	"context"
	"fmt"
	"io"

	"github.com/fairline/loft/internal/filter"
	"github.com/fairline/loft/pkg/datum"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated values
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ListArtifacts retrieves all registered artifacts, applies the filter
// criteria if provided, and writes them to the provided writer. Output is
// sorted by artifact ID for stable, diffable listings.
func ListArtifacts(ctx context.Context, client *datum.Client, format OutputFormat, criteria *filter.ArtifactCriteria, w io.Writer) error {
	artifacts, err := client.ListArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if criteria != nil && criteria.HasFilters() {
		var filtered []*datum.Artifact
		for _, a := range artifacts {
			if criteria.Matches(a) {
				filtered = append(filtered, a)
			}
		}
		artifacts = filtered
	}

	switch format {
	case OutputFormatDefault:
		FormatArtifactTable(w, artifacts, client.InstanceName())
	case OutputFormatJSONL:
		if err := FormatArtifactsJSONL(w, artifacts); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}

// ListParameters retrieves all registered parameters, applies the filter
// criteria if provided, and writes them to the provided writer. Output is
// sorted by parameter ID.
func ListParameters(ctx context.Context, client *datum.Client, format OutputFormat, criteria *filter.ParameterCriteria, w io.Writer) error {
	parameters, err := client.ListParameters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list parameters: %w", err)
	}

	if criteria != nil && criteria.HasFilters() {
		var filtered []*datum.Parameter
		for _, p := range parameters {
			if criteria.Matches(p) {
				filtered = append(filtered, p)
			}
		}
		parameters = filtered
	}

	switch format {
	case OutputFormatDefault:
		FormatParameterTable(w, parameters, client.InstanceName())
	case OutputFormatJSONL:
		if err := FormatParametersJSONL(w, parameters); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
