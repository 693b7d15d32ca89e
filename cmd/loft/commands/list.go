package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/filter"
	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/internal/query"
	"github.com/fairline/loft/internal/timespec"
	"github.com/fairline/loft/pkg/datum"
)

var (
	listInstanceName string
	listOutputFormat string
	listParameters   bool
	listKind         string
	listStatus       string
	listDiscipline   string
	listSince        string
	listUntil        string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts or parameters with filtering",
	Long: `List derived artifacts (default) or shared parameters as a table or
JSONL stream, sorted by ID.

Output Formats:
  default - Human-readable table with truncated values
  jsonl   - Line-delimited JSON, one record per line

Artifact Filters:
  --kind       - Filter by artifact kind (glob: calculation, draw*)
  --status     - Filter by consistency status: current, stale, failed
  --discipline - Filter by producing discipline (exact match)

Time Filters:
  --since / --until bound the last update time (duration or RFC3339).

Examples:
  # All artifacts
  loft list

  # Anything that has not recomputed cleanly
  loft list --status failed
  loft list --status stale

  # Parameters owned by one discipline
  loft list --parameters --discipline piping

  # Recent recomputes as JSONL for jq
  loft list --output=jsonl --since=1h | jq 'select(.status=="current") | .id'`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listInstanceName, "name", "n", "", "Target instance name")
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	listCmd.Flags().BoolVar(&listParameters, "parameters", false, "List parameters instead of artifacts")

	// Artifact-only filters
	listCmd.Flags().StringVar(&listKind, "kind", "", "Filter by artifact kind (glob pattern)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status: current, stale, or failed")

	// Shared filters
	listCmd.Flags().StringVar(&listDiscipline, "discipline", "", "Filter by discipline (exact match)")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show records updated after time (duration or RFC3339)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Show records updated before time (duration or RFC3339)")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	outputFormat, err := parseOutputFormat(listOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			err.Error(),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMS, untilMS, err := timespec.ParseRange(listSince, listUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m' or RFC3339 like '2026-08-23T13:00:00Z'"},
		)
	}

	if listParameters && (listKind != "" || listStatus != "") {
		return printer.Error(
			"invalid filter combination",
			"--kind and --status only apply to artifacts.",
			[]string{"Filter parameters by --discipline, --since, or --until"},
		)
	}

	var status datum.ArtifactStatus
	if listStatus != "" {
		status = datum.ArtifactStatus(listStatus)
		if err := status.Validate(); err != nil {
			return printer.Error(
				"invalid --status",
				err.Error(),
				[]string{"Valid statuses: current, stale, failed"},
			)
		}
	}

	client, err := connect(ctx, listInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	if listParameters {
		criteria := &filter.ParameterCriteria{
			SinceMs:    sinceMS,
			UntilMs:    untilMS,
			Discipline: listDiscipline,
		}
		if err := query.ListParameters(ctx, client, outputFormat, criteria, os.Stdout); err != nil {
			return fmt.Errorf("failed to list parameters: %w", err)
		}
		return nil
	}

	criteria := &filter.ArtifactCriteria{
		SinceMs:    sinceMS,
		UntilMs:    untilMS,
		KindGlob:   listKind,
		Discipline: listDiscipline,
		Status:     status,
	}
	if err := query.ListArtifacts(ctx, client, outputFormat, criteria, os.Stdout); err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	return nil
}

// parseOutputFormat validates an --output flag value.
func parseOutputFormat(s string) (query.OutputFormat, error) {
	switch s {
	case "default":
		return query.OutputFormatDefault, nil
	case "jsonl":
		return query.OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}
