package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/internal/query"
	"github.com/fairline/loft/internal/resolver"
	"github.com/fairline/loft/pkg/datum"
)

var (
	paramInstanceName        string
	paramHistoryOutputFormat string
)

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Inspect parameter revision history",
	Long: `Inspect the revision thread behind a parameter.

Every committed change request appends a new revision; old revisions
survive until the retention policy prunes them, so artifact provenance
stays resolvable back to the exact values a derivation read.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var paramHistoryCmd = &cobra.Command{
	Use:   "history PARAMETER",
	Short: "Show a parameter's surviving revisions",
	Long: `Show a parameter's surviving revisions, oldest first.

PARAMETER is a full ID or a unique prefix. Revisions older than the
retention window are pruned by the daemon and absent from the output.

Examples:
  loft param history designPressure
  loft param history designPressure --output=jsonl | jq .revision`,
	Args: cobra.ExactArgs(1),
	RunE: runParamHistory,
}

var paramAtCmd = &cobra.Command{
	Use:   "at PARAMETER REVISION",
	Short: "Show one historical revision of a parameter",
	Long: `Show the full snapshot of a parameter at a specific revision as
pretty-printed JSON. This is the lookup behind provenance tracing: an
artifact's provenance map names input revisions, and 'param at' shows the
exact value each one held.

Examples:
  loft param at designPressure 3
  loft param at designPressure v3`,
	Args: cobra.ExactArgs(2),
	RunE: runParamAt,
}

func init() {
	paramCmd.PersistentFlags().StringVarP(&paramInstanceName, "name", "n", "", "Target instance name")
	paramHistoryCmd.Flags().StringVarP(&paramHistoryOutputFormat, "output", "o", "default", "Output format: default or jsonl")

	paramCmd.AddCommand(paramHistoryCmd)
	paramCmd.AddCommand(paramAtCmd)
	rootCmd.AddCommand(paramCmd)
}

func runParamHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	outputFormat, err := parseOutputFormat(paramHistoryOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			err.Error(),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	client, err := connect(ctx, paramInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveParameterRef(ctx, client, args[0])
	if err != nil {
		return err
	}

	if err := query.ParameterHistory(ctx, client, id, outputFormat, os.Stdout); err != nil {
		if datum.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("parameter '%s' not found", id),
				"The parameter was resolved but its history could not be fetched.",
				[]string{"This can happen when a delete races the read. Try again."},
			)
		}
		return fmt.Errorf("failed to fetch history: %w", err)
	}
	return nil
}

func runParamAt(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Accept both "3" and the "v3" form the tables display.
	revision, err := strconv.ParseInt(strings.TrimPrefix(args[1], "v"), 10, 64)
	if err != nil || revision < 1 {
		return printer.Error(
			"invalid revision",
			fmt.Sprintf("'%s' is not a revision number.", args[1]),
			[]string{"Pass the numeric revision:\n  loft param at designPressure 3"},
		)
	}

	client, err := connect(ctx, paramInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := resolveParameterRef(ctx, client, args[0])
	if err != nil {
		return err
	}

	p, err := client.ParameterAt(ctx, id, revision)
	if err != nil {
		if datum.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("revision v%d of '%s' not found", revision, id),
				"The revision never existed or was pruned by the retention policy.",
				[]string{fmt.Sprintf("List surviving revisions:\n  loft param history %s", id)},
			)
		}
		return fmt.Errorf("failed to fetch revision: %w", err)
	}

	if err := query.FormatSingleJSON(os.Stdout, p); err != nil {
		return fmt.Errorf("failed to format revision: %w", err)
	}
	return nil
}

// resolveParameterRef resolves a ref and requires it to name a parameter.
func resolveParameterRef(ctx context.Context, client *datum.Client, ref string) (string, error) {
	match, err := resolver.ResolveRef(ctx, client, ref)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return "", printer.Error(
				fmt.Sprintf("no parameter matches '%s'", ref),
				"Nothing in this instance has that ID or prefix.",
				[]string{"List parameters:\n  loft list --parameters"},
			)
		}
		if resolver.IsAmbiguousError(err) {
			ambigErr := err.(*resolver.AmbiguousError)
			fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
			return "", fmt.Errorf("ambiguous ref")
		}
		return "", fmt.Errorf("failed to resolve ref: %w", err)
	}

	if match.Entity != resolver.EntityParameter {
		return "", printer.Error(
			fmt.Sprintf("'%s' is an artifact", match.ID),
			"Only parameters keep a revision thread. An artifact stores its current state plus the input revisions that produced it.",
			[]string{fmt.Sprintf("Inspect the artifact's provenance instead:\n  loft get %s", match.ID)},
		)
	}
	return match.ID, nil
}
