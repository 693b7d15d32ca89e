package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/internal/query"
	"github.com/fairline/loft/internal/resolver"
	"github.com/fairline/loft/pkg/datum"
)

var (
	getInstanceName string
)

var getCmd = &cobra.Command{
	Use:   "get REF",
	Short: "Show one parameter or artifact as JSON",
	Long: `Show the complete current state of a parameter or artifact as
pretty-printed JSON.

REF is a full ID or a unique prefix. Parameters and artifacts share one
identifier namespace, so a single ref names either; an artifact's output
includes the provenance map recording the exact input revisions it was
derived from.

Examples:
  # Full ID
  loft get designPressure

  # Unique prefix
  loft get pipeStr

  # Trace an artifact back to the inputs that produced it
  loft get pipeStressCalc | jq .provenance`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getInstanceName, "name", "n", "", "Target instance name")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref := args[0]

	client, err := connect(ctx, getInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	match, err := resolver.ResolveRef(ctx, client, ref)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return printer.Error(
				fmt.Sprintf("no parameter or artifact matches '%s'", ref),
				"Nothing in this instance has that ID or prefix.",
				[]string{
					"List parameters:\n  loft list --parameters",
					"List artifacts:\n  loft list",
				},
			)
		}
		if resolver.IsAmbiguousError(err) {
			ambigErr := err.(*resolver.AmbiguousError)
			fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
			return fmt.Errorf("ambiguous ref")
		}
		return fmt.Errorf("failed to resolve ref: %w", err)
	}

	switch match.Entity {
	case resolver.EntityParameter:
		err = query.GetParameter(ctx, client, match.ID, os.Stdout)
	case resolver.EntityArtifact:
		err = query.GetArtifact(ctx, client, match.ID, os.Stdout)
	default:
		return fmt.Errorf("unknown entity kind %q", match.Entity)
	}
	if err != nil {
		if datum.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("'%s' disappeared mid-read", match.ID),
				"The ref resolved but the record could not be fetched.",
				[]string{"This can happen when a delete races the read. Try again."},
			)
		}
		return fmt.Errorf("failed to fetch %s: %w", match.Entity, err)
	}

	return nil
}
