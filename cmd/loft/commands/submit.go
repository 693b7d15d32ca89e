package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/internal/timespec"
	"github.com/fairline/loft/internal/watch"
	"github.com/fairline/loft/pkg/datum"
)

var (
	submitInstanceName string
	submitSets         []string
	submitRequester    string
	submitWait         bool
	submitTimeout      string
)

var submitCmd = &cobra.Command{
	Use:   "submit [CHANGE_FILE]",
	Short: "Submit an atomic change request",
	Long: `Submit a change request writing one or more parameters.

The request commits atomically: either every write lands as a new revision
or the whole request is rejected. Each write is checked against the
revision the requester last observed; a concurrent commit to any touched
parameter rejects the request with a conflict, never a partial apply.

File Mode (with CHANGE_FILE):
  Reads a YAML change document, the same shape the daemon's inbox accepts:

    requester: mechanical
    base:
      designPressure: 3   # optional, defaults to the current revision
    writes:
      designPressure: 300

Flag Mode (no CHANGE_FILE):
  Builds the document from repeated --set flags. Values parse as YAML, so
  numbers, quoted strings, and inline records all work.

Examples:
  # Single write based on the current revision
  loft submit --set designPressure=300 --requester mechanical

  # Atomic multi-parameter write
  loft submit --set designPressure=300 --set wallThickness=0.322

  # Record value
  loft submit --set 'nozzleLoads={axialLb: 1200, shearLb: 800, bendingFtLb: 950, torsionFtLb: 1400}'

  # Submit a prepared document and wait for recomputation to settle
  loft submit change.yml --wait`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitInstanceName, "name", "n", "", "Target instance name")
	submitCmd.Flags().StringArrayVar(&submitSets, "set", nil, "Parameter write as id=value (repeatable, value parses as YAML)")
	submitCmd.Flags().StringVar(&submitRequester, "requester", "cli", "Requester recorded on the committed revisions")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Wait for recomputation to settle before returning")
	submitCmd.Flags().StringVar(&submitTimeout, "timeout", "2m", "How long --wait polls before giving up")
	rootCmd.AddCommand(submitCmd)
}

// changeDocument is the YAML change request shape, shared with the inbox.
type changeDocument struct {
	Requester string           `yaml:"requester"`
	Base      map[string]int64 `yaml:"base"`
	Writes    map[string]any   `yaml:"writes"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) > 0 && len(submitSets) > 0 {
		return printer.Error(
			"conflicting write sources",
			"A change file and --set flags cannot be combined.",
			[]string{"Put every write in the file, or drop the file and repeat --set"},
		)
	}
	if len(args) == 0 && len(submitSets) == 0 {
		return printer.Error(
			"nothing to submit",
			"The request writes no parameters.",
			[]string{
				"Pass a change file:\n  loft submit change.yml",
				"Or set parameters directly:\n  loft submit --set designPressure=300",
			},
		)
	}

	var doc changeDocument
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return printer.Error("cannot read change file", err.Error(), nil)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return printer.Error(
				"invalid change document",
				fmt.Sprintf("Failed to parse %s: %v", args[0], err),
				nil,
			)
		}
	} else {
		doc.Writes = make(map[string]any, len(submitSets))
		for _, pair := range submitSets {
			id, value, err := parseSetFlag(pair)
			if err != nil {
				return printer.Error(
					"invalid --set flag",
					err.Error(),
					[]string{"Use id=value, e.g. --set designPressure=300"},
				)
			}
			doc.Writes[id] = value
		}
	}
	if doc.Requester == "" {
		doc.Requester = submitRequester
	}
	if len(doc.Writes) == 0 {
		return printer.Error(
			"nothing to submit",
			fmt.Sprintf("%s writes no parameters.", args[0]),
			[]string{"Add a writes section to the document"},
		)
	}

	client, err := connect(ctx, submitInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	req, err := buildChangeRequest(ctx, client, &doc)
	if err != nil {
		return printer.Error(
			"cannot build change request",
			err.Error(),
			[]string{"List registered parameters:\n  loft list --parameters"},
		)
	}

	revisions, err := client.CommitChange(ctx, req)
	if err != nil {
		var conflict *datum.ConflictError
		if errors.As(err, &conflict) {
			return printer.ErrorWithContext(
				"change request rejected",
				"Another commit advanced a touched parameter past your base revision.",
				map[string]string{
					"Conflicts": strings.Join(conflict.ConflictingIDs, ", "),
				},
				[]string{"Refetch the current revisions and resubmit:\n  loft get <parameter>"},
			)
		}
		return fmt.Errorf("failed to commit change: %w", err)
	}

	printer.Success("change %s committed by %s\n", shortRequestID(req.ID), req.RequesterID)
	ids := make([]string, 0, len(revisions))
	for id := range revisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		printer.Info("  %s → v%d\n", id, revisions[id])
	}

	if submitWait {
		timeout, err := timespec.ParseDuration(submitTimeout)
		if err != nil {
			return printer.Error(
				"invalid --timeout",
				err.Error(),
				[]string{"Use a duration like '30s' or '2m'"},
			)
		}
		printer.Step("waiting for recomputation to settle...\n")
		result, err := watch.WaitForConvergence(ctx, client, timeout)
		if err != nil {
			return printer.Error(
				"recomputation did not settle",
				err.Error(),
				[]string{"Inspect in-flight state:\n  loft list --status stale"},
			)
		}
		reportConvergence(result)
	}

	return nil
}

// parseSetFlag splits an id=value pair and parses the value as YAML.
func parseSetFlag(pair string) (string, any, error) {
	id, rawValue, found := strings.Cut(pair, "=")
	if !found || id == "" {
		return "", nil, fmt.Errorf("malformed --set %q: expected id=value", pair)
	}

	var value any
	if err := yaml.Unmarshal([]byte(rawValue), &value); err != nil {
		return "", nil, fmt.Errorf("malformed --set value for %q: %v", id, err)
	}
	if value == nil {
		return "", nil, fmt.Errorf("--set %q has no value", id)
	}
	return id, value, nil
}

// buildChangeRequest converts a document into a change request. Writes
// without a declared base revision take the parameter's current revision;
// the commit still fails with a conflict if someone else writes in between.
func buildChangeRequest(ctx context.Context, client *datum.Client, doc *changeDocument) (*datum.ChangeRequest, error) {
	req := &datum.ChangeRequest{
		ID:            uuid.New().String(),
		RequesterID:   doc.Requester,
		BaseRevisions: make(map[string]int64, len(doc.Writes)),
		Writes:        make(map[string]datum.Value, len(doc.Writes)),
		SubmittedAtMs: time.Now().UnixMilli(),
	}

	for id, raw := range doc.Writes {
		value, err := datum.ValueFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", id, err)
		}
		req.Writes[id] = value

		if base, ok := doc.Base[id]; ok {
			req.BaseRevisions[id] = base
			continue
		}

		current, err := client.GetParameter(ctx, id)
		if err != nil {
			if datum.IsNotFound(err) {
				return nil, fmt.Errorf("unknown parameter %q", id)
			}
			return nil, fmt.Errorf("failed to read current revision of %q: %w", id, err)
		}
		req.BaseRevisions[id] = current.Revision
	}

	return req, nil
}

// reportConvergence summarizes the artifact population after --wait.
func reportConvergence(result *watch.Result) {
	if result.Settled() {
		printer.Success("recomputation settled (%d artifacts)\n", result.Artifacts)
		return
	}

	printer.Warning("recomputation settled with failures\n")
	for _, id := range result.Failed {
		printer.Printf("  %s %s keeps its last good value\n", printer.Status(datum.ArtifactStatusFailed), id)
	}
	for _, id := range result.Blocked {
		printer.Printf("  %s %s is blocked behind a failed input\n", printer.Status(datum.ArtifactStatusStale), id)
	}
}

// shortRequestID truncates a change request UUID for compact display.
func shortRequestID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
