package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/internal/watch"
)

var (
	watchInstanceName string
	watchKinds        []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream change and artifact events",
	Long: `Stream committed change requests and artifact state transitions as
they happen, one line per event, until interrupted.

Event lines:
  ● change committed    ✓ artifact recomputed
  + artifact registered ○ artifact marked stale  ✗ recompute failed

Delivery is best-effort: events ride Redis pub/sub, so a subscriber that
falls behind misses events rather than slowing committers down. Use
'loft list' to reconcile from store state after a gap.

Examples:
  # Everything on the default instance
  loft watch

  # Only drawings and reports
  loft watch --kinds drawing,report`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Target instance name")
	watchCmd.Flags().StringSliceVar(&watchKinds, "kinds", nil, "Only show artifact events whose kind matches a glob")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, watchInstanceName)
	if err != nil {
		return err
	}
	defer client.Close()

	changes, err := client.SubscribeChangeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change events: %w", err)
	}
	defer changes.Close()

	artifacts, err := client.SubscribeArtifactEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to artifact events: %w", err)
	}
	defer artifacts.Close()

	printer.Info("Watching instance '%s' (Ctrl+C to stop)\n\n", client.InstanceName())

	formatter := watch.NewFormatter(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			printer.Info("\nstopped\n")
			return nil

		case event, ok := <-changes.Events():
			if !ok {
				return nil
			}
			if err := formatter.FormatChange(event); err != nil {
				return err
			}

		case event, ok := <-artifacts.Events():
			if !ok {
				return nil
			}
			if !kindMatches(string(event.Kind), watchKinds) {
				continue
			}
			if err := formatter.FormatArtifact(event); err != nil {
				return err
			}

		// Subscription errors are non-fatal: malformed payloads are
		// skipped and the stream continues.
		case err, ok := <-changes.Errors():
			if ok && err != nil {
				printer.Warning("change stream: %v\n", err)
			}

		case err, ok := <-artifacts.Errors():
			if ok && err != nil {
				printer.Warning("artifact stream: %v\n", err)
			}
		}
	}
}

// kindMatches reports whether an artifact kind passes the --kinds globs.
// An empty filter passes everything.
func kindMatches(kind string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, err := filepath.Match(g, kind); err == nil && ok {
			return true
		}
	}
	return false
}
