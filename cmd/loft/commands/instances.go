package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/instance"
	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/pkg/datum"
)

var instancesJSON bool

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List loft instances on the Redis server",
	Long: `List every loft instance sharing the configured Redis server.

Instances are discovered from their namespaced store keys, so stopped
daemons still show up as long as their data is present.

For each instance, displays:
  • Instance name
  • Health (Converged/Deriving/Degraded/Idle)
  • Parameter and artifact counts
  • Failed artifact count

Use --json for machine-readable output.`,
	RunE: runInstances,
}

func init() {
	instancesCmd.Flags().BoolVar(&instancesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(instancesCmd)
}

func runInstances(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rdb, redisOpts, err := connectRedis(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	names, err := instance.Discover(ctx, rdb)
	if err != nil {
		return printer.Error("instance discovery failed", err.Error(), nil)
	}

	infos, err := collectInstanceInfos(ctx, redisOpts, names)
	if err != nil {
		return printer.Error("instance inspection failed", err.Error(), nil)
	}

	if len(infos) == 0 {
		if instancesJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No loft instances found.")
			fmt.Println()
			fmt.Println("Run 'loft init' and start 'loftd' to create one.")
		}
		return nil
	}

	if instancesJSON {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal instances: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printInstanceTable(infos)
	}

	return nil
}

// collectInstanceInfos opens a short-lived store client per discovered
// instance and summarizes its contents.
func collectInstanceInfos(ctx context.Context, redisOpts *redis.Options, names []string) ([]instance.Info, error) {
	infos := make([]instance.Info, 0, len(names))
	for _, name := range names {
		info, err := inspectInstance(ctx, redisOpts, name)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect instance '%s': %w", name, err)
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

func inspectInstance(ctx context.Context, redisOpts *redis.Options, name string) (*instance.Info, error) {
	client, err := datum.NewClient(redisOpts, name)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	paramIDs, err := client.ListParameterIDs(ctx)
	if err != nil {
		return nil, err
	}

	artifacts, err := client.ListArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	info := &instance.Info{
		Name:       name,
		Parameters: len(paramIDs),
		Artifacts:  len(artifacts),
	}
	statuses := make([]datum.ArtifactStatus, 0, len(artifacts))
	for _, a := range artifacts {
		statuses = append(statuses, a.Status)
		if a.Status == datum.ArtifactStatusFailed {
			info.Failed++
		}
	}
	info.Health = instance.DetermineHealth(statuses)

	return info, nil
}

func printInstanceTable(infos []instance.Info) {
	fmt.Printf("%-20s %-11s %11s %10s %7s\n", "INSTANCE", "HEALTH", "PARAMETERS", "ARTIFACTS", "FAILED")
	for _, info := range infos {
		fmt.Printf("%-20s %-11s %11d %10d %7d\n",
			info.Name, info.Health, info.Parameters, info.Artifacts, info.Failed)
	}
}
