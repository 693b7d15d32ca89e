package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "loft",
	Short: "Loft - shared design data distribution and derivation",
	Long: `Loft keeps a project's shared design parameters in one versioned store,
recomputes derived artifacts when the parameters they depend on change,
and streams both kinds of updates to discipline tools.

Parameters change only through atomic change requests checked against the
revisions the requester last observed. Every artifact carries the exact
input revisions it was derived from, so any derived number can be traced
back to the design state that produced it.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "loft --set x=1" instead of "loft submit --set x=1"
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
