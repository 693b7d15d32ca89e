package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairline/loft/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a loft project in the current directory",
	Long: `Initialize a loft project with a starter configuration and inbox.

Creates:
  • loft.yml - Instance, engine, and pack configuration with seed parameters
  • inbox/   - Drop directory for YAML change documents, with an example

The starter configuration enables the piping pack and seeds every design
parameter its derivations read, so a freshly started daemon computes the
full artifact chain immediately.

Use --force to reinitialize an existing project (WARNING: overwrites the
existing configuration; documents already in the inbox are kept).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing loft.yml and the inbox example)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()

	return nil
}
