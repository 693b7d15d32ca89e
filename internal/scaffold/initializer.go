// Package scaffold writes the starter files for a new loft project: a
// loft.yml with the piping pack and its seed parameters, and an inbox
// directory with an example change request document.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fairline/loft/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the loft project structure in the current
// directory. If force is true, an existing loft.yml and the inbox
// example are removed first; committed inbox documents are left alone.
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := os.MkdirAll("inbox", 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return validateCreatedFiles()
}

// handleForce removes scaffold-owned files if --force was specified
func handleForce() error {
	if _, err := os.Stat("loft.yml"); err == nil {
		fmt.Println("⚠️  Removing existing loft.yml...")
		if err := os.Remove("loft.yml"); err != nil {
			return fmt.Errorf("failed to remove loft.yml: %w", err)
		}
	}

	example := filepath.Join("inbox", "change.yml.example")
	if _, err := os.Stat(example); err == nil {
		if err := os.Remove(example); err != nil {
			return fmt.Errorf("failed to remove %s: %w", example, err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	loftYml, err := templatesFS.ReadFile("templates/loft.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read loft.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        "loft.yml",
		Content:     loftYml,
		Permissions: 0644,
	})

	example, err := templatesFS.ReadFile("templates/change.yml.example.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read change example template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("inbox", "change.yml.example"),
		Content:     example,
		Permissions: 0644,
	})

	return files, nil
}

// validateCreatedFiles runs the created loft.yml through full config
// validation.
func validateCreatedFiles() error {
	if _, err := config.Load("loft.yml"); err != nil {
		return fmt.Errorf("created loft.yml failed validation: %w", err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized loft project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ loft.yml")
	fmt.Println("  ✓ inbox/change.yml.example")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the seed parameters in loft.yml")
	fmt.Println("  2. Start the daemon: loftd")
	fmt.Println("  3. Submit a change: loft submit --set designPressure=300 --requester mechanical")
	fmt.Println("  4. Follow recomputation: loft watch")
}
