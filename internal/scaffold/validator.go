package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting checks if scaffold-owned files already exist.
// Returns an error if they do, nil otherwise.
func CheckExisting() error {
	var existingFiles []string

	if _, err := os.Stat("loft.yml"); err == nil {
		existingFiles = append(existingFiles, "loft.yml")
	}

	example := filepath.Join("inbox", "change.yml.example")
	if _, err := os.Stat(example); err == nil {
		existingFiles = append(existingFiles, example)
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'loft init --force' to reinitialize (this will overwrite the existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
