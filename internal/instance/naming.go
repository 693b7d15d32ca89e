// Package instance holds the identity rules for a loft instance: name
// validation and Redis endpoint resolution. The instance name prefixes
// every Redis key and pub/sub channel, so multiple instances can share
// one Redis server without touching each other's data.
package instance

import (
	"fmt"
	"regexp"
)

const (
	// DefaultName is the instance name used when none is configured.
	DefaultName = "default"

	// EnvInstanceName overrides the configured instance name for both
	// the daemon and the CLI.
	EnvInstanceName = "LOFT_INSTANCE_NAME"

	// EnvConfigPath overrides where the daemon and the CLI look for
	// loft.yml.
	EnvConfigPath = "LOFT_CONFIG"

	// MaxNameLength is the maximum length for an instance name. Names
	// are embedded in Redis keys and log fields, so they stay short.
	MaxNameLength = 32
)

// NamePattern is the regex pattern for valid instance names.
// DNS-label style: lowercase alphanumeric with hyphens, not at start/end.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if an instance name is valid.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
