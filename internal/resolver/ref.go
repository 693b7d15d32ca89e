package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairline/loft/pkg/datum"
)

// Entity distinguishes which store namespace a resolved ID belongs to.
type Entity string

const (
	// EntityParameter is a shared design parameter
	EntityParameter Entity = "parameter"

	// EntityArtifact is a derived artifact
	EntityArtifact Entity = "artifact"
)

// Match is one candidate resolution of a ref.
type Match struct {
	ID     string
	Entity Entity
}

// ResolveRef resolves a user-supplied ref to a full parameter or artifact ID.
// Parameters and artifacts share one identifier namespace, so a single ref
// can name either.
//
// The function handles three cases:
// 1. Ref is an existing full ID - returned as-is with its entity
// 2. Ref is a prefix of exactly one ID - expanded to the full ID
// 3. Ref matches zero or multiple IDs - NotFoundError or AmbiguousError
//
// An exact match wins outright, even when the ref is also a prefix of
// longer IDs.
func ResolveRef(ctx context.Context, client *datum.Client, ref string) (Match, error) {
	if ref == "" {
		return Match{}, fmt.Errorf("ref cannot be empty")
	}

	parameterIDs, err := client.ListParameterIDs(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("failed to list parameters: %w", err)
	}
	artifactIDs, err := client.ListArtifactIDs(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("failed to list artifacts: %w", err)
	}

	for _, id := range parameterIDs {
		if id == ref {
			return Match{ID: id, Entity: EntityParameter}, nil
		}
	}
	for _, id := range artifactIDs {
		if id == ref {
			return Match{ID: id, Entity: EntityArtifact}, nil
		}
	}

	var matches []Match
	for _, id := range parameterIDs {
		if strings.HasPrefix(id, ref) {
			matches = append(matches, Match{ID: id, Entity: EntityParameter})
		}
	}
	for _, id := range artifactIDs {
		if strings.HasPrefix(id, ref) {
			matches = append(matches, Match{ID: id, Entity: EntityArtifact})
		}
	}

	switch len(matches) {
	case 0:
		return Match{}, &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		return Match{}, &AmbiguousError{Ref: ref, Matches: matches}
	}
}

// NotFoundError indicates no parameter or artifact matched the ref.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no parameter or artifact found matching '%s'", e.Ref)
}

// AmbiguousError indicates multiple IDs matched the ref prefix.
type AmbiguousError struct {
	Ref     string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous ref '%s' matches %d IDs", e.Ref, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous refs.
// Lists all matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous ref '%s' matches %d IDs:\n", err.Ref, len(err.Matches))

	// List up to 10 matches
	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s (%s)\n", err.Matches[i].ID, err.Matches[i].Entity)
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the ID."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
