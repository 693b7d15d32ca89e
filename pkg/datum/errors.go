package datum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NotFoundError indicates an unknown identifier or a revision pruned from
// history by the retention policy.
type NotFoundError struct {
	Entity string // "parameter", "artifact" or "revision"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ConflictError indicates an optimistic write lost the race: at least one
// parameter's current revision no longer matches the request's base
// revision. The caller must refetch and resubmit.
type ConflictError struct {
	RequestID      string
	ConflictingIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("change request %s conflicts on: %s", e.RequestID, strings.Join(e.ConflictingIDs, ", "))
}

// IsNotFound returns true for NotFoundError and for raw Redis key misses
// (redis.Nil). Use this to check GetParameter, GetArtifact and ParameterAt
// results.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, redis.Nil)
}

// IsConflict returns true if the error is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
