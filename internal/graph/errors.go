package graph

import (
	"errors"
	"fmt"
	"strings"
)

// CycleError reports a rejected registration that would have created a
// dependency cycle. Path is a single witness walk along producer ->
// consumer edges, starting and ending at the same node.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// IsCycle checks if an error is a CycleError.
func IsCycle(err error) bool {
	var cycleErr *CycleError
	return errors.As(err, &cycleErr)
}
