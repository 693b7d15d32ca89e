package registry

import (
	"errors"
	"fmt"
)

// DerivationError reports a failed derivation call for one artifact. The
// failure is localized: the engine records it on the artifact and skips
// its downstream branch, but the pass itself continues.
type DerivationError struct {
	ArtifactID string
	Err        error
}

// Error implements the error interface.
func (e *DerivationError) Error() string {
	return fmt.Sprintf("derivation of %q failed: %v", e.ArtifactID, e.Err)
}

// Unwrap returns the underlying derivation failure.
func (e *DerivationError) Unwrap() error {
	return e.Err
}

// IsDerivation checks if an error is a DerivationError.
func IsDerivation(err error) bool {
	var derivationErr *DerivationError
	return errors.As(err, &derivationErr)
}
