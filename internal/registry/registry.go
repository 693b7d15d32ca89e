// Package registry catalogs derivation kinds: the pure functions that
// compute artifact values from declared inputs. The engine consults the
// registry during an invalidation pass; discipline packs populate it at
// startup.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fairline/loft/pkg/datum"
)

// Inputs carries the resolved input values for one derivation call,
// keyed by input ID. For an upstream artifact recomputed earlier in the
// same pass, the value is the just-produced one.
type Inputs map[string]datum.Value

// Number returns the named numeric input.
func (in Inputs) Number(id string) (float64, error) {
	v, ok := in[id]
	if !ok {
		return 0, fmt.Errorf("missing input %q", id)
	}
	f, err := v.AsNumber()
	if err != nil {
		return 0, fmt.Errorf("input %q: %w", id, err)
	}
	return f, nil
}

// String returns the named string input.
func (in Inputs) String(id string) (string, error) {
	v, ok := in[id]
	if !ok {
		return "", fmt.Errorf("missing input %q", id)
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("input %q: %w", id, err)
	}
	return s, nil
}

// Record returns the named record input's fields.
func (in Inputs) Record(id string) (map[string]any, error) {
	v, ok := in[id]
	if !ok {
		return nil, fmt.Errorf("missing input %q", id)
	}
	fields, err := v.AsRecord()
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", id, err)
	}
	return fields, nil
}

// DerivationFunc computes an artifact value from its inputs. It must be
// pure: side-effect free and deterministic given identical input values,
// which is what makes provenance-based invalidation sound. Blocking work
// (an external sub-calculation service) must honor ctx cancellation.
type DerivationFunc func(ctx context.Context, in Inputs) (datum.Value, error)

// KindSpec declares one derivable artifact kind: its identity, the input
// IDs it consumes (parameters and/or other artifacts), and the function
// that derives it.
type KindSpec struct {
	ID         string
	Kind       datum.ArtifactKind
	Discipline string
	Inputs     []string
	Derive     DerivationFunc
}

// Validate checks if the KindSpec has valid field values.
func (s *KindSpec) Validate() error {
	if err := datum.ValidateID(s.ID); err != nil {
		return fmt.Errorf("invalid kind ID: %w", err)
	}
	if err := s.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}
	if s.Discipline == "" {
		return fmt.Errorf("discipline cannot be empty")
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("kind %q must declare at least one input", s.ID)
	}
	for i, in := range s.Inputs {
		if err := datum.ValidateID(in); err != nil {
			return fmt.Errorf("invalid input at index %d: %w", i, err)
		}
	}
	if s.Derive == nil {
		return fmt.Errorf("kind %q has no derivation function", s.ID)
	}
	return nil
}

// Registry holds the registered derivation kinds for a single engine
// instance. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*KindSpec
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{kinds: make(map[string]*KindSpec)}
}

// Register adds a new kind. Fails if the ID is already registered; use
// Update to change an existing kind's declaration.
func (r *Registry) Register(spec *KindSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid kind spec: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[spec.ID]; exists {
		return fmt.Errorf("kind %q already registered", spec.ID)
	}
	r.kinds[spec.ID] = spec
	return nil
}

// Update replaces an existing kind's declaration, typically to rewire
// its input set. Fails if the ID is unknown.
func (r *Registry) Update(spec *KindSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid kind spec: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[spec.ID]; !exists {
		return fmt.Errorf("kind %q not registered", spec.ID)
	}
	r.kinds[spec.ID] = spec
	return nil
}

// Unregister removes a kind. Fails if the ID is unknown.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[id]; !exists {
		return fmt.Errorf("kind %q not registered", id)
	}
	delete(r.kinds, id)
	return nil
}

// Lookup returns the spec for a kind ID.
func (r *Registry) Lookup(id string) (*KindSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.kinds[id]
	return spec, ok
}

// IDs returns all registered kind IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.kinds))
	for id := range r.kinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
