package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// RegisterParameter creates a new shared parameter in the store and the
// dependency graph. Fails if the ID is already registered.
func (e *Engine) RegisterParameter(ctx context.Context, p *datum.Parameter) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerParameterLocked(ctx, p)
}

func (e *Engine) registerParameterLocked(ctx context.Context, p *datum.Parameter) error {
	if e.graph.Contains(p.ID) {
		return fmt.Errorf("parameter %q already registered", p.ID)
	}
	if err := e.client.RegisterParameter(ctx, p); err != nil {
		return err
	}
	if err := e.graph.AddParameter(p.ID); err != nil {
		return fmt.Errorf("failed to add parameter to graph: %w", err)
	}

	e.logger.Info("parameter registered",
		zap.String("parameter_id", p.ID),
		zap.String("discipline", p.Discipline))
	return nil
}

// SeedParameters registers any of the given parameters that do not exist
// yet, skipping the rest. Used at startup to materialize configured
// seed values. Returns the number actually created.
func (e *Engine) SeedParameters(ctx context.Context, params []*datum.Parameter) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	created := 0
	for _, p := range params {
		if e.graph.Contains(p.ID) {
			continue
		}
		if err := e.registerParameterLocked(ctx, p); err != nil {
			return created, fmt.Errorf("failed to seed parameter %q: %w", p.ID, err)
		}
		created++
	}
	return created, nil
}

// RetireParameter removes a parameter that no artifact depends on any
// longer. The dependency graph enforces that: retiring a parameter with
// live dependents fails and changes nothing.
func (e *Engine) RetireParameter(ctx context.Context, parameterID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.graph.Remove(parameterID); err != nil {
		return err
	}
	if err := e.client.DeleteParameter(ctx, parameterID); err != nil {
		// Keep graph and store aligned.
		if addErr := e.graph.AddParameter(parameterID); addErr != nil {
			e.logger.Error("graph restore failed after store error",
				zap.String("parameter_id", parameterID), zap.Error(addErr))
		}
		return err
	}

	e.logger.Info("parameter retired", zap.String("parameter_id", parameterID))
	return nil
}

// RegisterKind registers a derivation kind, or rebinds and optionally
// rewires one that already exists. A brand-new kind gets a store record
// (revision 0, stale) and graph edges for its declared inputs; the next
// sweep computes it. Re-registering with a changed input set rewires
// the graph, which is where a cycle can form and be rejected: on
// CycleError nothing changes.
func (e *Engine) RegisterKind(ctx context.Context, spec *registry.KindSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid kind spec: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sortedInputs := sortedCopy(spec.Inputs)

	if !e.graph.Contains(spec.ID) {
		if _, bound := e.registry.Lookup(spec.ID); bound {
			return fmt.Errorf("kind %q bound in registry but missing from graph", spec.ID)
		}
		if err := e.graph.AddArtifact(spec.ID, sortedInputs); err != nil {
			return err
		}
		artifact := &datum.Artifact{
			ID:         spec.ID,
			Kind:       spec.Kind,
			Discipline: spec.Discipline,
			Inputs:     sortedInputs,
		}
		if err := e.client.RegisterArtifact(ctx, artifact); err != nil {
			if rmErr := e.graph.Remove(spec.ID); rmErr != nil {
				e.logger.Error("graph restore failed after store error",
					zap.String("artifact_id", spec.ID), zap.Error(rmErr))
			}
			return err
		}
		if err := e.registry.Register(spec); err != nil {
			return err
		}

		e.logger.Info("kind registered",
			zap.String("artifact_id", spec.ID),
			zap.String("kind", string(spec.Kind)),
			zap.Strings("inputs", sortedInputs))
		e.poke()
		return nil
	}

	// Existing artifact: rebind the derivation, rewire edges if the
	// declared inputs changed.
	stored, err := e.client.GetArtifact(ctx, spec.ID)
	if err != nil {
		return fmt.Errorf("failed to load artifact for re-registration: %w", err)
	}
	if rewired := !equalIDSets(stored.Inputs, sortedInputs); rewired {
		priorInputs := e.graph.Inputs(spec.ID)
		if err := e.graph.SetInputs(spec.ID, sortedInputs); err != nil {
			return err
		}
		if err := e.client.UpdateArtifactInputs(ctx, spec.ID, sortedInputs); err != nil {
			if revertErr := e.graph.SetInputs(spec.ID, priorInputs); revertErr != nil {
				e.logger.Error("graph restore failed after store error",
					zap.String("artifact_id", spec.ID), zap.Error(revertErr))
			}
			return err
		}
		e.logger.Info("kind rewired",
			zap.String("artifact_id", spec.ID),
			zap.Strings("inputs", sortedInputs))
	}
	if _, bound := e.registry.Lookup(spec.ID); bound {
		err = e.registry.Update(spec)
	} else {
		err = e.registry.Register(spec)
	}
	if err != nil {
		return err
	}

	e.poke()
	return nil
}

// RetireKind withdraws a derivation kind and deletes its artifact.
// Fails while other artifacts still consume it; those must be retired
// first.
func (e *Engine) RetireKind(ctx context.Context, artifactID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	priorInputs := e.graph.Inputs(artifactID)
	if err := e.graph.Remove(artifactID); err != nil {
		return err
	}
	if err := e.client.DeleteArtifact(ctx, artifactID); err != nil {
		if addErr := e.graph.AddArtifact(artifactID, priorInputs); addErr != nil {
			e.logger.Error("graph restore failed after store error",
				zap.String("artifact_id", artifactID), zap.Error(addErr))
		}
		return err
	}
	if _, bound := e.registry.Lookup(artifactID); bound {
		if err := e.registry.Unregister(artifactID); err != nil {
			return err
		}
	}

	e.logger.Info("kind retired", zap.String("artifact_id", artifactID))
	return nil
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

func equalIDSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedCopy(a)
	bs := sortedCopy(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
