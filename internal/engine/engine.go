// Package engine implements the invalidation and scheduling core: it
// watches committed change requests, walks the dependency graph to find
// stale artifacts, recomputes them in dependency order with bounded
// parallelism, and commits each pass as one atomic batch with provenance.
//
// Passes are serialized. At most one invalidation pass runs against the
// graph at a time; independent branches inside a pass compute in
// parallel. Registry administration (kind and parameter lifecycle)
// shares the same lock, so the graph never changes shape mid-pass.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fairline/loft/internal/graph"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

const (
	// DefaultWorkers bounds parallel derivations within one pass
	DefaultWorkers = 4

	// DefaultReconcileEvery is the fallback full-sweep interval. Change
	// events ride Redis Pub/Sub, which is at-most-once; the periodic
	// sweep recomputes anything a dropped event left stale.
	DefaultReconcileEvery = 30 * time.Second
)

// Notifier receives the artifact events committed by a pass, in commit
// order. The distribution gateway implements it to fan events out to
// subscribers; the engine calls it only after the batch is visible in
// the store, so a notified reader can never fetch older state.
type Notifier interface {
	ArtifactsCommitted(events []*datum.ArtifactEvent)
}

// Config carries engine tuning. Zero values select defaults.
type Config struct {
	Workers        int
	ReconcileEvery time.Duration
	Notifier       Notifier
	Logger         *zap.Logger
}

// Engine is the invalidation and scheduling core for one instance.
type Engine struct {
	client   *datum.Client
	graph    *graph.Graph
	registry *registry.Registry
	notifier Notifier
	logger   *zap.Logger

	workers        int
	reconcileEvery time.Duration

	// mu serializes passes and registry administration against each
	// other. Parameter commits never take it; they go through the
	// store's own optimistic concurrency.
	mu      sync.Mutex
	trigger chan struct{}
}

// New creates an engine over the given store client and derivation
// registry. The graph starts empty; call LoadGraph before Run.
func New(client *datum.Client, reg *registry.Registry, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ReconcileEvery <= 0 {
		cfg.ReconcileEvery = DefaultReconcileEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Engine{
		client:         client,
		graph:          graph.New(),
		registry:       reg,
		notifier:       cfg.Notifier,
		logger:         cfg.Logger.Named("engine"),
		workers:        cfg.Workers,
		reconcileEvery: cfg.ReconcileEvery,
		trigger:        make(chan struct{}, 1),
	}
}

// Graph exposes the dependency graph for read-side consumers (status
// commands, tests). Mutations go through the engine's admin methods.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// LoadGraph rebuilds the dependency graph from persisted store state:
// every registered parameter becomes a node, every registered artifact a
// node with its declared input edges. Called once before Run; kinds
// registered afterwards extend the graph incrementally.
func (e *Engine) LoadGraph(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	parameterIDs, err := e.client.ListParameterIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list parameters: %w", err)
	}

	artifacts, err := e.client.ListArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	artifactInputs := make(map[string][]string, len(artifacts))
	for _, a := range artifacts {
		artifactInputs[a.ID] = a.Inputs
	}

	if err := e.graph.Load(parameterIDs, artifactInputs); err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	e.logger.Info("dependency graph loaded",
		zap.Int("parameters", len(parameterIDs)),
		zap.Int("artifacts", len(artifacts)))
	return nil
}

// Run subscribes to committed change events and processes them as a
// serialized stream of invalidation passes until the context is
// cancelled. A full reconciliation sweep runs at startup and on a
// timer, catching artifacts left stale by dropped events or a prior
// crash.
func (e *Engine) Run(ctx context.Context) error {
	subscription, err := e.client.SubscribeChangeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change events: %w", err)
	}
	defer subscription.Close()

	e.logger.Info("engine started",
		zap.String("instance", e.client.InstanceName()),
		zap.Int("workers", e.workers),
		zap.Duration("reconcile_every", e.reconcileEvery))

	if err := e.Reconcile(ctx); err != nil {
		e.logger.Warn("startup reconciliation failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.reconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine shutting down")
			return nil

		case event, ok := <-subscription.Events():
			if !ok {
				e.logger.Info("change subscription closed")
				return nil
			}
			e.handleChange(ctx, event)

		case <-e.trigger:
			if err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("triggered reconciliation failed", zap.Error(err))
			}

		case <-ticker.C:
			if err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("periodic reconciliation failed", zap.Error(err))
			}

		case err, ok := <-subscription.Errors():
			if !ok {
				return nil
			}
			e.logger.Warn("change subscription error", zap.Error(err))
		}
	}
}

// handleChange runs one invalidation pass for a committed change
// request. Pass errors are logged, not fatal; the periodic sweep
// retries whatever was left stale.
func (e *Engine) handleChange(ctx context.Context, event *datum.ChangeEvent) {
	changed := make([]string, 0, len(event.Revisions))
	for id := range event.Revisions {
		changed = append(changed, id)
	}

	e.logger.Info("change committed",
		zap.String("request_id", event.RequestID),
		zap.String("requester", event.RequesterID),
		zap.Strings("parameters", changed))

	candidates := e.graph.Reachable(changed)
	if len(candidates) == 0 {
		return
	}

	if err := e.runPass(ctx, candidates); err != nil && ctx.Err() == nil {
		e.logger.Error("invalidation pass failed",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

// Reconcile runs a full-sweep pass over every registered artifact. The
// pass planner drops artifacts that are already current, so a sweep
// over a consistent graph is a no-op.
func (e *Engine) Reconcile(ctx context.Context) error {
	candidates := e.graph.ArtifactIDs()
	if len(candidates) == 0 {
		return nil
	}
	return e.runPass(ctx, candidates)
}

// poke requests an asynchronous reconciliation sweep. Coalesces: one
// pending request is enough.
func (e *Engine) poke() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}
