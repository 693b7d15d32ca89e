// Package gateway is the distribution surface of a loft instance. It fans
// committed artifact events out to discipline subscribers, serves read
// queries against the store, and forwards change submissions.
//
// The engine notifies the gateway only after a pass batch is committed, so
// a client that observes an event and immediately calls GetLatest always
// reads a value at least as new as the event implies. Slow subscribers are
// never allowed to queue without bound: each subscription has a fixed
// buffer, and on overflow delivery to that subscriber stops with a resync
// signal until the client has re-fetched state and acknowledged.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fairline/loft/pkg/datum"
)

// DefaultSubscriberBuffer is the per-subscriber event buffer capacity used
// when Config.SubscriberBuffer is zero.
const DefaultSubscriberBuffer = 64

// Event is one artifact update as seen by a subscriber. Seq increases by
// one per event delivered to this subscriber; a gap after a resync signal
// tells the client how much it missed. Delivery is at-least-once, so Seq
// is also the dedup key.
type Event struct {
	Seq int64 `json:"seq"`
	datum.ArtifactEvent
}

// Config carries the tunables for a Gateway.
type Config struct {
	// SubscriberBuffer is the per-subscriber event buffer capacity.
	// Zero means DefaultSubscriberBuffer.
	SubscriberBuffer int

	// Logger is the parent logger. Nil means logging is disabled.
	Logger *zap.Logger
}

// Gateway distributes committed artifact state to subscribers and fronts
// the store for discipline clients. It implements the engine's Notifier
// contract. Safe for concurrent use.
type Gateway struct {
	client *datum.Client
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	subs   map[int64]*Subscription
	nextID int64
	closed bool
}

// New creates a Gateway on top of the given store client.
func New(client *datum.Client, cfg Config) *Gateway {
	buffer := cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client: client,
		logger: logger.Named("gateway"),
		buffer: buffer,
		subs:   make(map[int64]*Subscription),
	}
}

// Subscribe registers a subscriber for artifact updates. An empty kinds
// slice subscribes to every artifact kind. The returned subscription must
// be closed when the client is done with it.
func (g *Gateway) Subscribe(clientID string, kinds []datum.ArtifactKind) (*Subscription, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	kindSet := make(map[datum.ArtifactKind]bool, len(kinds))
	for _, k := range kinds {
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("invalid subscription kind: %w", err)
		}
		kindSet[k] = true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("gateway is closed")
	}

	g.nextID++
	id := g.nextID
	sub := &Subscription{
		clientID: clientID,
		kinds:    kindSet,
		events:   make(chan Event, g.buffer),
		errors:   make(chan error, 1),
		capacity: g.buffer,
		unregister: func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		},
	}
	g.subs[id] = sub

	g.logger.Info("subscriber attached",
		zap.String("client_id", clientID),
		zap.Int("kinds", len(kindSet)),
		zap.Int("buffer", g.buffer))
	return sub, nil
}

// ArtifactsCommitted fans a committed pass batch out to every subscriber.
// Called by the engine strictly after the batch is readable in the store.
// Sends never block: a full subscriber buffer trips that subscriber into
// resync mode instead of stalling the pass.
func (g *Gateway) ArtifactsCommitted(events []*datum.ArtifactEvent) {
	g.mu.Lock()
	subs := make([]*Subscription, 0, len(g.subs))
	for _, sub := range g.subs {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	for _, sub := range subs {
		if dropped := sub.deliver(events); dropped {
			g.logger.Warn("subscriber buffer overflowed, resync required",
				zap.String("client_id", sub.clientID),
				zap.Int("capacity", sub.capacity))
		}
	}
}

// GetLatest returns an artifact's current value, provenance vector and
// status. After observing an event for this artifact, the returned
// provenance is at least as new as the event's.
func (g *Gateway) GetLatest(ctx context.Context, artifactID string) (*datum.Artifact, error) {
	return g.client.GetArtifact(ctx, artifactID)
}

// GetParameter returns a parameter's latest committed state.
func (g *Gateway) GetParameter(ctx context.Context, parameterID string) (*datum.Parameter, error) {
	return g.client.GetParameter(ctx, parameterID)
}

// ListArtifacts returns all artifacts of the instance, sorted by ID.
func (g *Gateway) ListArtifacts(ctx context.Context) ([]*datum.Artifact, error) {
	return g.client.ListArtifacts(ctx)
}

// ListParameters returns all parameters of the instance, sorted by ID.
func (g *Gateway) ListParameters(ctx context.Context) ([]*datum.Parameter, error) {
	return g.client.ListParameters(ctx)
}

// SubmitChange forwards a change request to the parameter store. The
// caller sees ConflictError on a lost base-revision race and must refetch
// and resubmit.
func (g *Gateway) SubmitChange(ctx context.Context, req *datum.ChangeRequest) (map[string]int64, error) {
	revisions, err := g.client.CommitChange(ctx, req)
	if err != nil {
		return nil, err
	}
	g.logger.Info("change submitted",
		zap.String("request_id", req.ID),
		zap.String("requester_id", req.RequesterID),
		zap.Int("parameters", len(revisions)))
	return revisions, nil
}

// Close detaches every subscriber and rejects new subscriptions.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	subs := make([]*Subscription, 0, len(g.subs))
	for _, sub := range g.subs {
		subs = append(subs, sub)
	}
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// SubscriberCount returns the number of attached subscribers.
func (g *Gateway) SubscriberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}
