// Package datum provides type-safe Go definitions and Redis schema patterns
// for the loft design-data store.
//
// # Overview
//
// The store holds the single authoritative body of engineering design data
// shared across disciplines: versioned parameters (geometry, operating
// conditions, load cases) and the derived artifacts computed from them
// (calculations, templates, drawings, reports). The engine daemon, the CLI
// and discipline clients all interact through the structures defined here.
//
// # Core Concepts
//
// Parameters are registered once and thereafter mutated only through
// ChangeRequests. Every accepted write strictly increases the parameter's
// revision, and each revision leaves a history snapshot behind for
// provenance replay (subject to retention pruning).
//
// ChangeRequests are atomic all-or-nothing writes across one or more
// parameters, validated against per-parameter base revisions (whole-value
// optimistic locking). A request either advances every parameter it touches
// or none, so concurrent invalidation never observes a half-applied change.
//
// Artifacts carry a provenance vector: the exact input revisions that
// produced their current value. Comparing provenance against current input
// revisions is the staleness test the invalidation engine is built on.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// multiple loft instances can safely coexist on a single Redis server.
//
// # Usage Example
//
//	import "github.com/fairline/loft/pkg/datum"
//
//	client, err := datum.NewClient(&redis.Options{Addr: "localhost:6379"}, "plant-a")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.RegisterParameter(ctx, &datum.Parameter{
//		ID:         "pipeOutsideDiameter",
//		Value:      datum.NumberValue(10.75),
//		Discipline: "mechanical",
//	})
//
//	req := &datum.ChangeRequest{
//		ID:            uuid.New().String(),
//		RequesterID:   "piping-desk",
//		BaseRevisions: map[string]int64{"pipeOutsideDiameter": 1},
//		Writes:        map[string]datum.Value{"pipeOutsideDiameter": datum.NumberValue(12.75)},
//	}
//	revisions, err := client.CommitChange(ctx, req)
//
// # Redis Schema
//
// Parameters: loft:{instance_name}:param:{id}
// Revision snapshots: loft:{instance_name}:param:{id}:rev:{n}
// Revision threads: loft:{instance_name}:param:{id}:revs
// Parameter index: loft:{instance_name}:params
// Artifacts: loft:{instance_name}:artifact:{id}
// Artifact index: loft:{instance_name}:artifacts
//
// Pub/Sub channels:
//
// Change events: loft:{instance_name}:change_events
// Artifact events: loft:{instance_name}:artifact_events
//
// # Design Principles
//
// - Type Safety: all structures have strong typing with validation methods
// - Atomicity: change requests and artifact batches commit via transactions
// - Auditability: provenance vectors and revision history on every value
// - Isolation: instance namespacing prevents cross-instance interference
package datum
