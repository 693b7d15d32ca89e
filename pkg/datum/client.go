package datum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// commitTxRetries bounds how many times CommitChange re-runs its WATCH
// transaction when a watched key changes underneath it. Each retry re-reads
// current revisions, so a genuine conflict surfaces as ConflictError rather
// than spinning.
const commitTxRetries = 3

// Client provides instance-scoped Redis operations for the design-data
// store. All keys and channels are automatically namespaced with the
// instance name. The client is safe for concurrent use from multiple
// goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new store client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: loft instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// RegisterParameter creates a parameter at revision 1 and records the first
// history snapshot. Fails if the ID is already registered. The Revision
// field is set by this call; CreatedAtMs/UpdatedAtMs default to now when
// left zero.
func (c *Client) RegisterParameter(ctx context.Context, p *Parameter) error {
	now := time.Now().UnixMilli()
	if p.CreatedAtMs == 0 {
		p.CreatedAtMs = now
	}
	if p.UpdatedAtMs == 0 {
		p.UpdatedAtMs = p.CreatedAtMs
	}
	p.Revision = 1

	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid parameter: %w", err)
	}

	// The index SET doubles as the registration guard: SADD returns 0 when
	// the member already exists.
	added, err := c.rdb.SAdd(ctx, ParameterIndexKey(c.instanceName), p.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to index parameter: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("parameter %q already registered", p.ID)
	}

	hash, err := ParameterToHash(p)
	if err != nil {
		return fmt.Errorf("failed to serialize parameter: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ParameterKey(c.instanceName, p.ID), hash)
		pipe.HSet(ctx, ParameterRevisionKey(c.instanceName, p.ID, p.Revision), hash)
		pipe.ZAdd(ctx, ParameterHistoryKey(c.instanceName, p.ID), redis.Z{
			Score:  RevisionScore(p.Revision),
			Member: strconv.FormatInt(p.Revision, 10),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write parameter to Redis: %w", err)
	}

	return nil
}

// GetParameter retrieves a parameter's latest committed state.
// Returns NotFoundError if the parameter doesn't exist; use IsNotFound()
// to check.
func (c *Client) GetParameter(ctx context.Context, parameterID string) (*Parameter, error) {
	key := ParameterKey(c.instanceName, parameterID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, &NotFoundError{Entity: "parameter", ID: parameterID}
	}

	parameter, err := HashToParameter(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize parameter: %w", err)
	}

	return parameter, nil
}

// ParameterExists checks if a parameter exists without fetching it.
func (c *Client) ParameterExists(ctx context.Context, parameterID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, ParameterKey(c.instanceName, parameterID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check parameter existence: %w", err)
	}
	return exists > 0, nil
}

// ListParameterIDs returns all registered parameter IDs in sorted order.
func (c *Client) ListParameterIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, ParameterIndexKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list parameter IDs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListParameters returns all registered parameters sorted by ID.
// Parameters deleted concurrently with the listing are skipped.
func (c *Client) ListParameters(ctx context.Context) ([]*Parameter, error) {
	ids, err := c.ListParameterIDs(ctx)
	if err != nil {
		return nil, err
	}

	parameters := make([]*Parameter, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetParameter(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		parameters = append(parameters, p)
	}

	return parameters, nil
}

// CommitChange applies a ChangeRequest atomically: either every touched
// parameter advances to a new revision or none do. The request's base
// revisions are checked against current state inside a WATCH transaction;
// any mismatch fails the whole request with ConflictError and no state
// change. On success the new parameter -> revision map is returned and a
// ChangeEvent is published after the commit lands.
func (c *Client) CommitChange(ctx context.Context, req *ChangeRequest) (map[string]int64, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change request: %w", err)
	}

	ids := req.ParameterIDs()
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ParameterKey(c.instanceName, id)
	}

	var newRevisions map[string]int64

	txf := func(tx *redis.Tx) error {
		// Re-read current state under WATCH and check base revisions.
		current := make(map[string]*Parameter, len(ids))
		var conflicts []string
		for _, id := range ids {
			hashData, err := tx.HGetAll(ctx, ParameterKey(c.instanceName, id)).Result()
			if err != nil {
				return fmt.Errorf("failed to read parameter %q: %w", id, err)
			}
			if len(hashData) == 0 {
				return &NotFoundError{Entity: "parameter", ID: id}
			}
			p, err := HashToParameter(hashData)
			if err != nil {
				return fmt.Errorf("failed to deserialize parameter %q: %w", id, err)
			}
			current[id] = p
			if req.BaseRevisions[id] != p.Revision {
				conflicts = append(conflicts, id)
			}
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			return &ConflictError{RequestID: req.ID, ConflictingIDs: conflicts}
		}

		now := time.Now().UnixMilli()
		committed := make(map[string]int64, len(ids))
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				prev := current[id]
				next := &Parameter{
					ID:          id,
					Value:       req.Writes[id],
					Revision:    prev.Revision + 1,
					Discipline:  prev.Discipline,
					UpdatedBy:   req.RequesterID,
					CreatedAtMs: prev.CreatedAtMs,
					UpdatedAtMs: now,
				}
				hash, err := ParameterToHash(next)
				if err != nil {
					return fmt.Errorf("failed to serialize parameter %q: %w", id, err)
				}
				pipe.HSet(ctx, ParameterKey(c.instanceName, id), hash)
				pipe.HSet(ctx, ParameterRevisionKey(c.instanceName, id, next.Revision), hash)
				pipe.ZAdd(ctx, ParameterHistoryKey(c.instanceName, id), redis.Z{
					Score:  RevisionScore(next.Revision),
					Member: strconv.FormatInt(next.Revision, 10),
				})
				committed[id] = next.Revision
			}
			return nil
		})
		if err != nil {
			return err
		}
		newRevisions = committed
		return nil
	}

	for attempt := 0; attempt < commitTxRetries; attempt++ {
		err := c.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			c.publishChangeEvent(ctx, req, newRevisions)
			return newRevisions, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// A watched key changed mid-transaction. Re-run: the fresh read
			// either succeeds or reports the conflict explicitly.
			continue
		}
		return nil, err
	}

	return nil, &ConflictError{RequestID: req.ID, ConflictingIDs: ids}
}

// publishChangeEvent announces a committed change request. Publish failures
// are swallowed: the commit already landed and subscribers reconcile from
// store state, so the event is best-effort signaling.
func (c *Client) publishChangeEvent(ctx context.Context, req *ChangeRequest, revisions map[string]int64) {
	event := &ChangeEvent{
		RequestID:   req.ID,
		RequesterID: req.RequesterID,
		Revisions:   revisions,
		TimestampMs: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.rdb.Publish(ctx, ChangeEventsChannel(c.instanceName), payload)
}

// ParameterAt returns the historical value of a parameter at an exact
// revision, for provenance replay. Returns NotFoundError if the parameter
// is unknown or the revision snapshot was pruned by retention.
func (c *Client) ParameterAt(ctx context.Context, parameterID string, revision int64) (*Parameter, error) {
	hashData, err := c.rdb.HGetAll(ctx, ParameterRevisionKey(c.instanceName, parameterID, revision)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter revision from Redis: %w", err)
	}

	if len(hashData) == 0 {
		exists, err := c.ParameterExists(ctx, parameterID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &NotFoundError{Entity: "parameter", ID: parameterID}
		}
		return nil, &NotFoundError{Entity: "revision", ID: fmt.Sprintf("%s@%d", parameterID, revision)}
	}

	parameter, err := HashToParameter(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize parameter revision: %w", err)
	}

	return parameter, nil
}

// ParameterHistory returns the available historical snapshots of a
// parameter in ascending revision order. Revisions pruned by retention are
// omitted. Returns NotFoundError if the parameter is unknown.
func (c *Client) ParameterHistory(ctx context.Context, parameterID string) ([]*Parameter, error) {
	exists, err := c.ParameterExists(ctx, parameterID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Entity: "parameter", ID: parameterID}
	}

	members, err := c.rdb.ZRangeWithScores(ctx, ParameterHistoryKey(c.instanceName, parameterID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revision thread: %w", err)
	}

	history := make([]*Parameter, 0, len(members))
	for _, m := range members {
		rev := RevisionFromScore(m.Score)
		snapshot, err := c.ParameterAt(ctx, parameterID, rev)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		history = append(history, snapshot)
	}

	return history, nil
}

// PruneHistory removes historical revision snapshots committed before the
// given cutoff (Unix milliseconds) across all parameters. The latest
// revision of each parameter is always kept regardless of age. Returns the
// number of snapshots removed.
func (c *Client) PruneHistory(ctx context.Context, olderThanMs int64) (int, error) {
	ids, err := c.ListParameterIDs(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		latest, err := c.rdb.HGet(ctx, ParameterKey(c.instanceName, id), "revision").Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return pruned, fmt.Errorf("failed to read current revision of %q: %w", id, err)
		}

		members, err := c.rdb.ZRangeWithScores(ctx, ParameterHistoryKey(c.instanceName, id), 0, -1).Result()
		if err != nil {
			return pruned, fmt.Errorf("failed to read revision thread of %q: %w", id, err)
		}

		for _, m := range members {
			rev := RevisionFromScore(m.Score)
			if rev >= latest {
				continue
			}
			committedAt, err := c.rdb.HGet(ctx, ParameterRevisionKey(c.instanceName, id, rev), "updated_at_ms").Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return pruned, fmt.Errorf("failed to read snapshot %s@%d: %w", id, rev, err)
			}
			if errors.Is(err, redis.Nil) || committedAt >= olderThanMs {
				continue
			}
			_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, ParameterRevisionKey(c.instanceName, id, rev))
				pipe.ZRem(ctx, ParameterHistoryKey(c.instanceName, id), strconv.FormatInt(rev, 10))
				return nil
			})
			if err != nil {
				return pruned, fmt.Errorf("failed to prune snapshot %s@%d: %w", id, rev, err)
			}
			pruned++
		}
	}

	return pruned, nil
}

// DeleteParameter removes a parameter, its history and its index entry.
// Callers are responsible for ensuring no artifact still depends on it;
// the engine enforces that through the dependency graph.
func (c *Client) DeleteParameter(ctx context.Context, parameterID string) error {
	members, err := c.rdb.ZRange(ctx, ParameterHistoryKey(c.instanceName, parameterID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read revision thread: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, member := range members {
			rev, err := strconv.ParseInt(member, 10, 64)
			if err != nil {
				continue
			}
			pipe.Del(ctx, ParameterRevisionKey(c.instanceName, parameterID, rev))
		}
		pipe.Del(ctx, ParameterHistoryKey(c.instanceName, parameterID))
		pipe.Del(ctx, ParameterKey(c.instanceName, parameterID))
		pipe.SRem(ctx, ParameterIndexKey(c.instanceName), parameterID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete parameter: %w", err)
	}

	return nil
}

// RegisterArtifact creates the initial record for a newly registered
// artifact kind. The record starts at revision 0 with status stale and an
// empty provenance vector; the first invalidation pass computes it. Fails
// if the ID is already registered. Publishes an ArtifactEvent after the
// write.
func (c *Client) RegisterArtifact(ctx context.Context, a *Artifact) error {
	now := time.Now().UnixMilli()
	if a.CreatedAtMs == 0 {
		a.CreatedAtMs = now
	}
	if a.UpdatedAtMs == 0 {
		a.UpdatedAtMs = a.CreatedAtMs
	}
	a.Revision = 0
	a.Status = ArtifactStatusStale
	if a.Provenance == nil {
		a.Provenance = Provenance{}
	}

	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid artifact: %w", err)
	}

	added, err := c.rdb.SAdd(ctx, ArtifactIndexKey(c.instanceName), a.ID).Result()
	if err != nil {
		return fmt.Errorf("failed to index artifact: %w", err)
	}
	if added == 0 {
		return fmt.Errorf("artifact %q already registered", a.ID)
	}

	hash, err := ArtifactToHash(a)
	if err != nil {
		return fmt.Errorf("failed to serialize artifact: %w", err)
	}

	if err := c.rdb.HSet(ctx, ArtifactKey(c.instanceName, a.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write artifact to Redis: %w", err)
	}

	c.publishArtifactEvent(ctx, a)
	return nil
}

// GetArtifact retrieves an artifact by ID.
// Returns NotFoundError if the artifact doesn't exist; use IsNotFound()
// to check.
func (c *Client) GetArtifact(ctx context.Context, artifactID string) (*Artifact, error) {
	hashData, err := c.rdb.HGetAll(ctx, ArtifactKey(c.instanceName, artifactID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, &NotFoundError{Entity: "artifact", ID: artifactID}
	}

	artifact, err := HashToArtifact(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize artifact: %w", err)
	}

	return artifact, nil
}

// ArtifactExists checks if an artifact exists without fetching it.
func (c *Client) ArtifactExists(ctx context.Context, artifactID string) (bool, error) {
	exists, err := c.rdb.Exists(ctx, ArtifactKey(c.instanceName, artifactID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}
	return exists > 0, nil
}

// ListArtifactIDs returns all registered artifact IDs in sorted order.
func (c *Client) ListArtifactIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, ArtifactIndexKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact IDs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListArtifacts returns all registered artifacts sorted by ID.
// Artifacts deleted concurrently with the listing are skipped.
func (c *Client) ListArtifacts(ctx context.Context) ([]*Artifact, error) {
	ids, err := c.ListArtifactIDs(ctx)
	if err != nil {
		return nil, err
	}

	artifacts := make([]*Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := c.GetArtifact(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, nil
}

// CommitArtifactBatch writes a set of recomputed artifacts as one atomic
// transaction, then publishes an ArtifactEvent per artifact. The batch is
// all-or-nothing: a failed EXEC leaves every artifact at its prior state.
// Events are published only after the commit lands, so a subscriber that
// observes an event always reads a value at least as new as the event.
func (c *Client) CommitArtifactBatch(ctx context.Context, artifacts []*Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	hashes := make([]map[string]interface{}, len(artifacts))
	for i, a := range artifacts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("invalid artifact %q: %w", a.ID, err)
		}
		hash, err := ArtifactToHash(a)
		if err != nil {
			return fmt.Errorf("failed to serialize artifact %q: %w", a.ID, err)
		}
		hashes[i] = hash
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, a := range artifacts {
			pipe.HSet(ctx, ArtifactKey(c.instanceName, a.ID), hashes[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit artifact batch: %w", err)
	}

	for _, a := range artifacts {
		c.publishArtifactEvent(ctx, a)
	}

	return nil
}

// UpdateArtifactInputs rewrites an artifact's declared input set, used
// when its kind is re-registered with different inputs. The artifact is
// flagged stale so the next pass recomputes it against the new inputs;
// value and provenance are untouched until then.
func (c *Client) UpdateArtifactInputs(ctx context.Context, artifactID string, inputs []string) error {
	exists, err := c.ArtifactExists(ctx, artifactID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Entity: "artifact", ID: artifactID}
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to serialize inputs: %w", err)
	}

	err = c.rdb.HSet(ctx, ArtifactKey(c.instanceName, artifactID), map[string]interface{}{
		"inputs":        string(inputsJSON),
		"status":        string(ArtifactStatusStale),
		"updated_at_ms": time.Now().UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update artifact inputs: %w", err)
	}
	return nil
}

// MarkArtifactsStale flags artifacts as pending recomputation without
// touching their values or provenance. No events are published; stale
// flags are bookkeeping, commits and failures are the signals.
func (c *Client) MarkArtifactsStale(ctx context.Context, artifactIDs []string) error {
	if len(artifactIDs) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range artifactIDs {
			pipe.HSet(ctx, ArtifactKey(c.instanceName, id), map[string]interface{}{
				"status":        string(ArtifactStatusStale),
				"updated_at_ms": now,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark artifacts stale: %w", err)
	}

	return nil
}

// MarkArtifactFailed records a derivation failure. The artifact keeps its
// last-known-good value and provenance; only the status and failure reason
// change. Publishes an ArtifactEvent so subscribers see the failure.
func (c *Client) MarkArtifactFailed(ctx context.Context, artifactID, reason string) error {
	a, err := c.GetArtifact(ctx, artifactID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	err = c.rdb.HSet(ctx, ArtifactKey(c.instanceName, artifactID), map[string]interface{}{
		"status":         string(ArtifactStatusFailed),
		"failure_reason": reason,
		"updated_at_ms":  now,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to mark artifact failed: %w", err)
	}

	a.Status = ArtifactStatusFailed
	a.FailureReason = reason
	a.UpdatedAtMs = now
	c.publishArtifactEvent(ctx, a)
	return nil
}

// DeleteArtifact removes a retired artifact and its index entry.
// Callers are responsible for ensuring no other artifact still consumes
// it; the engine enforces that through the dependency graph.
func (c *Client) DeleteArtifact(ctx context.Context, artifactID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ArtifactKey(c.instanceName, artifactID))
		pipe.SRem(ctx, ArtifactIndexKey(c.instanceName), artifactID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// publishArtifactEvent announces an artifact state change. Best-effort,
// like publishChangeEvent.
func (c *Client) publishArtifactEvent(ctx context.Context, a *Artifact) {
	event := &ArtifactEvent{
		ArtifactID:  a.ID,
		Kind:        a.Kind,
		Revision:    a.Revision,
		Provenance:  a.Provenance,
		Status:      a.Status,
		TimestampMs: a.UpdatedAtMs,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.rdb.Publish(ctx, ArtifactEventsChannel(c.instanceName), payload)
}
