package datum

// Revision history utilities
//
// Every committed parameter revision is tracked in a per-parameter ZSET
// (the revision thread) plus a snapshot hash holding the full state at that
// revision:
// - Thread key: loft:{instance_name}:param:{id}:revs
// - Members: revision numbers (as decimal strings)
// - Score: the revision number (as float64)
// - Snapshot key: loft:{instance_name}:param:{id}:rev:{n}
//
// The thread gives ordered history traversal; the snapshots give ParameterAt
// its provenance-replay reads. Retention pruning deletes old snapshots and
// their thread members but never the latest revision.

// RevisionScore converts a parameter revision number to a Redis ZSET score.
// Revisions start at 1 and increment sequentially.
func RevisionScore(revision int64) float64 {
	return float64(revision)
}

// RevisionFromScore converts a Redis ZSET score back to a revision number.
func RevisionFromScore(score float64) int64 {
	return int64(score)
}
