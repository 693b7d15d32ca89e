package datum

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple loft instances to safely coexist on a single Redis server.
//
// Key pattern: loft:{instance_name}:{entity}:{id}
// Channel pattern: loft:{instance_name}:{event_type}_events

// ParameterKey returns the Redis key for a parameter's current state hash.
// Pattern: loft:{instance_name}:param:{parameter_id}
func ParameterKey(instanceName, parameterID string) string {
	return fmt.Sprintf("loft:%s:param:%s", instanceName, parameterID)
}

// ParameterRevisionKey returns the Redis key for a historical revision
// snapshot hash, read by ParameterAt for provenance replay.
// Pattern: loft:{instance_name}:param:{parameter_id}:rev:{revision}
func ParameterRevisionKey(instanceName, parameterID string, revision int64) string {
	return fmt.Sprintf("loft:%s:param:%s:rev:%d", instanceName, parameterID, revision)
}

// ParameterHistoryKey returns the Redis key for a parameter's revision
// thread ZSET (score = revision, member = revision number).
// Pattern: loft:{instance_name}:param:{parameter_id}:revs
func ParameterHistoryKey(instanceName, parameterID string) string {
	return fmt.Sprintf("loft:%s:param:%s:revs", instanceName, parameterID)
}

// ParameterIndexKey returns the Redis key for the SET of registered
// parameter IDs in this instance.
// Pattern: loft:{instance_name}:params
func ParameterIndexKey(instanceName string) string {
	return fmt.Sprintf("loft:%s:params", instanceName)
}

// ArtifactKey returns the Redis key for an artifact's state hash.
// Pattern: loft:{instance_name}:artifact:{artifact_id}
func ArtifactKey(instanceName, artifactID string) string {
	return fmt.Sprintf("loft:%s:artifact:%s", instanceName, artifactID)
}

// ArtifactIndexKey returns the Redis key for the SET of registered
// artifact IDs in this instance.
// Pattern: loft:{instance_name}:artifacts
func ArtifactIndexKey(instanceName string) string {
	return fmt.Sprintf("loft:%s:artifacts", instanceName)
}

// ChangeEventsChannel returns the Pub/Sub channel name for committed
// change request events.
// Pattern: loft:{instance_name}:change_events
func ChangeEventsChannel(instanceName string) string {
	return fmt.Sprintf("loft:%s:change_events", instanceName)
}

// ArtifactEventsChannel returns the Pub/Sub channel name for artifact
// state change events.
// Pattern: loft:{instance_name}:artifact_events
func ArtifactEventsChannel(instanceName string) string {
	return fmt.Sprintf("loft:%s:artifact_events", instanceName)
}
