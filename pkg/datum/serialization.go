package datum

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// the input list and the provenance vector are JSON-encoded into single hash
// fields. This keeps scalar fields individually readable (revision checks
// inside transactions) while structured fields stay flexible.

// ParameterToHash converts a Parameter struct to a Redis hash format.
// The same encoding is used for the current-state hash and for historical
// revision snapshots.
func ParameterToHash(p *Parameter) (map[string]interface{}, error) {
	if err := p.Value.Validate(); err != nil {
		return nil, fmt.Errorf("failed to serialize parameter value: %w", err)
	}

	hash := map[string]interface{}{
		"id":            p.ID,
		"value_kind":    string(p.Value.Kind),
		"value_raw":     string(p.Value.Raw),
		"revision":      p.Revision,
		"discipline":    p.Discipline,
		"updated_by":    p.UpdatedBy,
		"created_at_ms": p.CreatedAtMs,
		"updated_at_ms": p.UpdatedAtMs,
	}

	return hash, nil
}

// HashToParameter converts a Redis hash to a Parameter struct.
func HashToParameter(hash map[string]string) (*Parameter, error) {
	revision, err := strconv.ParseInt(hash["revision"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid revision field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	parameter := &Parameter{
		ID: hash["id"],
		Value: Value{
			Kind: ValueKind(hash["value_kind"]),
			Raw:  json.RawMessage(hash["value_raw"]),
		},
		Revision:    revision,
		Discipline:  hash["discipline"],
		UpdatedBy:   hash["updated_by"],
		CreatedAtMs: createdAtMs,
		UpdatedAtMs: updatedAtMs,
	}

	return parameter, nil
}

// ArtifactToHash converts an Artifact struct to a Redis hash format.
// The inputs array and provenance vector are JSON-encoded.
func ArtifactToHash(a *Artifact) (map[string]interface{}, error) {
	inputsJSON, err := json.Marshal(a.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inputs: %w", err)
	}

	provenance := a.Provenance
	if provenance == nil {
		provenance = Provenance{}
	}
	provenanceJSON, err := json.Marshal(provenance)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance: %w", err)
	}

	hash := map[string]interface{}{
		"id":             a.ID,
		"kind":           string(a.Kind),
		"discipline":     a.Discipline,
		"inputs":         string(inputsJSON),
		"value_kind":     string(a.Value.Kind),
		"value_raw":      string(a.Value.Raw),
		"revision":       a.Revision,
		"provenance":     string(provenanceJSON),
		"status":         string(a.Status),
		"failure_reason": a.FailureReason,
		"created_at_ms":  a.CreatedAtMs,
		"updated_at_ms":  a.UpdatedAtMs,
	}

	return hash, nil
}

// HashToArtifact converts a Redis hash to an Artifact struct.
func HashToArtifact(hash map[string]string) (*Artifact, error) {
	revision, err := strconv.ParseInt(hash["revision"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid revision field: %w", err)
	}

	var inputs []string
	if inputsJSON := hash["inputs"]; inputsJSON != "" {
		if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
	}
	if inputs == nil {
		inputs = []string{}
	}

	var provenance Provenance
	if provenanceJSON := hash["provenance"]; provenanceJSON != "" {
		if err := json.Unmarshal([]byte(provenanceJSON), &provenance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provenance: %w", err)
		}
	}
	if provenance == nil {
		provenance = Provenance{}
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	artifact := &Artifact{
		ID:         hash["id"],
		Kind:       ArtifactKind(hash["kind"]),
		Discipline: hash["discipline"],
		Inputs:     inputs,
		Value: Value{
			Kind: ValueKind(hash["value_kind"]),
			Raw:  json.RawMessage(hash["value_raw"]),
		},
		Revision:      revision,
		Provenance:    provenance,
		Status:        ArtifactStatus(hash["status"]),
		FailureReason: hash["failure_reason"],
		CreatedAtMs:   createdAtMs,
		UpdatedAtMs:   updatedAtMs,
	}

	return artifact, nil
}
