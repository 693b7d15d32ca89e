// Package datum provides type-safe Go definitions and Redis schema patterns
// for the loft design-data store. Parameters, derived artifacts, and change
// requests are shared between the engine daemon and discipline clients
// through well-defined structures stored in Redis.
//
// All Redis keys and channels are namespaced by instance name so multiple
// loft instances can safely coexist on a single Redis server.
package datum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// idPattern constrains parameter and artifact identifiers. Identifiers are
// embedded in Redis keys, so the separator character ':' is excluded.
var idPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)

// MaxIDLength is the maximum length for a parameter or artifact identifier.
const MaxIDLength = 64

// ValidateID checks that an identifier is usable as a parameter or artifact ID.
// Parameters and artifacts share one identifier namespace: a dependency edge
// can point at either, so an ID must be unique across both.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("identifier too long: %d characters (max: %d)", len(id), MaxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier %q: must start with a letter and contain only letters, digits, '.', '_' or '-'", id)
	}
	return nil
}

// ValueKind tags the type of a parameter or artifact value.
type ValueKind string

const (
	// ValueKindNumber is a scalar numeric value (stored as a JSON number)
	ValueKindNumber ValueKind = "number"

	// ValueKindString is a plain text value
	ValueKindString ValueKind = "string"

	// ValueKindRecord is a structured record (JSON object), used for load
	// case tables, drawing models, report bodies and similar documents
	ValueKindRecord ValueKind = "record"
)

// Validate checks if the ValueKind is a valid enum value.
func (k ValueKind) Validate() error {
	switch k {
	case ValueKindNumber, ValueKindString, ValueKindRecord:
		return nil
	default:
		return fmt.Errorf("unknown value kind: %q", k)
	}
}

// Value is a typed design-data value. Raw holds canonical JSON as produced
// by encoding/json (object keys sorted), so byte equality of Raw is value
// equality for values built through the constructors. That property is what
// makes provenance-based staleness checks and determinism tests cheap.
type Value struct {
	Kind ValueKind       `json:"kind"`
	Raw  json.RawMessage `json:"raw"`
}

// NumberValue builds a numeric Value.
func NumberValue(f float64) Value {
	raw, _ := json.Marshal(f)
	return Value{Kind: ValueKindNumber, Raw: raw}
}

// StringValue builds a string Value.
func StringValue(s string) Value {
	raw, _ := json.Marshal(s)
	return Value{Kind: ValueKindString, Raw: raw}
}

// RecordValue builds a structured record Value from a field map.
// encoding/json writes object keys in sorted order, so the encoding is
// canonical and deterministic for identical field maps.
func RecordValue(fields map[string]any) (Value, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Value{}, fmt.Errorf("failed to encode record value: %w", err)
	}
	return Value{Kind: ValueKindRecord, Raw: raw}, nil
}

// MustRecordValue is RecordValue for statically known field maps.
// Panics on encoding failure.
func MustRecordValue(fields map[string]any) Value {
	v, err := RecordValue(fields)
	if err != nil {
		panic(err)
	}
	return v
}

// ValueFromAny converts a decoded YAML or JSON scalar into a typed Value.
// Integers and floats become numbers, strings become strings, and
// string-keyed mappings become records. Anything else is rejected.
func ValueFromAny(v any) (Value, error) {
	switch val := v.(type) {
	case int:
		return NumberValue(float64(val)), nil
	case int64:
		return NumberValue(float64(val)), nil
	case float64:
		return NumberValue(val), nil
	case string:
		return StringValue(val), nil
	case map[string]any:
		return RecordValue(val)
	case nil:
		return Value{}, fmt.Errorf("value is required")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T (use a number, string, or mapping)", v)
	}
}

// AsNumber returns the numeric value. Fails if the kind is not number.
func (v Value) AsNumber() (float64, error) {
	if v.Kind != ValueKindNumber {
		return 0, fmt.Errorf("value is %s, not number", v.Kind)
	}
	var f float64
	if err := json.Unmarshal(v.Raw, &f); err != nil {
		return 0, fmt.Errorf("failed to decode number value: %w", err)
	}
	return f, nil
}

// AsString returns the string value. Fails if the kind is not string.
func (v Value) AsString() (string, error) {
	if v.Kind != ValueKindString {
		return "", fmt.Errorf("value is %s, not string", v.Kind)
	}
	var s string
	if err := json.Unmarshal(v.Raw, &s); err != nil {
		return "", fmt.Errorf("failed to decode string value: %w", err)
	}
	return s, nil
}

// AsRecord returns the record fields. Fails if the kind is not record.
func (v Value) AsRecord() (map[string]any, error) {
	if v.Kind != ValueKindRecord {
		return nil, fmt.Errorf("value is %s, not record", v.Kind)
	}
	var fields map[string]any
	if err := json.Unmarshal(v.Raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record value: %w", err)
	}
	return fields, nil
}

// Equal reports whether two values have the same kind and canonical encoding.
func (v Value) Equal(o Value) bool {
	return v.Kind == o.Kind && bytes.Equal(v.Raw, o.Raw)
}

// Validate checks if the Value has a valid kind and well-formed encoding.
func (v Value) Validate() error {
	if err := v.Kind.Validate(); err != nil {
		return err
	}
	if len(v.Raw) == 0 {
		return fmt.Errorf("value has empty encoding")
	}
	if !json.Valid(v.Raw) {
		return fmt.Errorf("value encoding is not valid JSON")
	}
	return nil
}

// String renders a compact display form, truncated for logs and tables.
func (v Value) String() string {
	const max = 48
	s := string(v.Raw)
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// Parameter is a shared design input value with its own revision history.
// Parameters are registered once and thereafter mutated only through
// ChangeRequests; every accepted write strictly increases the revision.
type Parameter struct {
	ID          string `json:"id"`            // Stable identifier, e.g. "pipeOutsideDiameter"
	Value       Value  `json:"value"`         // Current committed value
	Revision    int64  `json:"revision"`      // Monotonic per parameter, starts at 1
	Discipline  string `json:"discipline"`    // Owning discipline, e.g. "mechanical"
	UpdatedBy   string `json:"updated_by"`    // Requester that committed the current revision
	CreatedAtMs int64  `json:"created_at_ms"` // Unix milliseconds at registration
	UpdatedAtMs int64  `json:"updated_at_ms"` // Unix milliseconds at last commit
}

// Validate checks if the Parameter has valid field values.
func (p *Parameter) Validate() error {
	if err := ValidateID(p.ID); err != nil {
		return fmt.Errorf("invalid parameter ID: %w", err)
	}
	if p.Revision < 1 {
		return fmt.Errorf("invalid revision: must be >= 1, got %d", p.Revision)
	}
	if err := p.Value.Validate(); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if p.Discipline == "" {
		return fmt.Errorf("discipline cannot be empty")
	}
	return nil
}

// ArtifactKind classifies a derived artifact.
type ArtifactKind string

const (
	// ArtifactKindCalculation is a computed engineering calculation
	ArtifactKindCalculation ArtifactKind = "calculation"

	// ArtifactKindTemplate is a fill-in document template (e.g. a coversheet)
	ArtifactKindTemplate ArtifactKind = "template"

	// ArtifactKindDrawing is a drawing model (e.g. an isometric stress contour)
	ArtifactKindDrawing ArtifactKind = "drawing"

	// ArtifactKindReport is a composed report over other inputs
	ArtifactKindReport ArtifactKind = "report"
)

// Validate checks if the ArtifactKind is a valid enum value.
func (k ArtifactKind) Validate() error {
	switch k {
	case ArtifactKindCalculation, ArtifactKindTemplate, ArtifactKindDrawing, ArtifactKindReport:
		return nil
	default:
		return fmt.Errorf("unknown artifact kind: %q", k)
	}
}

// ArtifactStatus is the consistency state of an artifact relative to its inputs.
type ArtifactStatus string

const (
	// ArtifactStatusCurrent means the provenance vector matches the current
	// revisions of every declared input
	ArtifactStatusCurrent ArtifactStatus = "current"

	// ArtifactStatusStale means at least one input has advanced past the
	// recorded provenance; a recompute is pending
	ArtifactStatusStale ArtifactStatus = "stale"

	// ArtifactStatusFailed means the last recompute errored; the artifact
	// keeps its last-known-good value and is retried on the next pass that
	// touches its inputs
	ArtifactStatusFailed ArtifactStatus = "failed"
)

// Validate checks if the ArtifactStatus is a valid enum value.
func (s ArtifactStatus) Validate() error {
	switch s {
	case ArtifactStatusCurrent, ArtifactStatusStale, ArtifactStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown artifact status: %q", s)
	}
}

// Provenance records exactly which input revisions produced an artifact's
// current value: input ID (parameter or artifact) to the revision consumed.
type Provenance map[string]int64

// Clone returns a copy of the provenance vector. Clone of nil is an empty,
// non-nil vector.
func (p Provenance) Clone() Provenance {
	out := make(Provenance, len(p))
	for id, rev := range p {
		out[id] = rev
	}
	return out
}

// Artifact is a derived work product: a calculation, template, drawing or
// report computed from parameters and/or other artifacts.
type Artifact struct {
	ID            string         `json:"id"`                       // Stable identifier, e.g. "pipeStressCalc"
	Kind          ArtifactKind   `json:"kind"`                     // calculation | template | drawing | report
	Discipline    string         `json:"discipline"`               // Producing discipline
	Inputs        []string       `json:"inputs"`                   // Declared input IDs (parameters and/or artifacts)
	Value         Value          `json:"value"`                    // Last committed value (zero until first compute)
	Revision      int64          `json:"revision"`                 // Monotonic, bumped on each committed recompute
	Provenance    Provenance     `json:"provenance"`               // Input ID -> revision used for the current value
	Status        ArtifactStatus `json:"status"`                   // current | stale | failed
	FailureReason string         `json:"failure_reason,omitempty"` // Last derivation error when status=failed
	CreatedAtMs   int64          `json:"created_at_ms"`            // Unix milliseconds at registration
	UpdatedAtMs   int64          `json:"updated_at_ms"`            // Unix milliseconds at last status or value change
}

// Validate checks if the Artifact has valid field values.
func (a *Artifact) Validate() error {
	if err := ValidateID(a.ID); err != nil {
		return fmt.Errorf("invalid artifact ID: %w", err)
	}
	if err := a.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}
	if err := a.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if a.Discipline == "" {
		return fmt.Errorf("discipline cannot be empty")
	}
	if len(a.Inputs) == 0 {
		return fmt.Errorf("artifact must declare at least one input")
	}
	for i, inputID := range a.Inputs {
		if err := ValidateID(inputID); err != nil {
			return fmt.Errorf("invalid input at index %d: %w", i, err)
		}
	}
	if a.Revision < 0 {
		return fmt.Errorf("invalid revision: must be >= 0, got %d", a.Revision)
	}
	// Value and provenance are empty until the first committed compute.
	if a.Revision > 0 {
		if err := a.Value.Validate(); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
	}
	return nil
}

// StaleAgainst reports whether the artifact is stale relative to the given
// current input revisions: stale iff any declared input's current revision
// exceeds the provenance entry recorded for it. Inputs missing from the
// provenance vector count as revision 0, so a never-computed artifact is
// stale as soon as its inputs exist.
func (a *Artifact) StaleAgainst(current map[string]int64) bool {
	for _, inputID := range a.Inputs {
		if current[inputID] > a.Provenance[inputID] {
			return true
		}
	}
	return false
}

// ChangeRequest is a client-submitted proposed write to one or more
// parameters. It is accepted atomically as a single new revision set or
// rejected entirely; each touched parameter carries the base revision the
// requester last observed (whole-value optimistic locking).
type ChangeRequest struct {
	ID            string           `json:"id"`              // UUID
	RequesterID   string           `json:"requester_id"`    // Submitting client or discipline tool
	BaseRevisions map[string]int64 `json:"base_revisions"`  // Parameter ID -> revision the write is based on
	Writes        map[string]Value `json:"writes"`          // Parameter ID -> proposed value
	SubmittedAtMs int64            `json:"submitted_at_ms"` // Unix milliseconds at submission
}

// Validate checks if the ChangeRequest has valid field values.
func (r *ChangeRequest) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("invalid change request ID: not a valid UUID")
	}
	if r.RequesterID == "" {
		return fmt.Errorf("requester_id cannot be empty")
	}
	if len(r.Writes) == 0 {
		return fmt.Errorf("change request must write at least one parameter")
	}
	for id, v := range r.Writes {
		if err := ValidateID(id); err != nil {
			return fmt.Errorf("invalid write target: %w", err)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid value for %q: %w", id, err)
		}
		base, ok := r.BaseRevisions[id]
		if !ok {
			return fmt.Errorf("missing base revision for %q", id)
		}
		if base < 1 {
			return fmt.Errorf("invalid base revision for %q: must be >= 1, got %d", id, base)
		}
	}
	return nil
}

// ParameterIDs returns the touched parameter IDs in sorted order.
// Sorted iteration keeps commit transactions and conflict reports stable.
func (r *ChangeRequest) ParameterIDs() []string {
	ids := make([]string, 0, len(r.Writes))
	for id := range r.Writes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ChangeEvent announces a committed ChangeRequest on the change channel.
// It carries the full parameter -> new revision map so the engine can start
// an invalidation pass without re-reading the request.
type ChangeEvent struct {
	RequestID   string           `json:"request_id"`
	RequesterID string           `json:"requester_id"`
	Revisions   map[string]int64 `json:"revisions"`
	TimestampMs int64            `json:"timestamp_ms"`
}

// ArtifactEvent announces a committed artifact state change on the artifact
// channel: a recompute, an initial registration, or a failure flag.
type ArtifactEvent struct {
	ArtifactID  string         `json:"artifact_id"`
	Kind        ArtifactKind   `json:"kind"`
	Revision    int64          `json:"revision"`
	Provenance  Provenance     `json:"provenance"`
	Status      ArtifactStatus `json:"status"`
	TimestampMs int64          `json:"timestamp_ms"`
}
