package query

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fairline/loft/pkg/datum"
)

// FormatArtifactTable writes artifacts as a formatted table to the provided writer.
// The table includes columns: ID, KIND, STATUS, REV, DISCIPLINE, AGE, and VALUE (truncated).
// Returns the number of artifacts formatted.
func FormatArtifactTable(w io.Writer, artifacts []*datum.Artifact, instanceName string) int {
	if len(artifacts) == 0 {
		fmt.Fprintf(w, "No artifacts found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Artifacts for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-24s %-12s %-8s %-5s %-12s %-8s %s\n",
		"ID", "KIND", "STATUS", "REV", "DISCIPLINE", "AGE", "VALUE")
	fmt.Fprintf(w, "%-24s %-12s %-8s %-5s %-12s %-8s %s\n",
		"------------------------", "------------", "--------", "-----", "------------", "--------", "----------------------------------------")

	for _, a := range artifacts {
		fmt.Fprintf(w, "%-24s %-12s %-8s %-5s %-12s %-8s %s\n",
			formatID(a.ID),
			string(a.Kind),
			string(a.Status),
			formatRevision(a.Revision),
			a.Discipline,
			formatAge(a.UpdatedAtMs),
			formatValue(a.Value),
		)
	}

	countMsg := "artifact"
	if len(artifacts) != 1 {
		countMsg = "artifacts"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(artifacts), countMsg)

	return len(artifacts)
}

// FormatParameterTable writes parameters as a formatted table to the provided writer.
// The table includes columns: ID, DISCIPLINE, REV, BY, AGE, and VALUE (truncated).
// Returns the number of parameters formatted.
func FormatParameterTable(w io.Writer, parameters []*datum.Parameter, instanceName string) int {
	if len(parameters) == 0 {
		fmt.Fprintf(w, "No parameters found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Parameters for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-24s %-12s %-5s %-14s %-8s %s\n",
		"ID", "DISCIPLINE", "REV", "BY", "AGE", "VALUE")
	fmt.Fprintf(w, "%-24s %-12s %-5s %-14s %-8s %s\n",
		"------------------------", "------------", "-----", "--------------", "--------", "----------------------------------------")

	for _, p := range parameters {
		fmt.Fprintf(w, "%-24s %-12s %-5s %-14s %-8s %s\n",
			formatID(p.ID),
			p.Discipline,
			formatRevision(p.Revision),
			formatUpdatedBy(p.UpdatedBy),
			formatAge(p.UpdatedAtMs),
			formatValue(p.Value),
		)
	}

	countMsg := "parameter"
	if len(parameters) != 1 {
		countMsg = "parameters"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(parameters), countMsg)

	return len(parameters)
}

// FormatParameterHistory writes a parameter's revision thread as a formatted
// table, oldest revision first. Returns the number of revisions formatted.
func FormatParameterHistory(w io.Writer, history []*datum.Parameter, parameterID string) int {
	if len(history) == 0 {
		fmt.Fprintf(w, "No surviving history for parameter '%s'\n", parameterID)
		return 0
	}

	fmt.Fprintf(w, "Revision history for parameter '%s':\n\n", parameterID)

	fmt.Fprintf(w, "%-5s %-14s %-8s %s\n",
		"REV", "BY", "AGE", "VALUE")
	fmt.Fprintf(w, "%-5s %-14s %-8s %s\n",
		"-----", "--------------", "--------", "----------------------------------------")

	for _, p := range history {
		fmt.Fprintf(w, "%-5s %-14s %-8s %s\n",
			formatRevision(p.Revision),
			formatUpdatedBy(p.UpdatedBy),
			formatAge(p.UpdatedAtMs),
			formatValue(p.Value),
		)
	}

	countMsg := "revision"
	if len(history) != 1 {
		countMsg = "revisions"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(history), countMsg)

	return len(history)
}

// FormatArtifactsJSONL writes artifacts as line-delimited JSON (JSONL) to the
// provided writer. Each artifact is written as a single JSON object on its
// own line, ready for processing with tools like jq.
func FormatArtifactsJSONL(w io.Writer, artifacts []*datum.Artifact) error {
	for _, artifact := range artifacts {
		data, err := json.Marshal(artifact)
		if err != nil {
			return fmt.Errorf("failed to marshal artifact to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatParametersJSONL writes parameters as line-delimited JSON (JSONL) to
// the provided writer.
func FormatParametersJSONL(w io.Writer, parameters []*datum.Parameter) error {
	for _, parameter := range parameters {
		data, err := json.Marshal(parameter)
		if err != nil {
			return fmt.Errorf("failed to marshal parameter to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes a single record as pretty-printed JSON to the
// provided writer. Used in get mode to display complete details.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Trailing newline for clean terminal output
	fmt.Fprintln(w)

	return nil
}

// formatID truncates long identifiers for compact table display.
func formatID(id string) string {
	if len(id) > 24 {
		return id[:21] + "..."
	}
	return id
}

// formatRevision formats a revision number for table display.
// Revision 0 means the artifact was registered but never computed.
func formatRevision(revision int64) string {
	if revision == 0 {
		return "-"
	}
	return fmt.Sprintf("v%d", revision)
}

// formatUpdatedBy formats the updated_by field for table display.
// Empty values return "-".
func formatUpdatedBy(updatedBy string) string {
	if updatedBy == "" {
		return "-"
	}
	return updatedBy
}

// formatValue truncates a value's canonical JSON encoding to max 40
// characters for table display. Uncomputed (empty) values return "-".
func formatValue(v datum.Value) string {
	if len(v.Raw) == 0 {
		return "-"
	}

	encoded := strings.TrimSpace(string(v.Raw))
	if encoded == "" {
		return "-"
	}

	if len(encoded) > 40 {
		return encoded[:37] + "..."
	}

	return encoded
}

// formatAge formats a Unix timestamp in milliseconds as a relative age.
// Shows "2m ago", "1h ago", etc.
func formatAge(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	} else {
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
