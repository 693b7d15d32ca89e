package watch

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fairline/loft/pkg/datum"
)

// Formatter renders store events as single human-readable stream lines.
// Used by the watch command to tail an instance's activity.
type Formatter struct {
	w io.Writer
}

// NewFormatter creates a Formatter writing to w.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// FormatChange writes one line for a committed change request, listing the
// touched parameters and their new revisions in ID order.
func (f *Formatter) FormatChange(event *datum.ChangeEvent) error {
	ids := make([]string, 0, len(event.Revisions))
	for id := range event.Revisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=v%d", id, event.Revisions[id])
	}

	_, err := fmt.Fprintf(f.w, "● change %s by %s: %s\n",
		shortRequestID(event.RequestID), event.RequesterID, strings.Join(parts, ", "))
	return err
}

// FormatArtifact writes one line for an artifact state change. The line
// shape depends on the status: a clean recompute, a registration, or a
// failure that kept the prior value.
func (f *Formatter) FormatArtifact(event *datum.ArtifactEvent) error {
	var err error
	switch event.Status {
	case datum.ArtifactStatusCurrent:
		_, err = fmt.Fprintf(f.w, "✓ %s v%d (%s) recomputed\n",
			event.ArtifactID, event.Revision, event.Kind)

	case datum.ArtifactStatusFailed:
		if event.Revision == 0 {
			_, err = fmt.Fprintf(f.w, "✗ %s (%s) recompute failed\n",
				event.ArtifactID, event.Kind)
		} else {
			_, err = fmt.Fprintf(f.w, "✗ %s (%s) recompute failed, keeping v%d\n",
				event.ArtifactID, event.Kind, event.Revision)
		}

	case datum.ArtifactStatusStale:
		if event.Revision == 0 {
			_, err = fmt.Fprintf(f.w, "+ %s (%s) registered\n",
				event.ArtifactID, event.Kind)
		} else {
			_, err = fmt.Fprintf(f.w, "○ %s (%s) marked stale\n",
				event.ArtifactID, event.Kind)
		}

	default:
		_, err = fmt.Fprintf(f.w, "? %s (%s) status %s\n",
			event.ArtifactID, event.Kind, event.Status)
	}
	return err
}

// shortRequestID truncates a change request UUID to its first 8 characters
// for compact display.
func shortRequestID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
