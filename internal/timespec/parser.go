// Package timespec parses the time expressions accepted by loft flags and
// configuration: absolute RFC3339 timestamps, relative Go durations, and
// day-suffixed retention windows.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a time specification into a Unix timestamp (milliseconds).
// Supports two formats:
//   - duration: "1h", "30m", "1h30m", "7d", relative to now ("1h" means
//     "1 hour ago")
//   - RFC3339: "2026-08-23T13:00:00Z", absolute
func Parse(spec string) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := ParseDuration(spec); err == nil {
		return time.Now().Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or '7d', or RFC3339 like '2026-08-23T13:00:00Z')", spec)
}

// ParseDuration parses a duration. On top of Go's duration syntax it
// accepts a whole-day form "Nd" (N * 24h), which is how retention windows
// are written in loft.yml. Days cannot be combined with other units.
func ParseDuration(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.HasSuffix(spec, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(spec, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration: %s (use a whole number of days like '30d')", spec)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration cannot be negative: %s", spec)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", spec)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", spec)
	}
	return d, nil
}

// ParseRange parses --since and --until flags into a time range.
// Returns (sinceTimestampMs, untilTimestampMs, error). Zero values
// indicate "no bound" for that end of the range.
func ParseRange(since, until string) (int64, int64, error) {
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		sinceMS, err = Parse(since)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		untilMS, err = Parse(until)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}
