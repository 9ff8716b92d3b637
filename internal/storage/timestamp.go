package storage

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// TimestampLayout is how timestamps are written to the database and the wire:
// UTC with millisecond precision, e.g. 2024-03-01T12:00:00.000Z
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Layouts with an explicit zone
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
}

// Layouts without a zone are read as UTC. Fractional seconds are accepted
// after the seconds field even though the layouts do not spell them out.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses the timestamp shapes seen in SQLite and on the wire.
// Values without a timezone marker are treated as UTC, so
// "2025-07-21 19:14:17" and "2025-07-21T19:14:17Z" are the same instant.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Newf("unrecognized timestamp %q", s)
}

func formatNullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTimestamp(*t)
}
