package ir

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the storage layout for every timestamp pitwall writes.
// It sorts lexically and is understood by SQLite's date functions.
const TimeLayout = "2006-01-02 15:04:05.000000"

// DateLayout is the storage layout for date attributes.
const DateLayout = "2006-01-02"

// Epoch is the watermark of a process that has never completed a run.
var Epoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// inputLayouts are the timestamp renderings accepted from source tables.
var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
}

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp in any accepted source rendering.
// Values without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
