package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned by the purge operations when the bound
// cannot be parsed. Nothing is deleted in that case.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// storedLayout is how learned_messages.timestamp is written: UTC, fixed width,
// so string comparison matches chronological order.
const storedLayout = "2006-01-02 15:04:05"

var acceptedLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseTimestamp accepts date-only and date+time forms. Values without a zone
// are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q (use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", ErrInvalidTimestamp, s)
}

func formatStored(t time.Time) string {
	return t.UTC().Format(storedLayout)
}
