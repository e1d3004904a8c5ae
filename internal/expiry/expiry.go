// Package expiry parses user-supplied bucket expiry expressions.
package expiry

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid signals an expiry expression that cannot be parsed.
var ErrInvalid = errors.New("invalid expiry expression")

// Parse resolves an expiry expression to an optional instant. Accepted forms:
// "" or "never" (no expiry), Go durations ("90m", "1h"), day/week shorthands
// ("1d", "2w"), RFC 3339 timestamps, and unix epoch seconds.
func Parse(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	// Case-folding must not touch the timestamp forms: RFC 3339 rejects a
	// lowercase T or Z marker.
	folded := strings.ToLower(s)
	if folded == "" || folded == "never" {
		return nil, nil
	}

	if d, err := time.ParseDuration(folded); err == nil {
		if d <= 0 {
			return nil, ErrInvalid
		}
		t := now.Add(d)
		return &t, nil
	}

	if t, ok := parseShorthand(folded, now); ok {
		return &t, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}

	return nil, ErrInvalid
}

// parseShorthand handles the "Nd" and "Nw" forms time.ParseDuration rejects.
func parseShorthand(s string, now time.Time) (time.Time, bool) {
	if len(s) < 2 {
		return time.Time{}, false
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	switch unit {
	case 'd':
		return now.Add(time.Duration(n) * 24 * time.Hour), true
	case 'w':
		return now.Add(time.Duration(n) * 7 * 24 * time.Hour), true
	}
	return time.Time{}, false
}
