// Package timeutil parses the human-friendly windows and intervals accepted
// on the command line and aligns them to record days.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWindow is the report window used when none is provided.
	DefaultWindow = "1w"

	day  = 24 * time.Hour
	week = 7 * day
)

var segment = regexp.MustCompile(`^\s*(\d+)\s*([a-z]+)`)

// units lists the accepted spellings, largest unit first; the first spelling
// is the canonical one.
var units = []struct {
	names []string
	value time.Duration
}{
	{[]string{"w", "wk", "wks", "week", "weeks"}, week},
	{[]string{"d", "day", "days"}, day},
	{[]string{"h", "hr", "hrs", "hour", "hours"}, time.Hour},
	{[]string{"m", "min", "mins", "minute", "minutes"}, time.Minute},
	{[]string{"s", "sec", "secs", "second", "seconds"}, time.Second},
}

func unit(name string) (time.Duration, bool) {
	for _, u := range units {
		for _, n := range u.names {
			if n == name {
				return u.value, true
			}
		}
	}
	return 0, false
}

// ParseWindow parses a duration such as "1w", "3d" or "1w2d6h" and returns it
// with its canonical spelling. An empty input means DefaultWindow.
func ParseWindow(input string) (time.Duration, string, error) {
	if strings.TrimSpace(input) == "" {
		input = DefaultWindow
	}
	return ParseInterval(input)
}

// ParseInterval is ParseWindow without the default; the input must not be
// empty.
func ParseInterval(input string) (time.Duration, string, error) {
	remaining := strings.ToLower(strings.TrimSpace(input))
	if remaining == "" {
		return 0, "", fmt.Errorf("empty duration")
	}
	var total time.Duration
	for len(remaining) > 0 {
		m := segment.FindStringSubmatch(remaining)
		if len(m) != 3 {
			return 0, "", fmt.Errorf("invalid duration segment %q", strings.TrimSpace(remaining))
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid duration value %q: %w", m[1], err)
		}
		base, ok := unit(m[2])
		if !ok {
			return 0, "", fmt.Errorf("unsupported duration unit %q", m[2])
		}
		total += time.Duration(n) * base
		remaining = remaining[len(m[0]):]
	}
	if total <= 0 {
		return 0, "", fmt.Errorf("duration must be greater than zero")
	}
	return total, FormatWindow(total), nil
}

// FormatWindow renders d with the canonical unit spellings.
func FormatWindow(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	var b strings.Builder
	for _, u := range units {
		if d < u.value {
			continue
		}
		n := d / u.value
		d -= n * u.value
		fmt.Fprintf(&b, "%d%s", n, u.names[0])
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBack returns the window ending at until that covers whole days: a one
// week window reaches back to midnight seven days earlier.
func DaysBack(until time.Time, window time.Duration) time.Time {
	return StartOfDay(until.Add(-window))
}
