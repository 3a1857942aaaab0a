// Package dateparse turns --since style inputs into a start-of-day cutoff.
// Reports are only ever filtered backwards in time, so relative inputs
// count back from now.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Layout is the ISO date layout used for display.
const Layout = "2006-01-02"

// ParseSince parses input relative to the current time.
//
// Supported formats:
//   - Exact dates: "2026-03-01", "01.03.2026" (the report date format)
//   - Relative offsets back from today: "7d", "-7d", "2w", "1m"
//   - Day names: "monday" (most recent occurrence, today excluded)
//   - Keywords: "today", "yesterday", "week", "month"
//   - Anything olebedev/when understands, e.g. "last friday"
func ParseSince(input string) (time.Time, error) {
	return ParseSinceFrom(input, time.Now())
}

// ParseSinceFrom is ParseSince with an explicit reference time.
func ParseSinceFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	today := startOfDay(now)

	for _, layout := range []string{Layout, "02.01.2006", "2.1.2006"} {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return t, nil
		}
	}

	switch input {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "week":
		return today.AddDate(0, 0, -7), nil
	case "month":
		return today.AddDate(0, -1, 0), nil
	}

	if t, ok, err := parseOffset(input, today); ok {
		return t, err
	}

	if target, ok := weekdays[input]; ok {
		back := (int(today.Weekday()) - int(target) + 7) % 7
		if back == 0 {
			back = 7
		}
		return today.AddDate(0, 0, -back), nil
	}

	r, err := parser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
	}
	return startOfDay(r.Time), nil
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// parseOffset handles "Nd", "-Nd", "Nw", "Nm". ok is false when input is not
// shaped like an offset at all.
func parseOffset(input string, today time.Time) (time.Time, bool, error) {
	s := strings.TrimPrefix(input, "-")
	if len(s) < 2 {
		return time.Time{}, false, nil
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, false, nil
	}
	switch unit := s[len(s)-1]; unit {
	case 'd':
		return today.AddDate(0, 0, -n), true, nil
	case 'w':
		return today.AddDate(0, 0, -7*n), true, nil
	case 'm':
		return today.AddDate(0, -n, 0), true, nil
	default:
		return time.Time{}, true, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
