// Package dateparse turns loose date phrases into days and calendar weeks.
// Weeks start on Monday, matching the economic calendar's week_offset.
package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognized is returned for input none of the formats match.
var ErrUnrecognized = errors.New("unrecognized date")

// maxRelativeDays bounds "+N" and "in N days" style input.
const maxRelativeDays = 100 * 366

// Parse parses a date phrase relative to now and returns midnight of that
// day in now's location.
// Supported formats:
//   - today, tomorrow, yesterday
//   - this week, next week, last week (Monday of that week)
//   - monday, tue, ... (that day of the current week)
//   - next friday, last mon (that day one week later or earlier)
//   - +N, -N (days from now)
//   - in N days, in N weeks, N days ago, N weeks ago
//   - YYYY-MM-DD
func Parse(input string, now time.Time) (time.Time, error) {
	today := midnight(now)
	in := strings.ToLower(strings.Join(strings.Fields(input), " "))

	switch in {
	case "today", "now":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "this week", "thisweek":
		return WeekStart(today), nil
	case "next week", "nextweek":
		return WeekStart(today).AddDate(0, 0, 7), nil
	case "last week", "lastweek", "previous week":
		return WeekStart(today).AddDate(0, 0, -7), nil
	}

	if day, shift, ok := parseWeekday(in); ok {
		return WeekStart(today).AddDate(0, 0, day+7*shift), nil
	}

	if len(in) > 1 && (in[0] == '+' || in[0] == '-') {
		if days, err := strconv.Atoi(in); err == nil && abs(days) <= maxRelativeDays {
			return today.AddDate(0, 0, days), nil
		}
	}

	if m := relativePattern.FindStringSubmatch(in); m != nil {
		n, err := strconv.Atoi(firstNonEmpty(m[1], m[3]))
		if err == nil && n <= maxRelativeDays {
			unit := firstNonEmpty(m[2], m[4])
			if strings.HasPrefix(unit, "week") {
				n *= 7
			}
			if m[3] != "" {
				n = -n
			}
			return today.AddDate(0, 0, n), nil
		}
	}

	if t, err := time.ParseInLocation("2006-01-02", in, now.Location()); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, input)
}

// WeekStart returns midnight on the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	d := midnight(t)
	back := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -back)
}

// WeekOffset reports how many weeks the week containing input lies from the
// current week: 0 for this week, 1 for next, -1 for last.
func WeekOffset(input string, now time.Time) (int, error) {
	t, err := Parse(input, now)
	if err != nil {
		return 0, err
	}
	return weeksBetween(WeekStart(now), WeekStart(t)), nil
}

// weeksBetween counts whole weeks between two Mondays. Dates are compared
// as calendar days so DST shifts cannot skew the count.
func weeksBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int((b.Unix()-a.Unix())/86400) / 7
}

var relativePattern = regexp.MustCompile(`^(?:in (\d+) (days?|weeks?)|(\d+) (days?|weeks?) ago)$`)

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseWeekday returns the day index from Monday and a week shift.
func parseWeekday(input string) (day, shift int, ok bool) {
	switch {
	case strings.HasPrefix(input, "next "):
		input, shift = strings.TrimPrefix(input, "next "), 1
	case strings.HasPrefix(input, "last "):
		input, shift = strings.TrimPrefix(input, "last "), -1
	case strings.HasPrefix(input, "this "):
		input = strings.TrimPrefix(input, "this ")
	}

	switch input {
	case "monday", "mon":
		return 0, shift, true
	case "tuesday", "tue":
		return 1, shift, true
	case "wednesday", "wed":
		return 2, shift, true
	case "thursday", "thu":
		return 3, shift, true
	case "friday", "fri":
		return 4, shift, true
	case "saturday", "sat":
		return 5, shift, true
	case "sunday", "sun":
		return 6, shift, true
	}
	return 0, 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
