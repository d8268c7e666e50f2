// Package period resolves analytics period keywords into concrete date ranges.
package period

import (
	"fmt"
	"strings"
	"time"
)

const (
	Today        = "today"
	Last7Days    = "last_7_days"
	CurrentMonth = "current_month"
	LastMonth    = "last_month"
	CurrentYear  = "current_year"
	Last30Days   = "last_30_days"
	Last90Days   = "last_90_days"
)

var aliases = map[string]string{
	"week":  Last7Days,
	"month": CurrentMonth,
	"year":  CurrentYear,
}

// Keywords lists every accepted keyword, aliases included.
func Keywords() []string {
	return []string{Today, Last7Days, CurrentMonth, LastMonth, CurrentYear, Last30Days, Last90Days, "week", "month", "year"}
}

// Range is inclusive on both ends.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// StartOfDay truncates to 00:00:00.000 in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// Normalize resolves an alias to its canonical keyword. Empty input means current_month.
func Normalize(keyword string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(keyword))
	if k == "" {
		return CurrentMonth, nil
	}
	if canonical, ok := aliases[k]; ok {
		return canonical, nil
	}
	switch k {
	case Today, Last7Days, CurrentMonth, LastMonth, CurrentYear, Last30Days, Last90Days:
		return k, nil
	}
	return "", fmt.Errorf("unknown period %q, expected one of %s", keyword, strings.Join(Keywords(), ", "))
}

// Resolve maps a keyword to a range relative to now.
func Resolve(keyword string, now time.Time) (Range, error) {
	k, err := Normalize(keyword)
	if err != nil {
		return Range{}, err
	}

	y, m, _ := now.Date()
	loc := now.Location()
	switch k {
	case Today:
		return Range{Start: StartOfDay(now), End: EndOfDay(now)}, nil
	case Last7Days:
		return Range{Start: StartOfDay(now.AddDate(0, 0, -6)), End: EndOfDay(now)}, nil
	case Last30Days:
		return Range{Start: StartOfDay(now.AddDate(0, 0, -29)), End: EndOfDay(now)}, nil
	case Last90Days:
		return Range{Start: StartOfDay(now.AddDate(0, 0, -89)), End: EndOfDay(now)}, nil
	case CurrentMonth:
		first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Range{Start: first, End: EndOfDay(first.AddDate(0, 1, -1))}, nil
	case LastMonth:
		first := time.Date(y, m-1, 1, 0, 0, 0, 0, loc)
		return Range{Start: first, End: EndOfDay(first.AddDate(0, 1, -1))}, nil
	default: // CurrentYear
		return Range{Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc), End: EndOfDay(time.Date(y, time.December, 31, 0, 0, 0, 0, loc))}, nil
	}
}
