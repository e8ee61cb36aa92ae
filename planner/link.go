package planner

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// LinkPlaceholder stands in for the booking link until a route has two stops.
	LinkPlaceholder = "#"

	dateLayout     = "2006-01-02"
	flexWindowDays = 30
	stayWindow     = "7-20"
)

// BookingLink builds the Kiwi.com nomad search for codes starting on start.
// The departure window runs 30 days from start and every stop carries a
// 7 to 20 night stay.
func BookingLink(codes []string, start time.Time, lang language.Tag) string {
	if len(codes) < 2 {
		return LinkPlaceholder
	}

	base, _ := lang.Base()
	from := start.Format(dateLayout)
	to := start.AddDate(0, 0, flexWindowDays).Format(dateLayout)
	origin := codes[0]

	var b strings.Builder
	fmt.Fprintf(&b, "https://www.kiwi.com/%s/nomad/results/%s~%s_%s~--", base.String(), origin, from, to)
	fmt.Fprintf(&b, "/%s~--~%s", origin, stayWindow)
	for _, code := range codes[1:] {
		fmt.Fprintf(&b, "/%s~--~%s", code, stayWindow)
	}
	b.WriteString("/")
	return b.String()
}

// Today is the current calendar date in loc, at midnight.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// DateOf drops the time of day from t, keeping its location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate reads a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
