// Package queryfilter extracts structured constraints from free-text
// traffic queries using a small set of pattern rules. The rules are
// independent; any subset may fire, and a query that matches nothing yields
// an empty Spec, which downstream code treats as "no filtering".
package queryfilter

import (
	"regexp"
	"strconv"
	"strings"
)

// DayType tags a query as asking about weekdays or weekends.
type DayType string

const (
	DayAny     DayType = ""
	DayWeekday DayType = "weekday"
	DayWeekend DayType = "weekend"
)

// MonthYear is one month/year constraint, month as a 3-letter code ("Sep").
type MonthYear struct {
	Month string
	Year  int
}

// HourRange is a 24-hour clock range parsed from an "<H> AM to <H> PM"
// style phrase. End may be smaller than Start for ranges crossing midnight.
type HourRange struct {
	Start int
	End   int
}

// Spec is the ephemeral per-query filter set. It is never persisted.
type Spec struct {
	Months  []MonthYear
	DayType DayType
	Hours   *HourRange
}

// Empty reports whether no rule matched.
func (s Spec) Empty() bool {
	return len(s.Months) == 0 && s.DayType == DayAny && s.Hours == nil
}

var (
	monthYearRe = regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*[ ,]*(20\d{2})`)
	weekdayRe   = regexp.MustCompile(`(?i)week\s*days?`)
	weekendRe   = regexp.MustCompile(`(?i)week\s*ends?`)
	hourRangeRe = regexp.MustCompile(`(?i)(\d{1,2})\s*([AP]M).{0,10}(?:to|-|–)\s*(\d{1,2})\s*([AP]M)`)
)

// Parse extracts month/year pairs, a day-type tag, and an hour range from
// the query text. Pure function, no state.
func Parse(query string) Spec {
	var spec Spec

	for _, m := range monthYearRe.FindAllStringSubmatch(query, -1) {
		year, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		spec.Months = append(spec.Months, MonthYear{Month: monthCode(m[1]), Year: year})
	}

	// Weekday is checked first and wins if both somehow match.
	switch {
	case weekdayRe.MatchString(query):
		spec.DayType = DayWeekday
	case weekendRe.MatchString(query):
		spec.DayType = DayWeekend
	}

	if m := hourRangeRe.FindStringSubmatch(query); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[3])
		spec.Hours = &HourRange{
			Start: to24Hour(start, m[2]),
			End:   to24Hour(end, m[4]),
		}
	}

	return spec
}

// monthCode canonicalizes a case-insensitive month match ("september",
// "SEP") to its 3-letter code ("Sep").
func monthCode(m string) string {
	m = m[:3]
	return strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
}

// to24Hour converts a 12-hour clock value with an AM/PM marker to 24-hour.
// 12 AM maps to 0 and 12 PM to 12.
func to24Hour(hour int, marker string) int {
	h := hour % 12
	if strings.EqualFold(marker, "PM") {
		h += 12
	}
	return h
}
