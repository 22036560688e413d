package queryfilter

import (
	"testing"
)

func TestParseMonthYear(t *testing.T) {
	spec := Parse("How was traffic in September 2022 on Sheikh Zayed Road?")
	if len(spec.Months) != 1 {
		t.Fatalf("got %d month constraints, want 1", len(spec.Months))
	}
	if spec.Months[0] != (MonthYear{Month: "Sep", Year: 2022}) {
		t.Fatalf("got %+v", spec.Months[0])
	}
}

func TestParseMultipleMonths(t *testing.T) {
	spec := Parse("compare Jan 2022 against FEBRUARY 2023")
	want := []MonthYear{{"Jan", 2022}, {"Feb", 2023}}
	if len(spec.Months) != len(want) {
		t.Fatalf("got %v, want %v", spec.Months, want)
	}
	for i := range want {
		if spec.Months[i] != want[i] {
			t.Fatalf("month %d: got %+v, want %+v", i, spec.Months[i], want[i])
		}
	}
}

func TestParseDayType(t *testing.T) {
	cases := []struct {
		query string
		want  DayType
	}{
		{"average speed on weekdays", DayWeekday},
		{"what about week ends?", DayWeekend},
		{"weekend vs weekday traffic", DayWeekday}, // weekday wins when both match
		{"traffic in 2022", DayAny},
	}
	for _, tc := range cases {
		if got := Parse(tc.query).DayType; got != tc.want {
			t.Errorf("Parse(%q).DayType = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestParseHourRange(t *testing.T) {
	spec := Parse("speeds from 7 AM to 9 AM please")
	if spec.Hours == nil {
		t.Fatal("expected an hour range")
	}
	if *spec.Hours != (HourRange{Start: 7, End: 9}) {
		t.Fatalf("got %+v", *spec.Hours)
	}
}

func TestParseHourRangeAcrossMidnight(t *testing.T) {
	spec := Parse("late traffic 11 PM - 1 AM")
	if spec.Hours == nil {
		t.Fatal("expected an hour range")
	}
	if *spec.Hours != (HourRange{Start: 23, End: 1}) {
		t.Fatalf("got %+v", *spec.Hours)
	}
}

func TestParseNoonAndMidnight(t *testing.T) {
	spec := Parse("from 12 AM to 12 PM")
	if spec.Hours == nil {
		t.Fatal("expected an hour range")
	}
	if *spec.Hours != (HourRange{Start: 0, End: 12}) {
		t.Fatalf("got %+v", *spec.Hours)
	}
}

func TestParseEmptySpec(t *testing.T) {
	spec := Parse("which streets are the most congested?")
	if !spec.Empty() {
		t.Fatalf("expected empty spec, got %+v", spec)
	}
}

func TestParseCombined(t *testing.T) {
	spec := Parse("weekend congestion in Sep 2022 between 5 PM to 8 PM")
	if spec.Empty() {
		t.Fatal("expected a non-empty spec")
	}
	if spec.DayType != DayWeekend {
		t.Fatalf("day type = %q", spec.DayType)
	}
	if len(spec.Months) != 1 || spec.Months[0].Month != "Sep" || spec.Months[0].Year != 2022 {
		t.Fatalf("months = %+v", spec.Months)
	}
	if spec.Hours == nil || spec.Hours.Start != 17 || spec.Hours.End != 20 {
		t.Fatalf("hours = %+v", spec.Hours)
	}
}
