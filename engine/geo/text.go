package geo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
)

// Describe renders a segment as one descriptive sentence. This text is the
// unit sent to the embedding provider, so it must be byte-identical for
// identical input across runs: period clauses are emitted in sorted key
// order and all whitespace is collapsed to single spaces.
//
// There is no template versioning; changing this wording invalidates every
// previously stored embedding.
func Describe(seg domain.Segment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Traffic segment on %s in %s %d. ", seg.StreetName, seg.Month, seg.Year)
	fmt.Fprintf(&b, "Average speed %.1f km/h on %.0fm segment with %s vehicle samples. ",
		seg.AverageSpeed, seg.Distance, groupDigits(seg.SampleSize))
	fmt.Fprintf(&b, "Speed limit %s km/h indicating %s. ",
		strconv.FormatFloat(seg.SpeedLimit, 'g', -1, 64), congestionLabel(seg.AverageSpeed, seg.SpeedLimit))

	if len(seg.TimePeriods) > 0 {
		keys := make([]string, 0, len(seg.TimePeriods))
		for k := range seg.TimePeriods {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var clauses []string
		for _, k := range keys {
			p := seg.TimePeriods[k]
			if p.AvgSpeed == nil {
				continue
			}
			clauses = append(clauses, fmt.Sprintf("%s: %.1f km/h, ", strings.ReplaceAll(k, "_", " "), *p.AvgSpeed))
		}
		if len(clauses) > 0 {
			b.WriteString("Time period data: ")
			for _, c := range clauses {
				b.WriteString(c)
			}
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// congestionLabel classifies flow by the ratio of average speed to the
// speed limit: >=0.8 minimal, >=0.6 moderate, >=0.4 heavy, else severe.
func congestionLabel(avgSpeed, speedLimit float64) string {
	switch {
	case avgSpeed >= speedLimit*0.8:
		return "minimal congestion, free-flowing traffic"
	case avgSpeed >= speedLimit*0.6:
		return "moderate congestion, steady traffic flow"
	case avgSpeed >= speedLimit*0.4:
		return "heavy congestion, slow-moving traffic"
	default:
		return "severe congestion, stop-and-go traffic"
	}
}

// groupDigits formats n with thousands separators ("12,345").
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
