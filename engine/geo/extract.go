package geo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
)

// ExtractSegments converts the LineString features of a document into
// Segments for the given month/year context. Features with other geometry
// types, or geometry that does not decode as a line, are skipped silently.
//
// Two property schemas are supported: the legacy flat upper-snake fields
// (AVG_SPEED, WD_/WE_ period keys) and the newer nested schema carrying a
// segmentTimeResults array. Resolution order per field is new-schema value,
// then legacy value, then the documented default.
func ExtractSegments(doc *Document, month string, year int) []domain.Segment {
	if doc == nil || len(doc.Features) == 0 {
		return nil
	}

	segments := make([]domain.Segment, 0, len(doc.Features))
	for _, feat := range doc.Features {
		if feat.Geometry.Type != "LineString" {
			continue
		}
		var coords [][]float64
		if len(feat.Geometry.Coordinates) > 0 {
			if err := json.Unmarshal(feat.Geometry.Coordinates, &coords); err != nil {
				// Malformed line geometry; skip the feature.
				continue
			}
		}

		prop := feat.Properties
		seg := domain.Segment{
			Month:       month,
			Year:        year,
			SegmentID:   stringProp(prop, domain.Defaults.SegmentID, "SEGMENT_ID", "segmentId", "newSegmentId"),
			StreetName:  stringProp(prop, domain.Defaults.StreetName, "STREET_NAME", "streetName"),
			SpeedLimit:  floatProp(prop, domain.Defaults.SpeedLimit, "SPEED_LIMIT", "speedLimit"),
			Distance:    floatProp(prop, domain.Defaults.Distance, "DISTANCE", "distance"),
			SampleSize:  int(floatProp(prop, float64(domain.Defaults.SampleSize), "SAMPLE_SIZE", "sampleSize")),
			Coordinates: coords,
			TimePeriods: map[string]domain.TimePeriod{},
		}

		avg := optionalFloat(prop, "AVG_SPEED")
		med := optionalFloat(prop, "MEDIAN_SPEED")
		travel := optionalFloat(prop, "AVG_TRAVEL_TIME")

		// New schema: per-time-set results, discriminated by key presence.
		if avg == nil {
			if results, ok := prop["segmentTimeResults"].([]any); ok && len(results) > 0 {
				if head, ok := results[0].(map[string]any); ok {
					avg = firstOptionalFloat(head, "averageSpeed", "harmonicAverageSpeed")
					med = optionalFloat(head, "medianSpeed")
					travel = optionalFloat(head, "averageTravelTime")
				}
				for _, r := range results {
					entry, ok := r.(map[string]any)
					if !ok {
						continue
					}
					label := fmt.Sprintf("time_set_%v", valueOr(entry, "timeSet", "na"))
					seg.TimePeriods[label] = domain.TimePeriod{
						AvgSpeed:    firstOptionalFloat(entry, "averageSpeed", "harmonicAverageSpeed"),
						MedianSpeed: optionalFloat(entry, "medianSpeed"),
					}
				}
			}
		}

		// Legacy schema: period readings live in WD_/WE_ prefixed keys.
		if len(seg.TimePeriods) == 0 {
			for k, v := range prop {
				if !strings.Contains(k, "WD_") && !strings.Contains(k, "WE_") {
					continue
				}
				if entry, ok := v.(map[string]any); ok {
					seg.TimePeriods[k] = domain.TimePeriod{
						AvgSpeed:    optionalFloat(entry, "AVG_SPEED"),
						MedianSpeed: optionalFloat(entry, "MEDIAN_SPEED"),
					}
				} else {
					seg.TimePeriods[k] = domain.TimePeriod{}
				}
			}
		}

		seg.AverageSpeed = deref(avg, domain.Defaults.AverageSpeed)
		seg.MedianSpeed = deref(med, domain.Defaults.MedianSpeed)
		seg.TravelTime = deref(travel, domain.Defaults.TravelTime)

		segments = append(segments, seg)
	}
	return segments
}

func stringProp(prop map[string]any, fallback string, keys ...string) string {
	for _, k := range keys {
		if s, ok := prop[k].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func floatProp(prop map[string]any, fallback float64, keys ...string) float64 {
	for _, k := range keys {
		if f := optionalFloat(prop, k); f != nil {
			return *f
		}
	}
	return fallback
}

// optionalFloat returns the numeric value at key, or nil when absent or not
// a number. encoding/json decodes all JSON numbers into float64.
func optionalFloat(prop map[string]any, key string) *float64 {
	if f, ok := prop[key].(float64); ok {
		return &f
	}
	return nil
}

func firstOptionalFloat(prop map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if f := optionalFloat(prop, k); f != nil {
			return f
		}
	}
	return nil
}

func valueOr(prop map[string]any, key string, fallback any) any {
	if v, ok := prop[key]; ok {
		if f, isFloat := v.(float64); isFloat && f == float64(int64(f)) {
			return int64(f)
		}
		return v
	}
	return fallback
}

func deref(f *float64, fallback float64) float64 {
	if f != nil {
		return *f
	}
	return fallback
}
