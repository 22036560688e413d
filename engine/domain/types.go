// Package domain defines the core traffic entities shared by the ingestion
// and retrieval pipelines, together with the documented default values used
// when a source record omits a field.
package domain

// TimePeriod holds the per-period speed readings attached to a segment.
// Period labels look like "WD_0700_0900" (legacy schema) or "time_set_3"
// (new schema).
type TimePeriod struct {
	AvgSpeed    *float64 `json:"AVG_SPEED,omitempty"`
	MedianSpeed *float64 `json:"MEDIAN_SPEED,omitempty"`
}

// Segment is one traffic observation for a road stretch in a given
// month/year. Segments are created once at ingestion time and never mutated;
// search results carry shallow copies with a similarity score attached.
type Segment struct {
	SegmentID    string  `json:"segment_id"`
	StreetName   string  `json:"street_name"`
	Month        string  `json:"month"`
	Year         int     `json:"year"`
	AverageSpeed float64 `json:"average_speed"`
	MedianSpeed  float64 `json:"median_speed"`
	Distance     float64 `json:"distance"`
	SampleSize   int     `json:"sample_size"`
	TravelTime   float64 `json:"travel_time"`
	SpeedLimit   float64 `json:"speed_limit"`

	// Coordinates is the LineString geometry, passed through untouched as
	// [longitude, latitude] pairs.
	Coordinates [][]float64 `json:"coordinates"`

	TimePeriods map[string]TimePeriod `json:"time_periods"`

	// SimilarityScore is only set on copies returned from a search. The
	// stored segment never carries one.
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

// WithScore returns a copy of the segment with the similarity score attached.
// The copy shares geometry and time-period backing storage with the original,
// which is safe because segments are immutable after ingestion.
func (s Segment) WithScore(score float64) Segment {
	s.SimilarityScore = &score
	return s
}

// Defaults is the fallback table applied when neither schema variant of a
// source feature provides a value. Kept as one table so the fallback policy
// is explicit and testable.
var Defaults = struct {
	SegmentID    string
	StreetName   string
	AverageSpeed float64
	MedianSpeed  float64
	Distance     float64
	SampleSize   int
	TravelTime   float64
	SpeedLimit   float64
}{
	SegmentID:  "unknown",
	StreetName: "Unknown Street",
	SpeedLimit: 100,
}
