package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/vecindex"
)

func f64(v float64) *float64 { return &v }

// fakeEmbedder maps query text to a fixed vector; unknown text gets nil.
type fakeEmbedder struct {
	vecs map[string][]float32
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) []float32 {
	return f.vecs[text]
}

type fakeSummarizer struct {
	text     string
	err      error
	gotQuery string
	gotSegs  []domain.Segment
	gotLang  string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, query string, segments []domain.Segment, language string) (string, error) {
	f.gotQuery, f.gotSegs, f.gotLang = query, segments, language
	return f.text, f.err
}

// testStore builds a four-segment catalog with one-hot vectors, so a query
// vector selects exactly one segment when unfiltered.
//
//	0: Sep 2022, weekday periods
//	1: Sep 2022, weekend periods
//	2: Jan 2023, weekday periods
//	3: Jan 2023, no periods
func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	segments := []domain.Segment{
		{SegmentID: "s0", StreetName: "Sheikh Rashid Rd", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WD_AM_AVG": {AvgSpeed: f64(60)}}},
		{SegmentID: "s1", StreetName: "Al Khail Rd", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WE_PM_AVG": {AvgSpeed: f64(80)}}},
		{SegmentID: "s2", StreetName: "Jumeirah Rd", Month: "Jan", Year: 2023,
			TimePeriods: map[string]domain.TimePeriod{"WD_PM_AVG": {AvgSpeed: f64(50)}}},
		{SegmentID: "s3", StreetName: "Hessa St", Month: "Jan", Year: 2023},
	}

	idx, err := vecindex.New(4)
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Add([][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	cat, err := catalog.New(segments, idx, []string{"2022_Sep", "2023_Jan"})
	if err != nil {
		t.Fatal(err)
	}
	store := &catalog.Store{}
	store.Swap(cat)
	return store
}

func TestQueryFiltersNarrowSearch(t *testing.T) {
	query := "weekday traffic in September 2022"
	// The query vector points at s1, but the filters only admit s0: month
	// Sep 2022 keeps {s0, s1}, then weekday keeps {s0}.
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {0, 1, 0, 0}}}
	summarizer := &fakeSummarizer{text: "analysis text"}
	svc := New(testStore(t), embedder, summarizer, Options{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].SegmentID != "s0" {
		t.Fatalf("segments = %+v, want only s0", resp.Segments)
	}
	if resp.Segments[0].SimilarityScore == nil {
		t.Fatal("similarity score not attached")
	}
	if resp.Analysis != "analysis text" {
		t.Fatalf("analysis = %q", resp.Analysis)
	}
	if resp.Metadata.TotalSegmentsSearched != 4 || resp.Metadata.TopKReturned != 1 {
		t.Fatalf("metadata = %+v", resp.Metadata)
	}
	if resp.Metadata.SearchMethod != "flat index cosine similarity" {
		t.Fatalf("search method = %q", resp.Metadata.SearchMethod)
	}
	if summarizer.gotLang != "en" {
		t.Fatalf("summarizer language = %q, want default en", summarizer.gotLang)
	}
}

func TestQueryFiltersFailOpen(t *testing.T) {
	query := "traffic in March 2024" // no such month in the catalog
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {0, 0, 0, 1}}}
	svc := New(testStore(t), embedder, &fakeSummarizer{text: "ok"}, Options{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query, TopK: 4})
	if err != nil {
		t.Fatal(err)
	}
	// The unmatched filter is dropped and the whole catalog is ranked.
	if len(resp.Segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(resp.Segments))
	}
	if resp.Segments[0].SegmentID != "s3" {
		t.Fatalf("best hit = %s, want s3", resp.Segments[0].SegmentID)
	}
}

func TestQueryDayTypeFailsOpen(t *testing.T) {
	// A catalog whose segments carry only weekday periods: a weekend query
	// matches nothing, so the day-type filter must be dropped and the whole
	// catalog ranked.
	segments := []domain.Segment{
		{SegmentID: "w0", StreetName: "Sheikh Rashid Rd", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WD_AM_AVG": {AvgSpeed: f64(60)}}},
		{SegmentID: "w1", StreetName: "Al Khail Rd", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WD_PM_AVG": {AvgSpeed: f64(70)}}},
		{SegmentID: "w2", StreetName: "Jumeirah Rd", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WD_AM_AVG": {AvgSpeed: f64(40)}}},
		{SegmentID: "w3", StreetName: "Hessa St", Month: "Sep", Year: 2022,
			TimePeriods: map[string]domain.TimePeriod{"WD_PM_AVG": {AvgSpeed: f64(55)}}},
	}
	idx, err := vecindex.New(4)
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Add([][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.New(segments, idx, []string{"2022_Sep"})
	if err != nil {
		t.Fatal(err)
	}
	store := &catalog.Store{}
	store.Swap(cat)

	query := "weekend traffic please"
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {0, 0, 1, 0}}}
	svc := New(store, embedder, &fakeSummarizer{text: "ok"}, Options{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query, TopK: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Segments) != 4 {
		t.Fatalf("got %d segments, want all 4", len(resp.Segments))
	}
	if resp.Segments[0].SegmentID != "w2" {
		t.Fatalf("best hit = %s, want w2", resp.Segments[0].SegmentID)
	}
}

func TestQueryMapsSubIndexIDs(t *testing.T) {
	query := "traffic in January 2023"
	// Candidates are {s2, s3}; the vector points at s3, which sits at local
	// position 1 in the sub-index.
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {0, 0, 0, 1}}}
	svc := New(testStore(t), embedder, &fakeSummarizer{text: "ok"}, Options{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query, TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].SegmentID != "s3" {
		t.Fatalf("segments = %+v, want s3", resp.Segments)
	}
	if got := *resp.Segments[0].SimilarityScore; got < 0.999 {
		t.Fatalf("similarity = %v, want ~1", got)
	}
}

func TestQueryEmbeddingFailureIsFatal(t *testing.T) {
	svc := New(testStore(t), &fakeEmbedder{}, &fakeSummarizer{}, Options{}, nil)

	_, err := svc.Query(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, domain.ErrQueryEmbedding) {
		t.Fatalf("got %v, want ErrQueryEmbedding", err)
	}
}

func TestQueryNoCatalog(t *testing.T) {
	svc := New(&catalog.Store{}, &fakeEmbedder{}, &fakeSummarizer{}, Options{}, nil)

	_, err := svc.Query(context.Background(), Request{Query: "anything"})
	if !errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatalf("got %v, want ErrCatalogNotFound", err)
	}
}

func TestQuerySummarizerFailureFallsBack(t *testing.T) {
	query := "how is traffic"
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {1, 0, 0, 0}}}
	summarizer := &fakeSummarizer{err: errors.New("provider down")}
	svc := New(testStore(t), embedder, summarizer, Options{}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Analysis != FallbackAnalysis("en") {
		t.Fatalf("analysis = %q, want English fallback", resp.Analysis)
	}

	resp, err = svc.Query(context.Background(), Request{Query: query, Language: "ar"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Analysis != FallbackAnalysis("ar") {
		t.Fatalf("analysis = %q, want Arabic fallback", resp.Analysis)
	}
}

func TestRetrieveUnfiltered(t *testing.T) {
	query := "weekend September 2022" // filters must NOT apply here
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {0, 0, 1, 0}}}
	svc := New(testStore(t), embedder, &fakeSummarizer{}, Options{}, nil)

	segs, err := svc.Retrieve(context.Background(), query, 1)
	if err != nil {
		t.Fatal(err)
	}
	// s2 is outside the Sep 2022 weekend filter set; Retrieve still finds it.
	if len(segs) != 1 || segs[0].SegmentID != "s2" {
		t.Fatalf("segments = %+v, want s2", segs)
	}
}

func TestQueryDefaultTopK(t *testing.T) {
	query := "overall traffic"
	embedder := &fakeEmbedder{vecs: map[string][]float32{query: {1, 1, 1, 1}}}
	svc := New(testStore(t), embedder, &fakeSummarizer{text: "ok"}, Options{TopK: 2}, nil)

	resp, err := svc.Query(context.Background(), Request{Query: query})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Segments) != 2 {
		t.Fatalf("got %d segments, want configured default 2", len(resp.Segments))
	}
}
