package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/embed"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/geo"
)

func TestMakeSourcesAutoKeys(t *testing.T) {
	sources, err := MakeSources([]string{"http://a", "http://b"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources", len(sources))
	}
	if sources[0].Key != "file_1" || sources[1].Key != "file_2" {
		t.Fatalf("auto keys = %q, %q", sources[0].Key, sources[1].Key)
	}
}

func TestMakeSourcesWithKeys(t *testing.T) {
	sources, err := MakeSources([]string{"http://a"}, []string{"2022_Sep"})
	if err != nil {
		t.Fatal(err)
	}
	if sources[0].Key != "2022_Sep" {
		t.Fatalf("key = %q", sources[0].Key)
	}
}

func TestMakeSourcesMismatch(t *testing.T) {
	_, err := MakeSources([]string{"http://a", "http://b"}, []string{"2022_Sep"})
	if !errors.Is(err, domain.ErrMismatchedKeys) {
		t.Fatalf("got %v, want ErrMismatchedKeys", err)
	}
}

func TestParseKey(t *testing.T) {
	month, year, err := parseKey("2022_Sep")
	if err != nil {
		t.Fatal(err)
	}
	if month != "Sep" || year != 2022 {
		t.Fatalf("got %q/%d", month, year)
	}

	if _, _, err := parseKey("file_1"); err == nil {
		t.Fatal("expected error for non-numeric year")
	}
	if _, _, err := parseKey("noseparator"); err == nil {
		t.Fatal("expected error without separator")
	}
}

// fakeEmbedClient returns fixed-width vectors keyed off text length.
type fakeEmbedClient struct{ dim int }

func (f *fakeEmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func testVectorizer(dim int) *embed.Vectorizer {
	return embed.New(&fakeEmbedClient{dim: dim}, embed.Options{
		BatchSize: 96,
		Dimension: dim,
		ChunkRate: rate.Inf,
		Workers:   1,
	}, nil)
}

const buildDoc = `{
	"type": "FeatureCollection",
	"features": [
		{
			"geometry": {"type": "LineString", "coordinates": [[55.1, 25.1], [55.2, 25.2]]},
			"properties": {"STREET_NAME": "Sheikh Rashid Rd", "AVG_SPEED": 55.0, "SPEED_LIMIT": 80.0}
		},
		{
			"geometry": {"type": "LineString", "coordinates": [[55.3, 25.3], [55.4, 25.4]]},
			"properties": {"STREET_NAME": "Al Khail Rd", "AVG_SPEED": 90.0, "SPEED_LIMIT": 100.0}
		}
	]
}`

func TestBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildDoc))
	}))
	defer srv.Close()

	deps := Deps{
		Fetcher:    geo.NewFetcher(t.TempDir(), nil),
		Vectorizer: testVectorizer(8),
	}
	sources := []Source{
		{URL: srv.URL + "/exports/2022/sep.geojson", Key: "2022_Sep"},
		{URL: srv.URL + "/exports/other/file.geojson", Key: "file_2"}, // unkeyed, skipped
	}

	cat, err := Build(context.Background(), deps, sources)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(cat.Segments))
	}
	if cat.Index.Len() != len(cat.Segments) {
		t.Fatalf("index rows %d != segments %d", cat.Index.Len(), len(cat.Segments))
	}
	if cat.Index.Dim() != 8 {
		t.Fatalf("index dim = %d", cat.Index.Dim())
	}
	if len(cat.Sources) != 1 || cat.Sources[0] != "2022_Sep" {
		t.Fatalf("sources = %v", cat.Sources)
	}
	for _, seg := range cat.Segments {
		if seg.Month != "Sep" || seg.Year != 2022 {
			t.Fatalf("month/year not applied: %+v", seg)
		}
	}
}

func TestBuildNoSegments(t *testing.T) {
	deps := Deps{
		Fetcher:    geo.NewFetcher(t.TempDir(), nil),
		Vectorizer: testVectorizer(8),
	}
	// Every source has an unparseable key, so everything is skipped.
	_, err := Build(context.Background(), deps, []Source{{URL: "http://unused", Key: "file_1"}})
	if !errors.Is(err, domain.ErrNoSegments) {
		t.Fatalf("got %v, want ErrNoSegments", err)
	}
}

func TestBuildPreservesOrdinalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildDoc))
	}))
	defer srv.Close()

	deps := Deps{
		Fetcher:    geo.NewFetcher(t.TempDir(), nil),
		Vectorizer: testVectorizer(8),
	}
	sources := []Source{
		{URL: srv.URL + "/a/2022/sep.geojson", Key: "2022_Sep"},
		{URL: srv.URL + "/a/2023/jan.geojson", Key: "2023_Jan"},
	}

	cat, err := Build(context.Background(), deps, sources)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(cat.Segments))
	}
	// Sources are concatenated in input order regardless of fetch timing.
	if cat.Segments[0].Year != 2022 || cat.Segments[3].Year != 2023 {
		t.Fatalf("segments out of order: %+v", cat.Segments)
	}
	if len(cat.Sources) != 2 || cat.Sources[0] != "2022_Sep" || cat.Sources[1] != "2023_Jan" {
		t.Fatalf("sources = %v", cat.Sources)
	}
}
