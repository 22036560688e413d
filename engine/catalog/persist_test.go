package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	segs := sampleSegments(2)
	segs[0].SegmentID = "first"
	segs[1].SegmentID = "second"
	cat, err := New(segs, buildIndex(t, [][]float32{{1, 0}, {0, 1}}), []string{"2022_Sep"})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := Save(dir, cat); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Segments) != 2 || got.Index.Len() != 2 {
		t.Fatalf("loaded %d segments, %d vectors", len(got.Segments), got.Index.Len())
	}
	if got.Segments[0].SegmentID != "first" || got.Segments[1].SegmentID != "second" {
		t.Fatalf("segment order not preserved: %+v", got.Segments)
	}
	if len(got.Sources) != 1 || got.Sources[0] != "2022_Sep" {
		t.Fatalf("sources = %v", got.Sources)
	}
	if got.BuiltAt.IsZero() {
		t.Fatal("BuiltAt not set from file time")
	}
}

func TestLoadMissingDirReturnsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatalf("got %v, want ErrCatalogNotFound", err)
	}
}

func TestLoadMissingMetadataReturnsNotFound(t *testing.T) {
	cat, err := New(sampleSegments(1), buildIndex(t, [][]float32{{1, 0}}), nil)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := Save(dir, cat); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, MetadataFile)); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); !errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatalf("got %v, want ErrCatalogNotFound", err)
	}
}

func TestLoadCountMismatchIsHardError(t *testing.T) {
	cat, err := New(sampleSegments(2), buildIndex(t, [][]float32{{1, 0}, {0, 1}}), nil)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := Save(dir, cat); err != nil {
		t.Fatal(err)
	}

	// Truncate the metadata to one segment while the index keeps two rows.
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`[{"segment_id":"only"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Load(dir)
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
	if !errors.Is(err, domain.ErrCountMismatch) {
		t.Fatalf("error %v does not wrap ErrCountMismatch", err)
	}
	if errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatal("mismatch must not be reported as not-found")
	}
}

func TestLoadMissingSourcesIsTolerated(t *testing.T) {
	cat, err := New(sampleSegments(1), buildIndex(t, [][]float32{{1, 0}}), []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := Save(dir, cat); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, sourcesFile)); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sources != nil {
		t.Fatalf("sources = %v, want nil", got.Sources)
	}
}
