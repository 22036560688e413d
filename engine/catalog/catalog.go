// Package catalog ties the segment metadata sequence and the vector index
// together as one immutable unit. Ordinal position is the only join key
// between the two, so they are built, persisted, loaded, and swapped
// strictly as a pair.
package catalog

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/vecindex"
)

// Catalog is one immutable build of the parallel (segments, index) pair.
// Segments[i] describes the vector at index row i.
type Catalog struct {
	Segments []domain.Segment
	Index    *vecindex.Flat
	BuiltAt  time.Time
	Sources  []string
}

// New creates a Catalog, enforcing the parallel-array invariant. A count
// mismatch would silently misattribute every search result, so it is
// rejected outright rather than logged and tolerated.
func New(segments []domain.Segment, index *vecindex.Flat, sources []string) (*Catalog, error) {
	if index == nil {
		return nil, fmt.Errorf("catalog: nil index")
	}
	if len(segments) != index.Len() {
		return nil, fmt.Errorf("catalog: %w: %d segments, %d vectors",
			domain.ErrCountMismatch, len(segments), index.Len())
	}
	return &Catalog{
		Segments: segments,
		Index:    index,
		BuiltAt:  time.Now().UTC(),
		Sources:  sources,
	}, nil
}

// Info summarizes catalog contents for operators.
type Info struct {
	TotalSegments int      `json:"total_segments"`
	Dimension     int      `json:"embedding_dimension"`
	Months        []string `json:"available_months"`
	Years         []int    `json:"available_years"`
	Streets       []string `json:"streets_covered"`
	Sources       []string `json:"sources"`
	BuiltAt       string   `json:"built_at"`
}

// Summarize collects the distinct months, years, and streets present.
func (c *Catalog) Summarize() Info {
	months := map[string]bool{}
	years := map[int]bool{}
	streets := map[string]bool{}
	for _, s := range c.Segments {
		months[s.Month] = true
		years[s.Year] = true
		streets[s.StreetName] = true
	}

	info := Info{
		TotalSegments: len(c.Segments),
		Dimension:     c.Index.Dim(),
		Sources:       c.Sources,
		BuiltAt:       c.BuiltAt.Format(time.RFC3339),
	}
	for m := range months {
		info.Months = append(info.Months, m)
	}
	for y := range years {
		info.Years = append(info.Years, y)
	}
	for s := range streets {
		info.Streets = append(info.Streets, s)
	}
	sort.Strings(info.Months)
	sort.Ints(info.Years)
	sort.Strings(info.Streets)
	return info
}

// Store publishes the current catalog to concurrent readers. Rebuilds swap
// in a whole new catalog atomically; queries already holding the old
// snapshot keep using it until they finish, so no query ever observes a
// half-populated index or a count mismatch.
type Store struct {
	ptr atomic.Pointer[Catalog]
}

// Get returns the current catalog, or domain.ErrCatalogNotFound when no
// build has completed yet.
func (s *Store) Get() (*Catalog, error) {
	c := s.ptr.Load()
	if c == nil || len(c.Segments) == 0 {
		return nil, domain.ErrCatalogNotFound
	}
	return c, nil
}

// Swap publishes a new catalog.
func (s *Store) Swap(c *Catalog) {
	s.ptr.Store(c)
}
