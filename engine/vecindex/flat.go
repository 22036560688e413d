// Package vecindex implements an in-memory flat vector index with cosine
// similarity computed as inner product over L2-normalized vectors. Search is
// exhaustive, which is exact and plenty fast for the catalog sizes this
// service handles.
package vecindex

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// Flat is a dense inner-product index. All rows share one fixed dimension.
// Rows are stored L2-normalized so the inner product equals cosine
// similarity; zero vectors (embedding fallbacks) are stored as-is and score
// 0 against any query.
type Flat struct {
	dim  int
	rows [][]float32
}

// Result is one search hit: the row's ordinal ID and its cosine score.
type Result struct {
	ID    int
	Score float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vecindex: invalid dimension %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored rows.
func (f *Flat) Len() int { return len(f.rows) }

// Add appends vectors to the index. Each vector is copied and normalized
// internally; the caller's buffers are never mutated. Ordinal IDs are
// assigned in append order.
func (f *Flat) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vecindex: vector %d has dimension %d, want %d", i, len(v), f.dim)
		}
		f.rows = append(f.rows, normalizeCopy(v))
	}
	return nil
}

// Search returns the top-k rows by cosine similarity to query, sorted
// descending by score. It returns min(k, Len()) results; there is no
// padding. The query is normalized on a copy.
func (f *Flat) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("vecindex: query has dimension %d, want %d", len(query), f.dim)
	}
	if k <= 0 || f.Len() == 0 {
		return nil, nil
	}
	if k > f.Len() {
		k = f.Len()
	}

	q := normalizeCopy(query)

	// Min-heap of the k best hits seen so far.
	h := make(resultHeap, 0, k)
	for id, row := range f.rows {
		score := dot(q, row)
		if len(h) < k {
			heap.Push(&h, Result{ID: id, Score: score})
		} else if score > h[0].Score {
			h[0] = Result{ID: id, Score: score}
			heap.Fix(&h, 0)
		}
	}

	out := make([]Result, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Sub builds an ephemeral index containing only the given rows, in the order
// given. Result IDs from the sub-index are local 0-based positions; the
// caller maps position i back to ids[i].
func (f *Flat) Sub(ids []int) (*Flat, error) {
	sub := &Flat{dim: f.dim, rows: make([][]float32, 0, len(ids))}
	for _, id := range ids {
		if id < 0 || id >= len(f.rows) {
			return nil, fmt.Errorf("vecindex: row %d out of range [0,%d)", id, len(f.rows))
		}
		// Rows are already normalized; share them read-only.
		sub.rows = append(sub.rows, f.rows[id])
	}
	return sub, nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// normalizeCopy returns an L2-normalized copy of v. A zero vector is
// returned as a zero copy, so it contributes a 0 score everywhere.
func normalizeCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm2 float64
	for _, x := range v {
		norm2 += float64(x) * float64(x)
	}
	if norm2 == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(norm2))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(Result)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
