package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across the ingestion and retrieval pipelines.
var (
	// ErrCatalogNotFound means no index/metadata pair has been built or
	// loaded yet. It is a "not found" condition for callers, not a crash.
	ErrCatalogNotFound = errors.New("embeddings catalog not found")

	// ErrMismatchedKeys means the number of file keys in a rebuild request
	// does not match the number of file URLs.
	ErrMismatchedKeys = errors.New("file key count does not match file count")

	// ErrNoSegments means a build run extracted zero segments from all
	// requested source files.
	ErrNoSegments = errors.New("no traffic segments extracted")

	// ErrQueryEmbedding means the query's own embedding could not be
	// produced. This is fatal for that query; there is no partial result.
	ErrQueryEmbedding = errors.New("failed to create query embedding")

	// ErrCountMismatch means the embedding count diverged from the segment
	// count after a build. The parallel-array join between index rows and
	// metadata would silently misattribute segments, so this is a hard error.
	ErrCountMismatch = errors.New("embedding count does not match segment count")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

var (
	ErrEmptyMonth  = errors.New("empty month")
	ErrInvalidYear = errors.New("invalid year")
)

// ValidateSegment checks the segment invariants: non-empty month and a
// plausible year. Street names fall back to a default at extraction time and
// are never empty here.
func ValidateSegment(s Segment) error {
	if s.Month == "" {
		return &ValidationError{Field: "month", Value: s.Month, Wrapped: ErrEmptyMonth}
	}
	if s.Year < 1900 || s.Year > 2200 {
		return &ValidationError{Field: "year", Value: fmt.Sprint(s.Year), Wrapped: ErrInvalidYear}
	}
	return nil
}
