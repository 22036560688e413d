// Package ingest builds the embeddings catalog: it fetches GeoJSON source
// files, extracts and renders segments, embeds the rendered text, and
// assembles the parallel (segments, index) pair.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/embed"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/geo"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/vecindex"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/fn"
)

// FetchWorkers bounds concurrent source downloads.
const FetchWorkers = 4

// Source is one GeoJSON file to ingest. Key carries the month/year context
// in "2022_Sep" form; the record itself has no reliable date field.
type Source struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Deps holds the collaborators the build pipeline needs.
type Deps struct {
	Fetcher    *geo.Fetcher
	Vectorizer *embed.Vectorizer
	Logger     *slog.Logger
}

// MakeSources pairs file URLs with their keys. Keys are optional as a
// whole, but when given their count must match the file count; that
// mismatch is a request error. Auto-generated keys carry no month/year and
// are skipped later with a warning.
func MakeSources(files, keys []string) ([]Source, error) {
	if len(keys) > 0 && len(keys) != len(files) {
		return nil, fmt.Errorf("ingest: %w: %d keys, %d files", domain.ErrMismatchedKeys, len(keys), len(files))
	}
	sources := make([]Source, len(files))
	for i, f := range files {
		key := fmt.Sprintf("file_%d", i+1)
		if len(keys) > 0 {
			key = keys[i]
		}
		sources[i] = Source{URL: f, Key: key}
	}
	return sources, nil
}

// parseKey splits a "2022_Sep" key into its month and year.
func parseKey(key string) (month string, year int, err error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("ingest: key %q is not YEAR_MONTH", key)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return "", 0, fmt.Errorf("ingest: key %q: %w", key, err)
	}
	return parts[1], year, nil
}

type sourceBatch struct {
	key      string
	segments []domain.Segment
}

// Build runs the whole pipeline and returns a new catalog. Individual
// source files that cannot be keyed, fetched, or parsed are skipped with a
// warning; the build fails only when nothing at all was extracted, when
// the context is cancelled, or when the final pair is inconsistent.
func Build(ctx context.Context, deps Deps, sources []Source) (*catalog.Catalog, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	stage := fn.TracedStage("ingest.source", func(ctx context.Context, src Source) fn.Result[sourceBatch] {
		return fetchSource(ctx, deps, src)
	})
	results := fn.ParMapResult(sources, FetchWorkers, func(src Source) fn.Result[sourceBatch] {
		return stage(ctx, src)
	})

	var segments []domain.Segment
	var processed []string
	for i, r := range results {
		batch, err := r.Unwrap()
		if err != nil {
			logger.Warn("source skipped", "key", sources[i].Key, "url", sources[i].URL, "err", err)
			continue
		}
		segments = append(segments, batch.segments...)
		processed = append(processed, batch.key)
		logger.Info("source processed", "key", batch.key, "segments", len(batch.segments))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, domain.ErrNoSegments
	}

	texts := fn.Map(segments, geo.Describe)

	logger.Info("embedding segments", "count", len(texts))
	vectors, err := deps.Vectorizer.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest: embed segments: %w", err)
	}

	index, err := vecindex.New(deps.Vectorizer.Dimension())
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := index.Add(vectors); err != nil {
		return nil, fmt.Errorf("ingest: index vectors: %w", err)
	}

	cat, err := catalog.New(segments, index, processed)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	stats := deps.Vectorizer.Stats()
	logger.Info("catalog built",
		"segments", len(segments),
		"sources", len(processed),
		"batch_failures", stats.BatchFailures,
		"item_fallbacks", stats.ItemFallbacks,
		"took", time.Since(start),
	)
	return cat, nil
}

// fetchSource resolves one source file into segments. A fetch is retried a
// few times before the file is given up on.
func fetchSource(ctx context.Context, deps Deps, src Source) fn.Result[sourceBatch] {
	month, year, err := parseKey(src.Key)
	if err != nil {
		return fn.Err[sourceBatch](err)
	}

	docResult := fn.Retry(ctx, fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 10 * time.Second, Jitter: true},
		func(ctx context.Context) fn.Result[*geo.Document] {
			return fn.FromPair(deps.Fetcher.Fetch(ctx, src.URL))
		})
	doc, err := docResult.Unwrap()
	if err != nil {
		return fn.Err[sourceBatch](err)
	}

	segments := geo.ExtractSegments(doc, month, year)
	return fn.Ok(sourceBatch{key: src.Key, segments: segments})
}
