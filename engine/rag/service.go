// Package rag orchestrates retrieval for a traffic query: it parses
// structured filters out of the query text, narrows the candidate set,
// runs vector search over an ephemeral sub-index, and hands the ranked
// segments to the summarizer.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/queryfilter"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/resilience"
)

// QueryEmbedder produces the query's embedding vector. A nil return means
// no vector could be produced.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

// Summarizer is the external text-generation collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, query string, segments []domain.Segment, language string) (string, error)
}

// Options configures the retrieval pipeline.
type Options struct {
	TopK            int
	DefaultLanguage string
}

// DefaultOptions returns the defaults the service ships with.
func DefaultOptions() Options {
	return Options{TopK: 5, DefaultLanguage: "en"}
}

// Service is the retrieval orchestrator. It is stateless per query; the
// only shared state is the catalog snapshot it reads.
type Service struct {
	catalogs   *catalog.Store
	embedder   QueryEmbedder
	summarizer Summarizer
	breaker    *resilience.Breaker
	opts       Options
	logger     *slog.Logger
}

// New creates a Service. The breaker guards summarizer calls; an open
// breaker counts as a summarizer failure and yields the fallback message.
func New(catalogs *catalog.Store, embedder QueryEmbedder, summarizer Summarizer, opts Options, logger *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = DefaultOptions().DefaultLanguage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalogs:   catalogs,
		embedder:   embedder,
		summarizer: summarizer,
		breaker:    resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:       opts,
		logger:     logger,
	}
}

// Request is one traffic query.
type Request struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k,omitempty"`
	Language string `json:"language,omitempty"`
}

// SearchMetadata summarizes how a query was answered.
type SearchMetadata struct {
	TotalSegmentsSearched int     `json:"total_segments_searched"`
	TopKReturned          int     `json:"top_k_returned"`
	AverageSimilarity     float64 `json:"average_similarity"`
	SearchMethod          string  `json:"search_method"`
}

// Response carries the ranked segments, the generated analysis, and the
// search metadata.
type Response struct {
	Query    string           `json:"query"`
	Segments []domain.Segment `json:"similar_segments"`
	Analysis string           `json:"ai_analysis"`
	Metadata SearchMetadata   `json:"search_metadata"`
}

// Query runs the full retrieval pipeline.
//
// Filters fail open: a month/year or day-type constraint that matches zero
// segments is ignored rather than producing an empty result. The tradeoff
// is that a clearly scoped query over a month with no data silently ranks
// the whole catalog instead.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	cat, err := s.catalogs.Get()
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	language := req.Language
	if language == "" {
		language = s.opts.DefaultLanguage
	}

	spec := queryfilter.Parse(req.Query)
	candidates := s.candidateIDs(cat, spec)

	ranked, mean, err := s.search(ctx, cat, candidates, req.Query, topK)
	if err != nil {
		return nil, err
	}

	analysis := s.summarize(ctx, req.Query, ranked, language)

	return &Response{
		Query:    req.Query,
		Segments: ranked,
		Analysis: analysis,
		Metadata: SearchMetadata{
			TotalSegmentsSearched: len(cat.Segments),
			TopKReturned:          len(ranked),
			AverageSimilarity:     mean,
			SearchMethod:          "flat index cosine similarity",
		},
	}, nil
}

// Retrieve runs vector search over the whole catalog with no filters and
// no summarization.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]domain.Segment, error) {
	cat, err := s.catalogs.Get()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	all := make([]int, len(cat.Segments))
	for i := range all {
		all[i] = i
	}
	ranked, _, err := s.search(ctx, cat, all, query, topK)
	return ranked, err
}

// candidateIDs applies the month/year and day-type filters over the
// catalog, each failing open to the previous set when it matches nothing.
func (s *Service) candidateIDs(cat *catalog.Catalog, spec queryfilter.Spec) []int {
	candidates := make([]int, len(cat.Segments))
	for i := range candidates {
		candidates[i] = i
	}

	if len(spec.Months) > 0 {
		var matched []int
		for id, seg := range cat.Segments {
			for _, f := range spec.Months {
				if strings.HasPrefix(seg.Month, f.Month) && seg.Year == f.Year {
					matched = append(matched, id)
					break
				}
			}
		}
		if len(matched) > 0 {
			candidates = matched
		}
	}

	if spec.DayType != queryfilter.DayAny {
		prefix := "WD_"
		if spec.DayType == queryfilter.DayWeekend {
			prefix = "WE_"
		}
		var matched []int
		for _, id := range candidates {
			for key := range cat.Segments[id].TimePeriods {
				if strings.Contains(key, prefix) {
					matched = append(matched, id)
					break
				}
			}
		}
		if len(matched) > 0 {
			candidates = matched
		}
	}

	return candidates
}

// search embeds the query, runs it against an ephemeral sub-index over the
// candidate rows, and maps local hits back to absolute ordinals.
func (s *Service) search(ctx context.Context, cat *catalog.Catalog, candidates []int, query string, topK int) ([]domain.Segment, float64, error) {
	vec := s.embedder.EmbedOne(ctx, query)
	if len(vec) == 0 {
		return nil, 0, domain.ErrQueryEmbedding
	}

	sub, err := cat.Index.Sub(candidates)
	if err != nil {
		return nil, 0, fmt.Errorf("rag: build sub-index: %w", err)
	}
	hits, err := sub.Search(vec, topK)
	if err != nil {
		return nil, 0, fmt.Errorf("rag: search: %w", err)
	}

	ranked := make([]domain.Segment, 0, len(hits))
	var sum float64
	for _, h := range hits {
		id := candidates[h.ID]
		ranked = append(ranked, cat.Segments[id].WithScore(float64(h.Score)))
		sum += float64(h.Score)
	}

	var mean float64
	if len(hits) > 0 {
		mean = sum / float64(len(hits))
	}
	return ranked, mean, nil
}

// summarize calls the summarizer through the circuit breaker, substituting
// the fixed per-language fallback message on any failure.
func (s *Service) summarize(ctx context.Context, query string, segments []domain.Segment, language string) string {
	var text string
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.summarizer.Summarize(ctx, query, segments, language)
		return err
	})
	if err != nil {
		s.logger.Warn("summarizer failed, using fallback message", "err", err)
		return FallbackAnalysis(language)
	}
	return text
}
