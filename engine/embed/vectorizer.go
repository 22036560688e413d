// Package embed converts rendered segment text into fixed-dimension
// embedding vectors via an external provider, batching requests and
// degrading gracefully when the provider fails.
package embed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Client is the external embedding provider contract: one call, one vector
// per input text, order-preserving.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures a Vectorizer.
type Options struct {
	// BatchSize is the number of texts per provider call.
	BatchSize int
	// Dimension is the vector width used for zero-vector substitution when
	// an item cannot be embedded at all.
	Dimension int
	// ChunkRate paces provider calls to respect the provider's rate limit.
	ChunkRate rate.Limit
	// Workers bounds how many chunk calls may be in flight at once.
	Workers int
}

// DefaultOptions matches the provider limits the service was tuned for:
// 96-text batches, 1536-wide vectors, one call per 200ms.
func DefaultOptions() Options {
	return Options{
		BatchSize: 96,
		Dimension: 1536,
		ChunkRate: rate.Every(200 * time.Millisecond),
		Workers:   1,
	}
}

// Stats counts degradations during batch runs. Values accumulate over the
// Vectorizer's lifetime and surface partial failures that are otherwise
// invisible to callers.
type Stats struct {
	BatchFailures int64
	ItemFallbacks int64
}

// Vectorizer wraps an embedding Client with batching, rate limiting, and
// per-item fallback.
type Vectorizer struct {
	client  Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger

	batchFailures atomic.Int64
	itemFallbacks atomic.Int64
}

// New creates a Vectorizer. Zero option fields take their defaults.
func New(client Client, opts Options, logger *slog.Logger) *Vectorizer {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Dimension <= 0 {
		opts.Dimension = def.Dimension
	}
	if opts.ChunkRate <= 0 {
		opts.ChunkRate = def.ChunkRate
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vectorizer{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(opts.ChunkRate, 1),
		logger:  logger,
	}
}

// Dimension returns the configured vector width.
func (v *Vectorizer) Dimension() int { return v.opts.Dimension }

// Stats returns the accumulated degradation counters.
func (v *Vectorizer) Stats() Stats {
	return Stats{
		BatchFailures: v.batchFailures.Load(),
		ItemFallbacks: v.itemFallbacks.Load(),
	}
}

// EmbedOne embeds a single text. It returns nil when the provider fails;
// callers decide whether that is fatal.
func (v *Vectorizer) EmbedOne(ctx context.Context, text string) []float32 {
	vecs, err := v.client.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
		v.logger.Warn("embedding failed", "err", err)
		return nil
	}
	return vecs[0]
}

// EmbedMany embeds texts in chunks of BatchSize, one provider call per
// chunk, pacing calls through the rate limiter and running at most Workers
// chunk calls concurrently. A failed chunk call is retried item-by-item; an
// item that still fails is replaced with a zero vector of the configured
// dimension, so the output always has exactly one vector per input text, in
// input order. The only returned error is context cancellation.
func (v *Vectorizer) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)

	for start := 0; start < len(texts); start += v.opts.BatchSize {
		end := min(start+v.opts.BatchSize, len(texts))
		start := start
		chunk := texts[start:end]

		g.Go(func() error {
			if err := v.limiter.Wait(ctx); err != nil {
				return err
			}
			vecs, err := v.client.Embed(ctx, chunk)
			if err == nil && len(vecs) == len(chunk) {
				copy(out[start:end], vecs)
				return nil
			}

			v.batchFailures.Add(1)
			v.logger.Warn("batch embedding failed, retrying per item",
				"offset", start, "size", len(chunk), "err", err)

			for j, text := range chunk {
				if err := ctx.Err(); err != nil {
					return err
				}
				vec := v.EmbedOne(ctx, text)
				if vec == nil {
					v.itemFallbacks.Add(1)
					vec = make([]float32, v.opts.Dimension)
				}
				out[start+j] = vec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
