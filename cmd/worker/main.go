// Package main implements the rebuild worker. It consumes catalog rebuild
// jobs from NATS, builds the embeddings catalog, persists it, and announces
// completion so API instances can reload.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/embed"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/geo"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/ingest"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/natsutil"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/openai"
)

type Config struct {
	OpenAIKey     string
	OpenAIBaseURL string
	DataDir       string
	CacheDir      string
	NATSURL       string
}

func loadConfig() Config {
	_ = godotenv.Load()
	return Config{
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", ""),
		DataDir:       envOr("DATA_DIR", "embeddings"),
		CacheDir:      envOr("GEOJSON_CACHE_DIR", "data/geojson"),
		NATSURL:       envOr("NATS_URL", nats.DefaultURL),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ai, err := openai.New(openai.Config{BaseURL: cfg.OpenAIBaseURL, APIKey: cfg.OpenAIKey})
	if err != nil {
		return fmt.Errorf("openai client: %w", err)
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("traffic-worker"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	w := &worker{
		deps: ingest.Deps{
			Fetcher:    geo.NewFetcher(cfg.CacheDir, logger),
			Vectorizer: embed.New(ai, embed.Options{}, logger),
			Logger:     logger,
		},
		dataDir: cfg.DataDir,
		nc:      nc,
		logger:  logger,
	}

	// NATS dispatches messages for one subscription serially, so jobs are
	// naturally single-flight. The handler context derives from the run
	// context, so a shutdown signal cancels an in-flight build.
	sub, err := natsutil.Subscribe(ctx, nc, ingest.SubjectRebuild, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ingest.SubjectRebuild, err)
	}
	defer sub.Unsubscribe()

	logger.Info("worker started", "subject", ingest.SubjectRebuild, "data_dir", cfg.DataDir)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

type worker struct {
	deps    ingest.Deps
	dataDir string
	nc      *nats.Conn
	logger  *slog.Logger
}

func (w *worker) handle(ctx context.Context, job ingest.Job) {
	start := time.Now()
	w.logger.Info("rebuild job received", "job_id", job.ID, "files", len(job.Files))

	event := ingest.Event{JobID: job.ID}
	cat, err := w.build(ctx, job)
	event.TookMS = time.Since(start).Milliseconds()
	if err != nil {
		w.logger.Error("rebuild job failed", "job_id", job.ID, "err", err)
		event.Err = err.Error()
	} else {
		event.Segments = len(cat.Segments)
		event.Sources = cat.Sources
		w.logger.Info("rebuild job finished", "job_id", job.ID, "segments", event.Segments, "took", time.Since(start))
	}

	if err := natsutil.Publish(ctx, w.nc, ingest.SubjectRebuilt, event); err != nil {
		w.logger.Warn("rebuild event publish failed", "job_id", job.ID, "err", err)
	}
}

func (w *worker) build(ctx context.Context, job ingest.Job) (*catalog.Catalog, error) {
	sources, err := ingest.MakeSources(job.Files, job.FileKeys)
	if err != nil {
		return nil, err
	}
	cat, err := ingest.Build(ctx, w.deps, sources)
	if err != nil {
		return nil, err
	}
	if err := catalog.Save(w.dataDir, cat); err != nil {
		return nil, fmt.Errorf("persist catalog: %w", err)
	}
	return cat, nil
}
