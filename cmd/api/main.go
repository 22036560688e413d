// Package main implements the traffic-analysis API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/embed"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/geo"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/ingest"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/rag"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/metrics"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/mid"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/natsutil"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/openai"
)

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	OpenAIKey     string
	OpenAIBaseURL string
	DataDir       string
	CacheDir      string
	NATSURL       string
	CORSOrigin    string
}

func loadConfig() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	return Config{
		Port:          envOr("PORT", "8080"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", ""),
		DataDir:       envOr("DATA_DIR", "embeddings"),
		CacheDir:      envOr("GEOJSON_CACHE_DIR", "data/geojson"),
		NATSURL:       envOr("NATS_URL", ""),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
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

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- External collaborators ---
	ai, err := openai.New(openai.Config{BaseURL: cfg.OpenAIBaseURL, APIKey: cfg.OpenAIKey})
	if err != nil {
		return fmt.Errorf("openai client: %w", err)
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("traffic-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	// --- Engine wiring ---
	vectorizer := embed.New(ai, embed.Options{}, logger)
	fetcher := geo.NewFetcher(cfg.CacheDir, logger)

	catalogs := &catalog.Store{}
	if cat, err := catalog.Load(cfg.DataDir); err == nil {
		catalogs.Swap(cat)
		logger.Info("catalog loaded", "segments", len(cat.Segments), "dir", cfg.DataDir)
	} else if errors.Is(err, domain.ErrCatalogNotFound) {
		logger.Warn("no embeddings catalog found, build one via /api/rebuild", "dir", cfg.DataDir)
	} else {
		return fmt.Errorf("load catalog: %w", err)
	}

	rebuilder := ingest.NewRebuilder(
		ingest.Deps{Fetcher: fetcher, Vectorizer: vectorizer, Logger: logger},
		catalogs, cfg.DataDir, nc, logger,
	)
	defer rebuilder.Stop()

	ragSvc := rag.New(catalogs, vectorizer, &summarizerAdapter{ai: ai}, rag.DefaultOptions(), logger)

	// When a worker rebuilds the catalog out of process, pick up the new
	// files from disk.
	if nc != nil {
		sub, err := natsutil.Subscribe(ctx, nc, ingest.SubjectRebuilt, func(ctx context.Context, ev ingest.Event) {
			if ev.Err != "" {
				return
			}
			cat, err := catalog.Load(cfg.DataDir)
			if err != nil {
				logger.Error("catalog reload after rebuild failed", "job_id", ev.JobID, "err", err)
				return
			}
			catalogs.Swap(cat)
			logger.Info("catalog reloaded", "job_id", ev.JobID, "segments", len(cat.Segments))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ingest.SubjectRebuilt, err)
		}
		defer sub.Unsubscribe()
	}

	// --- HTTP server ---
	met := metrics.New()
	srvHandlers := &server{
		rag:       ragSvc,
		catalogs:  catalogs,
		rebuilder: rebuilder,
		logger:    logger,

		chatRequests: met.Counter("traffic_chat_requests_total", "Total chat queries received."),
		chatErrors:   met.Counter("traffic_chat_errors_total", "Chat queries that failed."),
		rebuildJobs:  met.Counter("traffic_rebuild_jobs_total", "Catalog rebuild jobs accepted."),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srvHandlers.handleHealth)
	mux.HandleFunc("GET /api/catalog/info", srvHandlers.handleCatalogInfo)
	mux.HandleFunc("POST /api/chat", srvHandlers.handleChat)
	mux.HandleFunc("POST /api/retrieve", srvHandlers.handleRetrieve)
	mux.HandleFunc("POST /api/rebuild", srvHandlers.handleRebuild)
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("traffic-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// summarizerAdapter bridges the generic chat client to the rag.Summarizer
// contract.
type summarizerAdapter struct {
	ai *openai.Client
}

func (a *summarizerAdapter) Summarize(ctx context.Context, query string, segments []domain.Segment, language string) (string, error) {
	system, user := rag.BuildPrompt(query, segments, language)
	return a.ai.Chat(ctx, system, user)
}
