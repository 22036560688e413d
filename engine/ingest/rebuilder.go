package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/natsutil"
)

// NATS subjects for rebuild coordination. Publishing is optional; a
// Rebuilder with no connection simply skips it.
const (
	SubjectRebuild = "traffic.catalog.rebuild"
	SubjectRebuilt = "traffic.catalog.rebuilt"
)

// Job is a rebuild request, as carried on SubjectRebuild.
type Job struct {
	ID       string   `json:"id"`
	Files    []string `json:"files"`
	FileKeys []string `json:"file_keys,omitempty"`
}

// Event announces a finished rebuild on SubjectRebuilt.
type Event struct {
	JobID    string   `json:"job_id"`
	Segments int      `json:"segments"`
	Sources  []string `json:"sources"`
	TookMS   int64    `json:"took_ms"`
	Err      string   `json:"err,omitempty"`
}

// ErrRebuildInProgress is returned when a rebuild is already running.
// Rebuilds are single-flight; embedding is slow and externally billed.
var ErrRebuildInProgress = errors.New("ingest: rebuild already in progress")

// Rebuilder runs catalog builds as cancellable background tasks. On
// success it swaps the new catalog into the store and persists it, always
// as one unit, so readers never see index and metadata out of step.
type Rebuilder struct {
	deps    Deps
	store   *catalog.Store
	dataDir string
	nc      *nats.Conn
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewRebuilder creates a Rebuilder persisting into dataDir. nc may be nil.
func NewRebuilder(deps Deps, store *catalog.Store, dataDir string, nc *nats.Conn, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{deps: deps, store: store, dataDir: dataDir, nc: nc, logger: logger}
}

// Running reports whether a rebuild is in flight.
func (r *Rebuilder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger starts a background rebuild and returns its job ID. The task
// outlives the caller's request context but is cancelled by Stop.
func (r *Rebuilder) Trigger(ctx context.Context, sources []Source) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrRebuildInProgress
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	jobID := uuid.NewString()
	go r.run(runCtx, jobID, sources)
	return jobID, nil
}

// Stop cancels an in-flight rebuild, if any.
func (r *Rebuilder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Rebuilder) run(ctx context.Context, jobID string, sources []Source) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	start := time.Now()
	r.logger.Info("rebuild started", "job_id", jobID, "sources", len(sources))

	cat, err := Build(ctx, r.deps, sources)
	event := Event{JobID: jobID, TookMS: time.Since(start).Milliseconds()}
	if err != nil {
		r.logger.Error("rebuild failed", "job_id", jobID, "err", err)
		event.Err = err.Error()
		r.publish(ctx, event)
		return
	}

	r.store.Swap(cat)
	if err := catalog.Save(r.dataDir, cat); err != nil {
		// The in-memory catalog is already live; persistence failure only
		// costs the next restart a rebuild.
		r.logger.Error("catalog persist failed", "job_id", jobID, "err", err)
	}

	event.Segments = len(cat.Segments)
	event.Sources = cat.Sources
	r.logger.Info("rebuild finished", "job_id", jobID, "segments", event.Segments, "took", time.Since(start))
	r.publish(ctx, event)
}

func (r *Rebuilder) publish(ctx context.Context, event Event) {
	if r.nc == nil {
		return
	}
	if err := natsutil.Publish(ctx, r.nc, SubjectRebuilt, event); err != nil {
		r.logger.Warn("rebuild event publish failed", "job_id", event.JobID, "err", err)
	}
}
