package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/catalog"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/ingest"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/rag"
	"github.com/data-panther-pvt-ltd/traffic-analysis/pkg/metrics"
)

type server struct {
	rag       *rag.Service
	catalogs  *catalog.Store
	rebuilder *ingest.Rebuilder
	logger    *slog.Logger

	chatRequests *metrics.Counter
	chatErrors   *metrics.Counter
	rebuildJobs  *metrics.Counter
}

type chatRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	Language string `json:"language"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type rebuildRequest struct {
	Files    []string `json:"geojson_files"`
	FileKeys []string `json:"file_keys"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	segments := 0
	if cat, err := s.catalogs.Get(); err == nil {
		segments = len(cat.Segments)
	} else {
		status = "no_catalog"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"segments":   segments,
		"rebuilding": s.rebuilder.Running(),
	})
}

func (s *server) handleCatalogInfo(w http.ResponseWriter, r *http.Request) {
	cat, err := s.catalogs.Get()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat.Summarize())
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	s.chatRequests.Inc()
	resp, err := s.rag.Query(r.Context(), rag.Request{
		Query:    req.Query,
		TopK:     req.TopK,
		Language: req.Language,
	})
	if err != nil {
		s.chatErrors.Inc()
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	segments, err := s.rag.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    req.Query,
		"segments": segments,
		"count":    len(segments),
	})
}

func (s *server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "geojson_files is required"})
		return
	}

	sources, err := ingest.MakeSources(req.Files, req.FileKeys)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	jobID, err := s.rebuilder.Trigger(r.Context(), sources)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rebuildJobs.Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"files":  len(sources),
	})
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrCatalogNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no catalog loaded, run a rebuild first"})
	case errors.Is(err, domain.ErrMismatchedKeys):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ingest.ErrRebuildInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a rebuild is already running"})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
