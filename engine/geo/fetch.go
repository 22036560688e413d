// Package geo fetches GeoJSON traffic exports and normalizes their features
// into canonical Segment records with rendered descriptive text.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Document is a minimally parsed GeoJSON feature collection. Geometry
// coordinates stay raw until the feature's geometry type is known, because
// Point and Polygon features carry differently shaped arrays.
type Document struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature with untyped properties.
type Feature struct {
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry carries the geometry type and its raw coordinate array.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Fetcher downloads GeoJSON documents with a local disk cache. The cache
// key is derived from the trailing URL path segments, so re-running a build
// against the same source files never re-downloads them. A corrupted cache
// file is treated as a miss and re-downloaded, never as a fatal error.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// Fetch returns the parsed GeoJSON document at rawURL, from cache when
// possible.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	path := f.cachePath(rawURL)

	if data, err := os.ReadFile(path); err == nil {
		var doc Document
		if err := json.Unmarshal(data, &doc); err == nil {
			f.logger.Debug("geojson cache hit", "path", path)
			return &doc, nil
		}
		f.logger.Warn("geojson cache file corrupted, redownloading", "path", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("geo: fetch %s: %w", rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo: fetch %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geo: fetch %s: read body: %w", rawURL, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("geo: fetch %s: decode: %w", rawURL, err)
	}

	if err := os.MkdirAll(f.cacheDir, 0o755); err == nil {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			f.logger.Warn("geojson cache write failed", "path", path, "err", err)
		}
	}
	return &doc, nil
}

// cachePath keys the cache by the last three URL path segments joined with
// underscores, with spaces (and their percent-encoding) replaced.
func (f *Fetcher) cachePath(rawURL string) string {
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		s = u.Path
	}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	name := strings.Join(parts, "_")
	name = strings.ReplaceAll(name, "%20", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join(f.cacheDir, name)
}
