package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/domain"
	"github.com/data-panther-pvt-ltd/traffic-analysis/engine/vecindex"
)

// On-disk layout under one directory: the binary index file and a parallel
// JSON-array metadata file. They are only meaningful together.
const (
	IndexFile    = "index.bin"
	MetadataFile = "metadata.json"
	sourcesFile  = "sources.json"
)

// Save writes the catalog's index and metadata files into dir.
func Save(dir string, c *Catalog) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}
	if err := c.Index.Save(filepath.Join(dir, IndexFile)); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}

	meta, err := json.Marshal(c.Segments)
	if err != nil {
		return fmt.Errorf("catalog: save: encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), meta, 0o644); err != nil {
		return fmt.Errorf("catalog: save: write metadata: %w", err)
	}

	srcs, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("catalog: save: encode sources: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sourcesFile), srcs, 0o644); err != nil {
		return fmt.Errorf("catalog: save: write sources: %w", err)
	}
	return nil
}

// Load reads a previously saved catalog from dir. If either the index or
// the metadata file is absent the catalog does not exist yet and Load
// returns domain.ErrCatalogNotFound. A count mismatch between the two
// files is a hard error, never silently tolerated.
func Load(dir string) (*Catalog, error) {
	index, err := vecindex.Load(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	if index == nil {
		return nil, domain.ErrCatalogNotFound
	}

	meta, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if os.IsNotExist(err) {
		return nil, domain.ErrCatalogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	var segments []domain.Segment
	if err := json.Unmarshal(meta, &segments); err != nil {
		return nil, fmt.Errorf("catalog: load: decode metadata: %w", err)
	}

	if len(segments) != index.Len() {
		return nil, fmt.Errorf("catalog: load: %w: %d segments, %d vectors",
			domain.ErrCountMismatch, len(segments), index.Len())
	}

	var sources []string
	if data, err := os.ReadFile(filepath.Join(dir, sourcesFile)); err == nil {
		// Best effort; sources are informational only.
		_ = json.Unmarshal(data, &sources)
	}

	c := &Catalog{Segments: segments, Index: index, Sources: sources, BuiltAt: time.Now().UTC()}
	if st, err := os.Stat(filepath.Join(dir, IndexFile)); err == nil {
		c.BuiltAt = st.ModTime().UTC()
	}
	return c, nil
}
