package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CatalogFile is the name of the local catalog inside the data dir
const CatalogFile = "catalog.json"

// Item is one media file as pushed to agentIngest
type Item struct {
	MediaID  string  `json:"mediaId,omitempty"`
	Title    string  `json:"title"`
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Type     string  `json:"type"`
	Season   *int    `json:"season,omitempty"`
	Episode  *int    `json:"episode,omitempty"`
	Year     *int    `json:"year,omitempty"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"`
	AddedAt  string  `json:"addedAt,omitempty"`
}

// Catalog is the result of the last scan
type Catalog struct {
	Items     []Item    `json:"items"`
	ScannedAt time.Time `json:"scannedAt"`
}

// LoadCatalog reads the catalog from dataDir. A missing file is an empty
// catalog.
func LoadCatalog(dataDir string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, CatalogFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Catalog{Items: []Item{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &catalog, nil
}

// Save writes the catalog to dataDir
func (c *Catalog) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dataDir, CatalogFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
