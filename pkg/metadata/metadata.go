// Package metadata writes the optional per-category dataset manifest.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManifestName is the manifest file inside a category directory
const ManifestName = "manifest.json"

// ImageRecord describes one stored image
type ImageRecord struct {
	File        string `json:"file"`
	SourceURL   string `json:"source_url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	FileSize    int64  `json:"file_size"`
	AspectRatio string `json:"aspect_ratio"`
	Attempts    int    `json:"attempts"`
}

// Manifest represents the provenance of one category run
type Manifest struct {
	Category    string        `json:"category"`
	Query       string        `json:"query"`
	RunID       string        `json:"run_id"`
	SearchURL   string        `json:"search_url"`
	Requested   int           `json:"requested"`
	Achieved    int           `json:"achieved"`
	GeneratedAt time.Time     `json:"generated_at"`
	Images      []ImageRecord `json:"images"`
}

// NewImageRecord builds a record from a saved file path and its source
func NewImageRecord(savedPath, sourceURL string, width, height, size, attempts int) ImageRecord {
	return ImageRecord{
		File:        filepath.Base(savedPath),
		SourceURL:   sourceURL,
		Width:       width,
		Height:      height,
		Format:      strings.TrimPrefix(filepath.Ext(savedPath), "."),
		FileSize:    int64(size),
		AspectRatio: AspectRatio(width, height),
		Attempts:    attempts,
	}
}

// Save writes the manifest into dir and returns its path
func (m *Manifest) Save(dir string) (string, error) {
	path := filepath.Join(dir, ManifestName)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest file: %w", err)
	}

	return path, nil
}

// Load reads the manifest from dir
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &m, nil
}

// AspectRatio returns the aspect ratio as a string
func AspectRatio(width, height int) string {
	if height == 0 {
		return "unknown"
	}

	ratio := float64(width) / float64(height)

	// Common aspect ratios
	switch {
	case ratio > 1.7 && ratio < 1.8:
		return "16:9"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio > 0.9 && ratio < 1.1:
		return "1:1"
	case ratio > 0.55 && ratio < 0.57:
		return "9:16"
	case ratio > 0.74 && ratio < 0.76:
		return "3:4"
	default:
		return fmt.Sprintf("%.2f:1", ratio)
	}
}
