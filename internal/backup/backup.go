// Package backup writes timestamped YAML snapshots of the application
// collection. History retention is the snapshot directory's job; the engine
// itself keeps only the latest state.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
	"gopkg.in/yaml.v3"
)

// Writer produces snapshot files named {prefix}_{timestamp}.yaml in dir.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewWriter creates a snapshot writer. A nil clock uses time.Now.
func NewWriter(dir, prefix string) *Writer {
	return &Writer{dir: dir, prefix: prefix, now: time.Now}
}

type snapshot struct {
	Version      string                `yaml:"version"`
	ExportedAt   time.Time             `yaml:"exportedAt"`
	Applications []*domain.Application `yaml:"applications"`
}

// Snapshot writes the full application collection to a new snapshot file and
// returns its path.
func (w *Writer) Snapshot(apps []*domain.Application) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	now := w.now()
	data, err := yaml.Marshal(&snapshot{
		Version:      "1.0",
		ExportedAt:   now,
		Applications: apps,
	})
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.yaml", w.prefix, now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
