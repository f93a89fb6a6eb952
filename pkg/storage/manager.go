package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	errs "imgharvest/pkg/errors"
)

// FailedListName is the diagnostic file written on shortfall
const FailedListName = "failed_urls.txt"

// Manager owns one category directory of the dataset
type Manager struct {
	dir   string
	mu    sync.Mutex
	saved int
}

// datasetName matches files written by Save
var datasetName = regexp.MustCompile(`^[0-9]{4,}\.[A-Za-z0-9]+$`)

// NewManager creates the <baseDir>/<category> directory if needed and
// removes dataset images left there by an earlier run. Other files are
// kept.
func NewManager(baseDir, category string) (*Manager, error) {
	dir := filepath.Join(baseDir, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.New(errs.ErrorTypePersist, "failed to create category directory", err)
	}
	m := &Manager{dir: dir}
	if err := m.clearDataset(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) clearDataset() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return errs.New(errs.ErrorTypePersist, "failed to read category directory", err)
	}
	for _, e := range entries {
		stale := datasetName.MatchString(e.Name()) || strings.HasPrefix(e.Name(), ".tmp-")
		if !e.Type().IsRegular() || !stale {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return errs.New(errs.ErrorTypePersist, "remove stale "+e.Name(), err)
		}
	}
	return nil
}

// FileName returns the dataset file name for a zero-based index
func FileName(index int, ext string) string {
	return fmt.Sprintf("%04d.%s", index, strings.TrimPrefix(ext, "."))
}

// Save writes data as <index>.<ext> through a temporary file and an atomic
// rename, so a partially written image never carries a dataset name
func (m *Manager) Save(index int, ext string, data []byte) (string, error) {
	name := FileName(index, ext)
	path := filepath.Join(m.dir, name)

	if err := writeAtomic(m.dir, path, data); err != nil {
		return "", errs.New(errs.ErrorTypePersist, "write "+name, err)
	}

	m.mu.Lock()
	m.saved++
	m.mu.Unlock()
	return path, nil
}

// WriteFailedURLs writes one URL per line to failed_urls.txt
func (m *Manager) WriteFailedURLs(urls []string) (string, error) {
	path := filepath.Join(m.dir, FailedListName)

	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := writeAtomic(m.dir, path, []byte(b.String())); err != nil {
		return "", errs.New(errs.ErrorTypePersist, "write "+FailedListName, err)
	}
	return path, nil
}

// RemoveFailedList deletes a failed_urls.txt left by an earlier run
func (m *Manager) RemoveFailedList() error {
	err := os.Remove(filepath.Join(m.dir, FailedListName))
	if err != nil && !os.IsNotExist(err) {
		return errs.New(errs.ErrorTypePersist, "remove "+FailedListName, err)
	}
	return nil
}

// Dir returns the category directory
func (m *Manager) Dir() string {
	return m.dir
}

// SavedCount returns how many files this manager has written
func (m *Manager) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
