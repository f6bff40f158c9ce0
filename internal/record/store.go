// Package record persists the fingerprint of the last committed dataset.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dataset-attach/agent/internal/models"
)

const recordFileName = "last_uploaded_file.msgpack"

// Store holds the single LocalDatasetRecord slot on disk. Writes are
// last-writer-wins; the slot is read at most once per reconciliation pass.
type Store struct {
	mu      sync.Mutex
	dataDir string
	path    string
}

// NewStore creates a Store rooted at dataDir, creating the directory if
// needed.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating record directory: %w", err)
	}

	return &Store{
		dataDir: dataDir,
		path:    filepath.Join(dataDir, recordFileName),
	}, nil
}

// Load reads the persisted record. Returns (nil, nil) when no record exists.
func (s *Store) Load() (*models.LocalDatasetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}

	var rec models.LocalDatasetRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		// A corrupt record is unrecoverable; treat as absent so the
		// reconciler can rebuild state from the backend.
		fmt.Printf("[Record] Discarding corrupt record file: %v\n", err)
		os.Remove(s.path)
		return nil, nil
	}

	return &rec, nil
}

// Save overwrites the slot with rec. The write goes through a temp file so a
// crash mid-write never leaves a truncated record behind.
func (s *Store) Save(rec *models.LocalDatasetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing record: %w", err)
	}

	return nil
}

// Clear deletes the slot. Clearing an empty slot is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing record: %w", err)
	}
	return nil
}
