package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// HistoryFileName is the name of the run history file.
	HistoryFileName = "history.json"
	// MaxRuns is the maximum number of runs kept in the history.
	MaxRuns = 200
)

// Store manages the persistent run history.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a store that keeps its files in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the path to the history file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, HistoryFileName)
}

// Load loads the history from disk. A missing file is an empty history.
func (s *Store) Load() (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadInternal()
}

// loadInternal loads the history without locking (caller must hold lock).
func (s *Store) loadInternal() (*History, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return NewHistory(), nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	if h.Version != Version {
		log.Warn("history file has an unexpected version", "version", h.Version, "supported", Version)
	}
	if h.Runs == nil {
		h.Runs = []Run{}
	}
	return &h, nil
}

// Append adds a run to the history, dropping the oldest runs beyond MaxRuns.
func (s *Store) Append(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.loadInternal()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	h.Runs = append(h.Runs, run)
	if len(h.Runs) > MaxRuns {
		h.Runs = h.Runs[len(h.Runs)-MaxRuns:]
	}
	h.Version = Version

	return s.saveInternal(h)
}

// saveInternal writes the history atomically (caller must hold lock).
func (s *Store) saveInternal(h *History) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	path := s.Path()
	tmpPath := path + ".tmp"

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write to temp file first
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		if removeErr := os.Remove(tmpPath); removeErr != nil {
			log.Warn("failed to clean up temp file", "path", tmpPath, "err", removeErr)
		}
		return fmt.Errorf("failed to save history file: %w", err)
	}

	return nil
}
