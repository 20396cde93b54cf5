// Package state persists the agent's checkpoint between runs: the fetch
// watermark and which items have already been seen. Losing it is harmless,
// the agent just re-ingests a window of recent items.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"assistant/pkg/proto"
)

// Checkpoint is what survives a restart. Derived state (conflicts, the
// active interaction) is deliberately not persisted; it is recomputed or
// abandoned.
type Checkpoint struct {
	State          proto.State `json:"state"`
	FetchWatermark time.Time   `json:"fetch_watermark"`
	KnownItemIDs   []string    `json:"known_item_ids"`
	SavedAt        time.Time   `json:"saved_at"`
}

// Store manages the checkpoint file under a base directory.
type Store struct {
	baseDir string
}

// NewStore creates a checkpoint store, creating the directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes the checkpoint atomically (write temp, then rename).
func (s *Store) Save(cp Checkpoint) error {
	cp.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	final := s.filename()
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to install checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint. A missing file returns a zero checkpoint and
// ok=false, which the agent treats as a first run.
func (s *Store) Load() (Checkpoint, bool, error) {
	data, err := os.ReadFile(s.filename())
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return cp, true, nil
}

// Delete removes the checkpoint; missing files are not an error.
func (s *Store) Delete() error {
	err := os.Remove(s.filename())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *Store) filename() string {
	return filepath.Join(s.baseDir, "checkpoint.json")
}
