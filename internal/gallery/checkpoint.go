package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

// Snapshot is the whole-store checkpoint format.
type Snapshot struct {
	Version  int              `json:"version"`
	SavedAt  time.Time        `json:"saved_at"`
	Profiles []*PlayerProfile `json:"profiles"`
}

// CheckpointStore persists gallery snapshots. Save must be
// all-or-nothing: either the new snapshot fully replaces the old one
// or the old one survives untouched.
type CheckpointStore interface {
	Save(snap Snapshot) error
	Load() (Snapshot, error)
}

// FileStore keeps the gallery in a single JSON file with atomic
// replace-on-write (write-temp → verify → rename) and a .bak of the
// previous checkpoint for corruption recovery.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) backupPath() string { return s.path + ".bak" }
func (s *FileStore) tempPath() string   { return s.path + ".tmp" }

// Save writes the snapshot to a temp file, verifies it decodes, moves
// the previous checkpoint to .bak, then renames the temp file into
// place. On any failure the prior checkpoint remains valid.
func (s *FileStore) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.tempPath()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp checkpoint: %w", err)
	}

	// Verify the bytes on disk round-trip before replacing anything.
	written, err := os.ReadFile(tmp)
	if err != nil {
		return fmt.Errorf("reread temp checkpoint: %w", err)
	}
	var check Snapshot
	if err := json.Unmarshal(written, &check); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("verify temp checkpoint: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.backupPath()); err != nil {
			return fmt.Errorf("rotate checkpoint backup: %w", err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the current checkpoint, falling back to the backup when
// the primary is missing or corrupt. A missing store (first run)
// returns an empty snapshot.
func (s *FileStore) Load() (Snapshot, error) {
	snap, err := s.loadFile(s.path)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if _, bakErr := os.Stat(s.backupPath()); errors.Is(bakErr, os.ErrNotExist) {
			return Snapshot{Version: snapshotVersion}, nil
		}
	} else {
		slog.Warn("gallery checkpoint corrupt, trying backup", "path", s.path, "error", err)
	}

	snap, bakErr := s.loadFile(s.backupPath())
	if bakErr == nil {
		slog.Warn("gallery recovered from backup checkpoint", "path", s.backupPath())
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("load checkpoint: %w", err)
}

func (s *FileStore) loadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, path, err)
	}
	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %s: unsupported version %d", ErrCorruptCheckpoint, path, snap.Version)
	}
	return snap, nil
}
