// Package snapshot keeps the single-generation pre-update state of units.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/domain/service/util"
	"lifecycle-agent/pkg/log"
)

// FileName is the snapshot document kept next to a unit's definition, so it
// travels with filesystem backups of the unit.
const FileName = ".lifecycle-snapshot.json"

// Store is the file-backed repository.SnapshotStore. Units without a
// directory keep their snapshot under fallbackDir/<host>/<unit>.json.
type Store struct {
	fallbackDir string
}

var _ repository.SnapshotStore = (*Store)(nil)

// NewStore creates a snapshot store.
func NewStore(fallbackDir string) *Store {
	return &Store{fallbackDir: fallbackDir}
}

// Path returns where the snapshot of unit is kept.
func (s *Store) Path(unit model.Unit) string {
	if unit.Dir != "" {
		return filepath.Join(unit.Dir, FileName)
	}
	host := unit.Host
	if host == "" {
		host = "local"
	}
	return filepath.Join(s.fallbackDir, model.Identifier(host), model.Identifier(unit.Name)+".json")
}

// Save replaces the previous snapshot of the unit.
func (s *Store) Save(_ context.Context, unit model.Unit, rec model.SnapshotRecord) error {
	if rec.Unit == "" {
		rec.Unit = unit.Name
	}
	if rec.Unit != unit.Name {
		return fmt.Errorf("snapshot for %q cannot be saved under unit %q", rec.Unit, unit.Name)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	path := s.Path(unit)
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", unit.Name, err)
	}
	log.Debug("[Snapshot] Saved", "unit", unit.Name, "path", path, "images", len(rec.Images))
	return nil
}

// Load returns model.ErrSnapshotNotFound when the unit has none.
func (s *Store) Load(_ context.Context, unit model.Unit) (model.SnapshotRecord, error) {
	path := s.Path(unit)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.SnapshotRecord{}, fmt.Errorf("%w: %s", model.ErrSnapshotNotFound, unit.Name)
	}
	if err != nil {
		return model.SnapshotRecord{}, fmt.Errorf("failed to read snapshot of %s: %w", unit.Name, err)
	}
	var rec model.SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.SnapshotRecord{}, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if rec.Unit != unit.Name {
		return model.SnapshotRecord{}, fmt.Errorf("snapshot %s belongs to unit %q", path, rec.Unit)
	}
	return rec, nil
}
