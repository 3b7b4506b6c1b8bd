// Package configwriter replaces declarative unit files only after the new
// content passed validation.
package configwriter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/domain/service/util"
	"lifecycle-agent/pkg/log"
)

// Writer stages, validates and swaps definition files.
type Writer struct {
	validator repository.DefinitionValidator
}

// New creates a Writer. A nil validator selects ComposeValidator.
func New(validator repository.DefinitionValidator) *Writer {
	if validator == nil {
		validator = ComposeValidator{}
	}
	return &Writer{validator: validator}
}

// Write replaces the compose definition of unit with content.
func (w *Writer) Write(ctx context.Context, unit model.Unit, content []byte) error {
	target := unit.DefinitionFile()
	if target == "" {
		return fmt.Errorf("unit %s has no definition directory", unit.Name)
	}
	return w.WriteFile(ctx, unit, target, content)
}

// WriteFile replaces target with content. The content is written to a temp
// file in the target directory and validated there; on failure the live file
// is left as it was and the temp file is removed.
func (w *Writer) WriteFile(ctx context.Context, unit model.Unit, target string, content []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", target, err)
	}

	staged, err := util.StageFile(target, content, perm)
	if err != nil {
		return err
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(staged)
		}
	}()

	if err := w.validator.Validate(ctx, unit, staged); err != nil {
		log.Warn("[ConfigWriter] Rejected definition", "unit", unit.Name, "file", filepath.Base(target), "error", err)
		return fmt.Errorf("%w: %s: %v", model.ErrValidationFailed, filepath.Base(target), err)
	}
	if err := os.Rename(staged, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	keep = true
	log.Info("[ConfigWriter] Definition replaced", "unit", unit.Name, "file", target)
	return nil
}
