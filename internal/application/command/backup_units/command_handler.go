package backup_units

import (
	"context"

	"lifecycle-agent/internal/application/backup"
	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/log"
)

// Runner runs backups.
type Runner interface {
	Run(ctx context.Context, req backup.Request) (*model.BatchReport, error)
}

// BackupUnitsHandler handles the BackupUnitsCommand.
type BackupUnitsHandler struct {
	pipeline Runner
}

// Handle executes the BackupUnitsCommand.
func (h *BackupUnitsHandler) Handle(ctx context.Context, cmd BackupUnitsCommand) (*model.BatchReport, error) {
	if err := args.Validate(cmd); err != nil {
		return nil, err
	}
	log.Debug("[Backup] Processing backup request", "scope", cmd.Scope(), "dry_run", cmd.DryRun)
	return h.pipeline.Run(ctx, backup.Request{Scope: cmd.Scope(), Filter: cmd.Filter(), DryRun: cmd.DryRun})
}

// NewBackupUnitsHandler creates a new BackupUnitsHandler.
func NewBackupUnitsHandler(pipeline Runner) *BackupUnitsHandler {
	return &BackupUnitsHandler{pipeline: pipeline}
}
