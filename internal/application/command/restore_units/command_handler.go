package restore_units

import (
	"context"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/restore"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/log"
)

// Runner runs restores.
type Runner interface {
	Run(ctx context.Context, req restore.Request) (*model.BatchReport, error)
}

// RestoreUnitsHandler handles the RestoreUnitsCommand.
type RestoreUnitsHandler struct {
	pipeline Runner
}

// Handle executes the RestoreUnitsCommand.
func (h *RestoreUnitsHandler) Handle(ctx context.Context, cmd RestoreUnitsCommand) (*model.BatchReport, error) {
	if err := args.Validate(cmd); err != nil {
		return nil, err
	}
	date, err := args.ParseDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	log.Debug("[Restore] Processing restore request", "scope", cmd.Scope(), "confirm", cmd.Confirm, "dry_run", cmd.DryRun)
	return h.pipeline.Run(ctx, restore.Request{
		Scope:          cmd.Scope(),
		Filter:         cmd.Filter(),
		Date:           date,
		SourceHost:     cmd.SourceHost,
		Confirm:        cmd.Confirm,
		DryRun:         cmd.DryRun,
		SkipSafetyDump: cmd.SkipSafetyDump,
	})
}

// NewRestoreUnitsHandler creates a new RestoreUnitsHandler.
func NewRestoreUnitsHandler(pipeline Runner) *RestoreUnitsHandler {
	return &RestoreUnitsHandler{pipeline: pipeline}
}
