package rollback_units

import (
	"context"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/rollback"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/log"
)

// Runner runs rollbacks.
type Runner interface {
	Run(ctx context.Context, req rollback.Request) (*model.BatchReport, error)
}

// RollbackUnitsHandler handles the RollbackUnitsCommand.
type RollbackUnitsHandler struct {
	engine Runner
}

// Handle executes the RollbackUnitsCommand.
func (h *RollbackUnitsHandler) Handle(ctx context.Context, cmd RollbackUnitsCommand) (*model.BatchReport, error) {
	if err := args.Validate(cmd); err != nil {
		return nil, err
	}
	date, err := args.ParseDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	log.Debug("[Rollback] Processing rollback request", "scope", cmd.Scope(), "combined", cmd.Combined)
	return h.engine.Run(ctx, rollback.Request{
		Scope:    cmd.Scope(),
		Combined: cmd.Combined,
		Filter:   cmd.Filter(),
		Date:     date,
		Confirm:  cmd.Confirm,
		DryRun:   cmd.DryRun,
	})
}

// NewRollbackUnitsHandler creates a new RollbackUnitsHandler.
func NewRollbackUnitsHandler(engine Runner) *RollbackUnitsHandler {
	return &RollbackUnitsHandler{engine: engine}
}
