package update_units

import (
	"context"
	"fmt"
	"os"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/update"
	"lifecycle-agent/internal/domain/model"
)

// Runner runs updates.
type Runner interface {
	Run(ctx context.Context, req update.Request) (*model.BatchReport, error)
}

// UpdateUnitsHandler handles the UpdateUnitsCommand.
type UpdateUnitsHandler struct {
	service Runner
}

// Handle executes the UpdateUnitsCommand.
func (h *UpdateUnitsHandler) Handle(ctx context.Context, cmd UpdateUnitsCommand) (*model.BatchReport, error) {
	if err := args.Validate(cmd); err != nil {
		return nil, err
	}
	req := update.Request{Scope: cmd.Scope(), DryRun: cmd.DryRun}
	if cmd.DefinitionFile != "" {
		data, err := os.ReadFile(cmd.DefinitionFile)
		if err != nil {
			return nil, fmt.Errorf("read definition: %w", err)
		}
		req.Definition = data
	}
	return h.service.Run(ctx, req)
}

// NewUpdateUnitsHandler creates a new UpdateUnitsHandler.
func NewUpdateUnitsHandler(service Runner) *UpdateUnitsHandler {
	return &UpdateUnitsHandler{service: service}
}
