package verify_backups

import (
	"context"

	"lifecycle-agent/internal/application/backup"
	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/domain/model"
)

// Runner runs verifications.
type Runner interface {
	Run(ctx context.Context, req backup.VerifyRequest) (*model.BatchReport, error)
}

// VerifyBackupsHandler handles the VerifyBackupsCommand.
type VerifyBackupsHandler struct {
	verifier Runner
}

// Handle executes the VerifyBackupsCommand.
func (h *VerifyBackupsHandler) Handle(ctx context.Context, cmd VerifyBackupsCommand) (*model.BatchReport, error) {
	if err := args.Validate(cmd); err != nil {
		return nil, err
	}
	date, err := args.ParseDate(cmd.Date)
	if err != nil {
		return nil, err
	}
	return h.verifier.Run(ctx, backup.VerifyRequest{
		Scope:  cmd.Scope(),
		Filter: cmd.Filter(),
		Deep:   cmd.Deep,
		Date:   date,
		DryRun: cmd.DryRun,
	})
}

// NewVerifyBackupsHandler creates a new VerifyBackupsHandler.
func NewVerifyBackupsHandler(verifier Runner) *VerifyBackupsHandler {
	return &VerifyBackupsHandler{verifier: verifier}
}
