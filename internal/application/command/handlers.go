package command

import (
	"lifecycle-agent/internal/application/command/backup_units"
	"lifecycle-agent/internal/application/command/restore_units"
	"lifecycle-agent/internal/application/command/rollback_units"
	"lifecycle-agent/internal/application/command/update_units"
	"lifecycle-agent/internal/application/command/verify_backups"
	"lifecycle-agent/pkg/cqrs"
	"lifecycle-agent/pkg/log"
)

// Services are the application services behind the command handlers.
type Services struct {
	Backup   backup_units.Runner
	Verify   verify_backups.Runner
	Restore  restore_units.Runner
	Update   update_units.Runner
	Rollback rollback_units.Runner
}

func RegisterCommandHandlers(b cqrs.CommandBus, s Services) error {
	if err := b.Register(backup_units.NewBackupUnitsHandler(s.Backup)); err != nil {
		return log.Errorf("failed to register backup units handler: %w", err)
	}

	if err := b.Register(verify_backups.NewVerifyBackupsHandler(s.Verify)); err != nil {
		return log.Errorf("failed to register verify backups handler: %w", err)
	}

	if err := b.Register(restore_units.NewRestoreUnitsHandler(s.Restore)); err != nil {
		return log.Errorf("failed to register restore units handler: %w", err)
	}

	if err := b.Register(update_units.NewUpdateUnitsHandler(s.Update)); err != nil {
		return log.Errorf("failed to register update units handler: %w", err)
	}

	if err := b.Register(rollback_units.NewRollbackUnitsHandler(s.Rollback)); err != nil {
		return log.Errorf("failed to register rollback units handler: %w", err)
	}

	return nil
}
