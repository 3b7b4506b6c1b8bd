package backup_units

import "lifecycle-agent/internal/application/command/args"

// BackupUnitsCommand captures the files and databases of the selected units.
type BackupUnitsCommand struct {
	args.Selection
	args.Items
	DryRun bool
}

// Name returns the name of the command
func (c BackupUnitsCommand) Name() string {
	return "BackupUnits"
}
