package rollback_units

import "lifecycle-agent/internal/application/command/args"

// RollbackUnitsCommand returns the selected units to the images recorded
// before their last update. Combined also restores their files and
// databases first and needs Confirm.
type RollbackUnitsCommand struct {
	args.Selection
	args.Items
	Combined bool
	Date     string `validate:"omitempty,datetime=2006-01-02"`
	Confirm  bool
	DryRun   bool
}

// Name returns the name of the command
func (c RollbackUnitsCommand) Name() string {
	return "RollbackUnits"
}
