package restore_units

import "lifecycle-agent/internal/application/command/args"

// RestoreUnitsCommand puts the selected files and databases back from their
// newest artifacts, or from the artifacts of Date. Without Confirm nothing is
// changed and the handler reports what would be restored.
type RestoreUnitsCommand struct {
	args.Selection
	args.Items
	Date string `validate:"omitempty,datetime=2006-01-02"`
	// SourceHost restores artifacts taken on another host.
	SourceHost     string `validate:"omitempty,hostname_rfc1123"`
	Confirm        bool
	DryRun         bool
	SkipSafetyDump bool
}

// Name returns the name of the command
func (c RestoreUnitsCommand) Name() string {
	return "RestoreUnits"
}
