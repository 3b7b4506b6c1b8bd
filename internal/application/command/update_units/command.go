package update_units

import "lifecycle-agent/internal/application/command/args"

// UpdateUnitsCommand pulls new images for the selected units and recreates
// them. DefinitionFile optionally replaces the compose definition of a
// single unit first.
type UpdateUnitsCommand struct {
	args.Selection
	DefinitionFile string `validate:"omitempty,file"`
	DryRun         bool
}

// Name returns the name of the command
func (c UpdateUnitsCommand) Name() string {
	return "UpdateUnits"
}
