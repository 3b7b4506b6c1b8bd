package verify_backups

import "lifecycle-agent/internal/application/command/args"

// VerifyBackupsCommand checks the newest stored artifacts of the selected
// units. Deep also restores database dumps into temporary datasets.
type VerifyBackupsCommand struct {
	args.Selection
	args.Items
	Deep   bool
	Date   string `validate:"omitempty,datetime=2006-01-02"`
	DryRun bool
}

// Name returns the name of the command
func (c VerifyBackupsCommand) Name() string {
	return "VerifyBackups"
}
