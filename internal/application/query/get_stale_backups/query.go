package get_stale_backups

import "time"

// GetStaleBackupsQuery lists the units whose newest good backup is older than
// Threshold. A zero Threshold selects the configured default.
type GetStaleBackupsQuery struct {
	Threshold time.Duration `validate:"gte=0"`
}

// Name returns the name of the query
func (q GetStaleBackupsQuery) Name() string {
	return "GetStaleBackups"
}
