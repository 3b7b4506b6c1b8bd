package get_snapshot

import "lifecycle-agent/internal/application/command/args"

// GetSnapshotQuery returns the rollback snapshots of the selected units.
type GetSnapshotQuery struct {
	args.Selection
}

// Name returns the name of the query
func (q GetSnapshotQuery) Name() string {
	return "GetSnapshot"
}
