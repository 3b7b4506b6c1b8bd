package query

import (
	"time"

	"lifecycle-agent/internal/application/query/get_snapshot"
	"lifecycle-agent/internal/application/query/get_stale_backups"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/cqrs"
	"lifecycle-agent/pkg/log"
)

// Sources are the read models behind the query handlers.
type Sources struct {
	Inventory repository.Inventory
	Snapshots repository.SnapshotStore
	Backups   repository.BackupLog
	// StaleAfter is the default age of a stale backup.
	StaleAfter time.Duration
}

func RegisterQueryHandlers(b cqrs.QueryBus, s Sources) error {
	if err := b.Register(get_snapshot.NewGetSnapshotQueryHandler(s.Inventory, s.Snapshots)); err != nil {
		return log.Errorf("failed to register get snapshot query handler: %w", err)
	}

	if err := b.Register(get_stale_backups.NewGetStaleBackupsQueryHandler(s.Backups, s.StaleAfter)); err != nil {
		return log.Errorf("failed to register get stale backups query handler: %w", err)
	}

	return nil
}
