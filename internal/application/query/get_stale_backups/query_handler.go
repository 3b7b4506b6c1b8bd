package get_stale_backups

import (
	"context"
	"time"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// GetStaleBackupsQueryHandler handles the GetStaleBackupsQuery
type GetStaleBackupsQueryHandler struct {
	backups          repository.BackupLog
	defaultThreshold time.Duration
}

// Handle executes the GetStaleBackupsQuery and returns the result
func (h *GetStaleBackupsQueryHandler) Handle(ctx context.Context, query GetStaleBackupsQuery) ([]model.StaleBackup, error) {
	if err := args.Validate(query); err != nil {
		return nil, err
	}
	threshold := query.Threshold
	if threshold == 0 {
		threshold = h.defaultThreshold
	}
	stale, err := h.backups.StaleBackups(ctx, threshold)
	if err != nil {
		return nil, log.Errorf("failed to query stale backups: %w", err)
	}
	log.Debug("Stale backups queried", "threshold", threshold, "stale", len(stale))
	return stale, nil
}

// NewGetStaleBackupsQueryHandler creates a new GetStaleBackupsQueryHandler
func NewGetStaleBackupsQueryHandler(backups repository.BackupLog, defaultThreshold time.Duration) *GetStaleBackupsQueryHandler {
	return &GetStaleBackupsQueryHandler{backups: backups, defaultThreshold: defaultThreshold}
}
