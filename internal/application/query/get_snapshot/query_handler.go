package get_snapshot

import (
	"context"
	"errors"
	"fmt"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// UnitSnapshot is the snapshot of one unit on one host. Record is nil when
// the unit was never updated.
type UnitSnapshot struct {
	Host   string                `json:"host"`
	Unit   string                `json:"unit"`
	Record *model.SnapshotRecord `json:"record,omitempty"`
}

// GetSnapshotQueryHandler handles the GetSnapshotQuery
type GetSnapshotQueryHandler struct {
	inventory repository.Inventory
	snapshots repository.SnapshotStore
}

// Handle executes the GetSnapshotQuery and returns the result
func (h *GetSnapshotQueryHandler) Handle(ctx context.Context, query GetSnapshotQuery) ([]UnitSnapshot, error) {
	if err := args.Validate(query); err != nil {
		return nil, err
	}
	hosts, err := h.inventory.Resolve(ctx, query.Scope())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", query.Scope(), err)
	}

	var out []UnitSnapshot
	for _, host := range hosts {
		for _, unit := range host.Units {
			unit.Host = host.Name
			entry := UnitSnapshot{Host: host.Name, Unit: unit.Name}
			rec, err := h.snapshots.Load(ctx, unit)
			switch {
			case err == nil:
				entry.Record = &rec
			case !errors.Is(err, model.ErrSnapshotNotFound):
				return nil, err
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// NewGetSnapshotQueryHandler creates a new GetSnapshotQueryHandler
func NewGetSnapshotQueryHandler(inventory repository.Inventory, snapshots repository.SnapshotStore) *GetSnapshotQueryHandler {
	return &GetSnapshotQueryHandler{inventory: inventory, snapshots: snapshots}
}
