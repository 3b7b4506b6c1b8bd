package command

import (
	"context"
	"testing"
	"time"

	"lifecycle-agent/internal/application/backup"
	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/command/backup_units"
	"lifecycle-agent/internal/application/command/restore_units"
	"lifecycle-agent/internal/application/command/rollback_units"
	"lifecycle-agent/internal/application/restore"
	"lifecycle-agent/internal/application/rollback"
	"lifecycle-agent/internal/application/update"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/cqrs"
)

type fakeServices struct {
	backup   []backup.Request
	verify   []backup.VerifyRequest
	restore  []restore.Request
	update   []update.Request
	rollback []rollback.Request
}

type backupRunner struct{ f *fakeServices }
type verifyRunner struct{ f *fakeServices }
type restoreRunner struct{ f *fakeServices }
type updateRunner struct{ f *fakeServices }
type rollbackRunner struct{ f *fakeServices }

func (r backupRunner) Run(_ context.Context, req backup.Request) (*model.BatchReport, error) {
	r.f.backup = append(r.f.backup, req)
	return &model.BatchReport{Operation: model.OpBackup}, nil
}

func (r verifyRunner) Run(_ context.Context, req backup.VerifyRequest) (*model.BatchReport, error) {
	r.f.verify = append(r.f.verify, req)
	return &model.BatchReport{Operation: model.OpVerify}, nil
}

func (r restoreRunner) Run(_ context.Context, req restore.Request) (*model.BatchReport, error) {
	r.f.restore = append(r.f.restore, req)
	return &model.BatchReport{Operation: model.OpRestore}, nil
}

func (r updateRunner) Run(_ context.Context, req update.Request) (*model.BatchReport, error) {
	r.f.update = append(r.f.update, req)
	return &model.BatchReport{Operation: model.OpUpdate}, nil
}

func (r rollbackRunner) Run(_ context.Context, req rollback.Request) (*model.BatchReport, error) {
	r.f.rollback = append(r.f.rollback, req)
	return &model.BatchReport{Operation: model.OpRollback}, nil
}

func newBus(t *testing.T) (*cqrs.DefaultCommandBus, *fakeServices) {
	t.Helper()
	f := &fakeServices{}
	bus := cqrs.NewCommandBus(context.Background())
	err := RegisterCommandHandlers(bus, Services{
		Backup:   backupRunner{f},
		Verify:   verifyRunner{f},
		Restore:  restoreRunner{f},
		Update:   updateRunner{f},
		Rollback: rollbackRunner{f},
	})
	if err != nil {
		t.Fatalf("RegisterCommandHandlers: %v", err)
	}
	return bus, f
}

func TestDispatchBackup(t *testing.T) {
	bus, f := newBus(t)

	res, err := bus.Dispatch(context.Background(), backup_units.BackupUnitsCommand{
		Selection: args.Selection{Unit: "shop"},
		Items:     args.Items{Database: "orders"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rep, ok := res.(*model.BatchReport); !ok || rep.Operation != model.OpBackup {
		t.Errorf("result = %#v", res)
	}
	if len(f.backup) != 1 || f.backup[0].Scope.Unit != "shop" || f.backup[0].Filter.Database != "orders" {
		t.Errorf("backup requests = %+v", f.backup)
	}
}

func TestDispatchRestore(t *testing.T) {
	bus, f := newBus(t)

	_, err := bus.Dispatch(context.Background(), restore_units.RestoreUnitsCommand{
		Selection:  args.Selection{Host: "h1"},
		Date:       "2026-10-01",
		SourceHost: "h2",
		Confirm:    true,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	if len(f.restore) != 1 || !f.restore[0].Date.Equal(want) || !f.restore[0].Confirm || f.restore[0].SourceHost != "h2" {
		t.Errorf("restore requests = %+v", f.restore)
	}
}

func TestInvalidCommandsAreRejected(t *testing.T) {
	bus, f := newBus(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  cqrs.Command
	}{
		{name: "empty selection", cmd: backup_units.BackupUnitsCommand{}},
		{name: "bad date", cmd: restore_units.RestoreUnitsCommand{Selection: args.Selection{Unit: "shop"}, Date: "01/10/2026"}},
		{name: "bad rollback date", cmd: rollback_units.RollbackUnitsCommand{Selection: args.Selection{Unit: "shop"}, Date: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bus.Dispatch(ctx, tt.cmd); err == nil {
				t.Error("Dispatch accepted an invalid command")
			}
		})
	}
	if len(f.backup)+len(f.restore)+len(f.rollback) != 0 {
		t.Errorf("invalid commands reached the services: %+v", f)
	}
}
