package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/command/backup_units"
	"lifecycle-agent/internal/application/command/restore_units"
	"lifecycle-agent/internal/application/command/rollback_units"
	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/application/query/get_stale_backups"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/cqrs"
)

type fakeRunner struct {
	commands []cqrs.Command
	queries  []cqrs.Query
	report   *model.BatchReport
	err      error
	closed   bool
}

func (f *fakeRunner) Dispatch(_ context.Context, cmd cqrs.Command) (interface{}, error) {
	f.commands = append(f.commands, cmd)
	return f.report, f.err
}

func (f *fakeRunner) Query(_ context.Context, q cqrs.Query) (interface{}, error) {
	f.queries = append(f.queries, q)
	return []model.StaleBackup(nil), nil
}

func (f *fakeRunner) Close() { f.closed = true }

func execute(t *testing.T, f *fakeRunner, argv ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{
		open: func(context.Context, string) (runner, error) { return f, nil },
		out:  &out,
	}
	root := c.rootCmd()
	root.SetArgs(argv)
	if err := root.ExecuteContext(context.Background()); err != nil && c.exitCode == exitOK {
		return exitUsage, out.String()
	}
	return c.exitCode, out.String()
}

func report(statuses ...model.Status) *model.BatchReport {
	rep := &model.BatchReport{Operation: model.OpBackup, Scope: "unit shop"}
	for i, s := range statuses {
		rep.Add(model.OperationResult{ID: fmt.Sprintf("item%d", i), Unit: "shop", Host: "h1", Status: s, Size: 2048})
	}
	return rep
}

func TestFlagsBecomeCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want cqrs.Command
	}{
		{
			name: "backup",
			args: []string{"backup", "--unit", "shop", "--database", "orders", "--dry-run"},
			want: backup_units.BackupUnitsCommand{Selection: sel("shop"), Items: dbItem("orders"), DryRun: true},
		},
		{
			name: "restore",
			args: []string{"restore", "--unit", "shop", "--date", "2026-10-01", "--source-host", "h2", "--confirm"},
			want: restore_units.RestoreUnitsCommand{Selection: sel("shop"), Date: "2026-10-01", SourceHost: "h2", Confirm: true},
		},
		{
			name: "combined rollback",
			args: []string{"rollback", "--unit", "shop", "--combined", "--confirm"},
			want: rollback_units.RollbackUnitsCommand{Selection: sel("shop"), Combined: true, Confirm: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{report: report(model.StatusSuccess)}
			code, _ := execute(t, f, tt.args...)
			if code != exitOK {
				t.Fatalf("exit code = %d", code)
			}
			if len(f.commands) != 1 || f.commands[0] != tt.want {
				t.Errorf("commands = %#v, want %#v", f.commands, tt.want)
			}
			if !f.closed {
				t.Error("runner not closed")
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		rep  *model.BatchReport
		err  error
		want int
	}{
		{name: "success", rep: report(model.StatusSuccess, model.StatusSuccess), want: exitOK},
		{name: "partial", rep: report(model.StatusSuccess, model.StatusFailed), want: exitPartial},
		{name: "failed", rep: report(model.StatusFailed), want: exitFailed},
		{name: "unconfirmed", rep: report(model.StatusPlanned), err: fmt.Errorf("restore: %w", model.ErrConfirmationRequired), want: exitUnconfirmed},
		{name: "no report", err: model.ErrValidationFailed, want: exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{report: tt.rep, err: tt.err}
			if code, _ := execute(t, f, "backup", "--host", "h1"); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestReportOutput(t *testing.T) {
	f := &fakeRunner{report: report(model.StatusSuccess, model.StatusFailed)}

	_, text := execute(t, f, "backup", "--unit", "shop")
	if !strings.Contains(text, "partial, 1 succeeded, 1 failed") || !strings.Contains(text, "2.0 kB") {
		t.Errorf("text output:\n%s", text)
	}

	_, out := execute(t, f, "backup", "--unit", "shop", "--json")
	var decoded model.BatchReport
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if len(decoded.Results) != 2 || decoded.Results[1].Status != model.StatusFailed {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestStaleQuery(t *testing.T) {
	f := &fakeRunner{}
	code, out := execute(t, f, "stale", "--older-than", "48h")
	if code != exitOK || !strings.Contains(out, "No stale backups") {
		t.Fatalf("code = %d, out = %q", code, out)
	}
	q, ok := f.queries[0].(get_stale_backups.GetStaleBackupsQuery)
	if !ok || q.Threshold.Hours() != 48 {
		t.Errorf("query = %#v", f.queries[0])
	}
}

func sel(unit string) args.Selection { return args.Selection{Unit: unit} }

func dbItem(name string) args.Items { return args.Items{Database: name} }

func TestInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	f := &fakeRunner{}

	if code, _ := execute(t, f, "init", "--config", path); code != exitOK {
		t.Fatalf("init exit code = %d", code)
	}
	if _, err := config.LoadConfig(path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if code, _ := execute(t, f, "init", "--config", path); code != exitFailed {
		t.Errorf("second init exit code = %d, want %d", code, exitFailed)
	}
	if len(f.commands) != 0 {
		t.Errorf("init dispatched %v", f.commands)
	}
}
