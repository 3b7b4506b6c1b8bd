package backup

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"lifecycle-agent/internal/application/apptest"
	"lifecycle-agent/internal/application/lifecycle"
	"lifecycle-agent/internal/application/plan"
	"lifecycle-agent/internal/application/report"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/infra/archive"
	"lifecycle-agent/internal/infra/sqlite"
	"lifecycle-agent/internal/infra/storage"
)

var runDate = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

type fixture struct {
	unit     model.Unit
	ctrl     *apptest.Controller
	engine   *apptest.Engine
	store    *storage.Local
	recorder *apptest.Recorder
	notifier *apptest.Notifier
	deps     Deps
	opts     Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "apps", "shop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "compose.yml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	unit := model.Unit{
		Name:       "shop",
		Kind:       model.UnitKindCompose,
		Dir:        dir,
		Containers: []model.ContainerRef{{Name: "shop-web"}, {Name: "shop-db"}},
		Databases: []model.DatabaseTarget{{
			Engine:         model.EngineMariaDB,
			Container:      "shop-db",
			Credentials:    "shop",
			Names:          []string{"a", "b", "c"},
			StopDependents: []string{"shop-web"},
		}},
	}
	f := &fixture{
		unit:     unit,
		ctrl:     apptest.NewController("shop-web", "shop-db"),
		engine:   apptest.NewEngine(model.EngineMariaDB, "a", "b", "c"),
		store:    storage.NewLocal(filepath.Join(root, "store")),
		recorder: apptest.NewRecorder(),
		notifier: &apptest.Notifier{},
	}
	archiver, err := archive.New("zstd")
	if err != nil {
		t.Fatal(err)
	}
	host := model.Host{Name: "h1", Units: []model.Unit{unit}}
	f.deps = Deps{
		Inventory: apptest.Inventory{Hosts: []model.Host{host}},
		Connector: apptest.Connector{"h1": &apptest.Runtime{
			Ctrl: f.ctrl,
			Img:  apptest.NewImages(),
			Engs: apptest.Engines{model.EngineMariaDB: f.engine},
		}},
		Credentials: apptest.Credentials{},
		Store:       f.store,
		Archiver:    archiver,
		Aggregator:  report.NewAggregator(report.Options{Recorder: f.recorder, Notifier: f.notifier}),
	}
	f.opts = Options{StagingDir: filepath.Join(root, "staging"), Keep: 3}
	return f
}

func (f *fixture) pipeline() *Pipeline {
	p := New(f.deps, f.opts)
	p.now = func() time.Time { return runDate }
	return p
}

func statuses(rep *model.BatchReport) []model.Status {
	out := make([]model.Status, 0, len(rep.Results))
	for _, r := range rep.Results {
		out = append(out, r.Status)
	}
	return out
}

func TestPartialDatabaseBatch(t *testing.T) {
	f := newFixture(t)
	f.engine.DumpFail["b"] = true

	rep, err := f.pipeline().Run(context.Background(), Request{
		Scope:  model.Scope{Unit: "shop"},
		Filter: plan.Filter{Databases: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []model.Status{model.StatusSuccess, model.StatusFailed, model.StatusSuccess}
	if got := statuses(rep); !reflect.DeepEqual(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if rep.Status() != model.StatusPartial {
		t.Errorf("batch status = %s, want partial", rep.Status())
	}
	if n := len(f.notifier.Sent()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if n := len(f.recorder.Table(sqlite.TableBackups)); n != 3 {
		t.Errorf("recorded rows = %d, want 3", n)
	}

	failed := rep.Results[1]
	if failed.Size != 0 || failed.Artifact != "FAILED_backup_shop.b_2026-10-18.sql.zst" {
		t.Errorf("failed result = %+v", failed)
	}
	ok := rep.Results[0]
	if ok.Size == 0 || ok.Artifact != "backup_shop.a_2026-10-18.sql.zst" {
		t.Errorf("successful result = %+v", ok)
	}
	if ok.Artifact == strings.TrimPrefix(failed.Artifact, model.FailedPrefix) {
		t.Error("failed and successful artifacts share a name")
	}

	artifacts, err := f.store.List(context.Background(), storage.Prefix("h1", "shop"))
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 2 {
		t.Errorf("stored artifacts = %d, want 2", len(artifacts))
	}
}

func TestRestartAfterEveryItem(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		want  []model.Status
	}{
		{
			name:  "success",
			setup: func(*fixture) {},
			want:  []model.Status{model.StatusSuccess, model.StatusSuccess, model.StatusSuccess},
		},
		{
			name:  "dump failure",
			setup: func(f *fixture) { f.engine.DumpFail["a"] = true },
			want:  []model.Status{model.StatusFailed, model.StatusSuccess, model.StatusSuccess},
		},
		{
			name:  "panic",
			setup: func(f *fixture) { f.engine.DumpPanic["b"] = true },
			want:  []model.Status{model.StatusSuccess, model.StatusFailed, model.StatusSuccess},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			rep, err := f.pipeline().Run(context.Background(), Request{
				Scope:  model.Scope{Unit: "shop"},
				Filter: plan.Filter{Databases: true},
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := statuses(rep); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("statuses = %v, want %v", got, tt.want)
			}
			if stops, starts := f.ctrl.Count("stop:shop-web"), f.ctrl.Count("start:shop-web"); stops != 3 || starts != 3 {
				t.Errorf("stops = %d, starts = %d, want 3 each", stops, starts)
			}
			if !f.ctrl.IsRunning("shop-web") {
				t.Error("shop-web left stopped")
			}
		})
	}
}

func TestFilesBackup(t *testing.T) {
	f := newFixture(t)

	rep, err := f.pipeline().Run(context.Background(), Request{
		Scope:  model.Scope{Unit: "shop"},
		Filter: plan.Filter{Files: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != 1 || rep.Results[0].Status != model.StatusSuccess {
		t.Fatalf("results = %+v", rep.Results)
	}
	if got := rep.Results[0].Artifact; got != "backup_shop_2026-10-18.tar.zst" {
		t.Errorf("artifact = %s", got)
	}
	want := []string{"stop:shop-web,shop-db", "start:shop-web,shop-db"}
	if got := f.ctrl.CallLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("controller calls = %v, want %v", got, want)
	}
}

func TestHeldUnitIsNotStopped(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.unit.Dir, lifecycle.HoldFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := f.pipeline().Run(context.Background(), Request{Scope: model.Scope{Unit: "shop"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Status() != model.StatusSuccess {
		t.Errorf("batch status = %s", rep.Status())
	}
	if n := f.ctrl.Count("stop:") + f.ctrl.Count("start"); n != 0 {
		t.Errorf("held unit saw %d stop/start calls: %v", n, f.ctrl.CallLog())
	}
}

func TestDryRunHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	rep, err := f.pipeline().Run(context.Background(), Request{Scope: model.Scope{Unit: "shop"}, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != 4 || rep.Status() != model.StatusPlanned {
		t.Errorf("results = %+v", rep.Results)
	}
	if calls := f.ctrl.CallLog(); len(calls) != 0 {
		t.Errorf("controller calls = %v", calls)
	}
	if calls := f.engine.CallLog(); len(calls) != 0 {
		t.Errorf("engine calls = %v", calls)
	}
	artifacts, _ := f.store.List(context.Background(), "")
	if len(artifacts) != 0 {
		t.Errorf("stored artifacts = %v", artifacts)
	}
}

func TestRetention(t *testing.T) {
	f := newFixture(t)
	f.opts.Keep = 1
	ctx := context.Background()

	old := filepath.Join(t.TempDir(), "old")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Put(ctx, old, storage.Key("h1", "shop", "backup_shop.a_2026-10-01.sql.zst")); err != nil {
		t.Fatal(err)
	}

	if _, err := f.pipeline().Run(ctx, Request{Scope: model.Scope{Unit: "shop"}, Filter: plan.Filter{Database: "a"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	artifacts, err := f.store.List(ctx, storage.Prefix("h1", "shop"))
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 || artifacts[0].Name != "backup_shop.a_2026-10-18.sql.zst" {
		t.Errorf("artifacts after retention = %+v", artifacts)
	}
}

func TestVerifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.pipeline().Run(ctx, Request{Scope: model.Scope{Unit: "shop"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rep, err := NewVerifier(f.deps, f.opts).Run(ctx, VerifyRequest{Scope: model.Scope{Unit: "shop"}, Deep: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Status() != model.StatusSuccess || len(rep.Results) != 4 {
		t.Fatalf("verify results = %+v", rep.Results)
	}
	calls := f.engine.CallLog()
	for _, want := range []string{"restore:a->a_verify", "count:a_verify", "drop:a_verify"} {
		found := false
		for _, c := range calls {
			found = found || c == want
		}
		if !found {
			t.Errorf("engine calls %v miss %q", calls, want)
		}
	}
	if got := f.engine.Dataset("a_verify"); got != "" {
		t.Errorf("temporary dataset left behind: %q", got)
	}
	if n := len(f.recorder.Table(sqlite.TableVerifies)); n != 4 {
		t.Errorf("recorded verify rows = %d, want 4", n)
	}
}

func TestVerifierDetectsCorruption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(bad, []byte("not zstd at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Put(ctx, bad, storage.Key("h1", "shop", "backup_shop.a_2026-10-17.sql.zst")); err != nil {
		t.Fatal(err)
	}

	rep, err := NewVerifier(f.deps, f.opts).Run(ctx, VerifyRequest{
		Scope:  model.Scope{Unit: "shop"},
		Filter: plan.Filter{Database: "a"},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(rep.Results) != 1 || rep.Results[0].Status != model.StatusFailed {
		t.Errorf("results = %+v", rep.Results)
	}
}

func TestDeepVerifyWithoutRuntimeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.pipeline().Run(ctx, Request{Scope: model.Scope{Unit: "shop"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	before := len(f.engine.CallLog())
	deps := f.deps
	deps.Connector = apptest.Connector{}
	rep, err := NewVerifier(deps, f.opts).Run(ctx, VerifyRequest{Scope: model.Scope{Unit: "shop"}, Deep: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, r := range rep.Results {
		want := model.StatusFailed
		if r.ID == "shop" {
			want = model.StatusSuccess
		}
		if r.Status != want {
			t.Errorf("%s: status = %s (%s), want %s", r.ID, r.Status, r.Detail, want)
		}
	}
	if rep.Status() != model.StatusPartial {
		t.Errorf("batch status = %s, want partial", rep.Status())
	}
	if calls := f.engine.CallLog(); len(calls) != before {
		t.Errorf("engine used without a runtime: %v", calls[before:])
	}
}
