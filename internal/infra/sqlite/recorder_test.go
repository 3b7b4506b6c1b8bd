package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lifecycle-agent/internal/domain/model"
)

func openTest(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "log", "lifecycle.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAppends(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	fields := map[string]any{
		FieldOpID:   "op-1",
		FieldHost:   "web-1",
		FieldUnit:   "shop",
		FieldItem:   "orders",
		FieldStatus: model.StatusSuccess,
		FieldSize:   int64(1024),
		"engine":    "mariadb",
	}
	for i := 0; i < 2; i++ {
		if err := r.Record(ctx, TableBackups, fields); err != nil {
			t.Fatal(err)
		}
	}
	if n, err := r.Count(ctx, TableBackups); err != nil || n != 2 {
		t.Errorf("Count = %d, %v", n, err)
	}
	if err := r.Record(ctx, "users; DROP TABLE backups", fields); err == nil {
		t.Error("unknown table accepted")
	}
}

func TestStaleBackups(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	rows := []map[string]any{
		// fresh
		{FieldHost: "web-1", FieldUnit: "shop", FieldStatus: "success", FieldArtifact: "backup_shop_2026-10-18.tar.zst", FieldTimestamp: now.Add(-2 * time.Hour)},
		// stale: last good backup 10 days ago, newer run failed
		{FieldHost: "web-1", FieldUnit: "auth", FieldStatus: "success", FieldArtifact: "backup_auth_2026-10-08.tar.zst", FieldTimestamp: now.Add(-240 * time.Hour)},
		{FieldHost: "web-1", FieldUnit: "auth", FieldStatus: "failed", FieldArtifact: "FAILED_backup_auth_2026-10-17.tar.zst", FieldTimestamp: now.Add(-20 * time.Hour)},
		// never succeeded
		{FieldHost: "db-1", FieldUnit: "tsdb", FieldStatus: "failed", FieldArtifact: "FAILED_backup_metrics_2026-10-18.tar.zst", FieldTimestamp: now.Add(-1 * time.Hour)},
	}
	for _, f := range rows {
		if err := r.Record(ctx, TableBackups, f); err != nil {
			t.Fatal(err)
		}
	}

	stale, err := r.StaleBackups(ctx, 216*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 2 {
		t.Fatalf("stale = %+v", stale)
	}
	if stale[0].Unit != "tsdb" || !stale[0].LastBackup.IsZero() {
		t.Errorf("stale[0] = %+v", stale[0])
	}
	if stale[1].Unit != "auth" || stale[1].Artifact != "backup_auth_2026-10-08.tar.zst" || stale[1].Age != 240*time.Hour {
		t.Errorf("stale[1] = %+v", stale[1])
	}
}
