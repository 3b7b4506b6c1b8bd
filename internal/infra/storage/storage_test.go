package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/domain/model"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLocalPutFetchListDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())
	staging := t.TempDir()

	src := writeTemp(t, staging, "dump", "payload")
	key := Key("web-1", "shop", "backup_orders_2026-10-18.sql.zst")
	a, err := store.Put(ctx, src, key)
	if err != nil {
		t.Fatal(err)
	}
	if a.Size != 7 || a.Name != "backup_orders_2026-10-18.sql.zst" || a.Location != key {
		t.Errorf("Put = %+v", a)
	}

	dst := filepath.Join(staging, "fetched", "dump")
	if err := store.Fetch(ctx, key, dst); err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "payload" {
		t.Errorf("fetched %q", got)
	}

	list, err := store.List(ctx, Prefix("web-1", "shop"))
	if err != nil || len(list) != 1 || list[0].Location != key {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if list, _ := store.List(ctx, Prefix("web-2", "shop")); len(list) != 0 {
		t.Errorf("List of empty prefix = %+v", list)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := store.Fetch(ctx, key, dst); !errors.Is(err, model.ErrArtifactNotFound) {
		t.Errorf("Fetch after delete = %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store := NewLocal(t.TempDir())
	src := writeTemp(t, t.TempDir(), "x", "x")
	for _, key := range []string{"../etc/passwd", "/abs", "a/../../b", ""} {
		if _, err := store.Put(context.Background(), src, key); err == nil {
			t.Errorf("Put(%q) accepted", key)
		}
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())
	staging := t.TempDir()
	src := writeTemp(t, staging, "a", "x")

	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	var keys []string
	for i := 0; i < 5; i++ {
		keys = append(keys, Key("h", "shop", model.ArtifactName("orders", day.AddDate(0, 0, i), "sql.zst")))
	}
	keys = append(keys,
		Key("h", "shop", model.FailedArtifactName("orders", day.AddDate(0, 0, 5), "sql.zst")),
		Key("h", "shop", model.ArtifactName("customers", day, "sql.zst")),
	)
	for _, k := range keys {
		if _, err := store.Put(ctx, src, k); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := Prune(ctx, store, Prefix("h", "shop"), "orders", 2)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(deleted)
	want := []string{keys[0], keys[1], keys[2]}
	if len(deleted) != 3 || deleted[0] != want[0] || deleted[1] != want[1] || deleted[2] != want[2] {
		t.Errorf("deleted = %v, want %v", deleted, want)
	}
	left, _ := store.List(ctx, Prefix("h", "shop"))
	if len(left) != 4 {
		t.Errorf("left %d artifacts, want 4 (2 orders, 1 failed marker, 1 customers)", len(left))
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.Path = t.TempDir()
	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*Local); !ok {
		t.Errorf("store = %T", store)
	}

	cfg.Storage.Backend = config.StorageSFTP
	cfg.Storage.SFTP.KeyFile = filepath.Join(t.TempDir(), "missing")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("sftp backend without a key accepted")
	}
}
