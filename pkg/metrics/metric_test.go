package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	r := NewRecorder()
	r.ObserveItem("backup", "success", 2048)
	r.ObserveItem("backup", "failed", 0)
	r.ObserveItem("backup", "success", 1024)
	r.ObserveBatch("backup", "partial", 3*time.Second, time.Now())

	if got := testutil.ToFloat64(r.results.WithLabelValues("backup", "success")); got != 2 {
		t.Errorf("success results = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.artifactBytes); got != 3072 {
		t.Errorf("artifact bytes = %v, want 3072", got)
	}
	if got := testutil.ToFloat64(r.lastSuccess.WithLabelValues("backup")); got != 0 {
		t.Errorf("partial batch set last success to %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveBatch("restore", "success", time.Second, time.Unix(1700000000, 0))
	path := filepath.Join(t.TempDir(), "lifecycle.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `lifecycle_last_success_timestamp_seconds{op="restore"}`) {
		t.Errorf("textfile missing last success sample:\n%s", data)
	}
}
