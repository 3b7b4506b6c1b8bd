package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRoundTripAndVerify(t *testing.T) {
	payload := strings.Repeat("INSERT INTO t VALUES (1);\n", 500)
	for _, name := range []string{Zstd, Gzip} {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name)
			if err != nil {
				t.Fatal(err)
			}
			var buf bytes.Buffer
			w, err := c.NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := io.WriteString(w, payload); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			n, err := c.Verify(bytes.NewReader(buf.Bytes()))
			if err != nil || n != int64(len(payload)) {
				t.Fatalf("Verify = %d, %v", n, err)
			}

			truncated := buf.Bytes()[:buf.Len()/2]
			if _, err := c.Verify(bytes.NewReader(truncated)); err == nil {
				t.Error("truncated stream verified")
			}
		})
	}
}

func TestSelection(t *testing.T) {
	if c, _ := ByName(""); c.Extension() != "zst" {
		t.Errorf("default codec = %s", c.Name())
	}
	if _, err := ByName("lz4"); err == nil {
		t.Error("unknown codec accepted")
	}
	if c, ok := ForPath("/b/backup_shop_2026-01-02.sql.gz"); !ok || c.Name() != Gzip {
		t.Errorf("ForPath = %v, %v", c, ok)
	}
	if _, ok := ForPath("backup.tar"); ok {
		t.Error("uncompressed path matched a codec")
	}
}
