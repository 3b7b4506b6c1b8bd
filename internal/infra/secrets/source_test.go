package secrets

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCredentialsFromFileAndEnv(t *testing.T) {
	path := writeSecrets(t, "shop-db:\n  user: backup\n  password: from-file\nmetrics:\n  token: t-1\n  org: ops\n")
	env := map[string]string{"LIFECYCLE_SHOP_DB_PASSWORD": "from-env"}
	s := NewSource(path)
	s.lookupEnv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	creds, err := s.Credentials(context.Background(), "shop-db")
	if err != nil {
		t.Fatal(err)
	}
	if creds.User != "backup" || creds.Password.Reveal() != "from-env" {
		t.Errorf("creds = %+v", creds)
	}

	tok, err := s.Token(context.Background(), "metrics")
	if err != nil || tok.Reveal() != "t-1" {
		t.Errorf("Token = %v, %v", tok.Reveal(), err)
	}
}

func TestEnvOnlyAndMissing(t *testing.T) {
	s := NewSource(filepath.Join(t.TempDir(), "absent.yml"))
	s.lookupEnv = func(k string) (string, bool) {
		if k == "LIFECYCLE_API_TOKEN" {
			return "abc", true
		}
		return "", false
	}
	if tok, err := s.Token(context.Background(), "api"); err != nil || tok.Reveal() != "abc" {
		t.Errorf("Token = %q, %v", tok.Reveal(), err)
	}
	if _, err := s.Credentials(context.Background(), "nope"); err == nil {
		t.Error("unknown credential resolved")
	}
	if c, err := s.Credentials(context.Background(), ""); err != nil || c.User != "" {
		t.Errorf("empty name = %+v, %v", c, err)
	}
}

func TestMalformedFile(t *testing.T) {
	s := NewSource(writeSecrets(t, "shop-db:\n  passwd: typo\n"))
	if _, err := s.Credentials(context.Background(), "shop-db"); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestValuesNeverLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	v := Value("hunter2")
	logger.Info("resolved", "password", v)
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked into log: %s", buf.String())
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("shop-db.primary", "PASSWORD"); got != "LIFECYCLE_SHOP_DB_PRIMARY_PASSWORD" {
		t.Errorf("EnvName = %s", got)
	}
}
