package database

import (
	"context"
	"fmt"
	"time"

	"lifecycle-agent/internal/domain/model"
)

// MariaDB dumps with mariadb-dump (mysqldump on older images) as plain SQL.
// The dump carries no CREATE DATABASE or USE statements so it can be loaded
// into any target name.
type MariaDB struct {
	runner
}

func (m *MariaDB) Kind() model.EngineKind { return model.EngineMariaDB }

func (m *MariaDB) Extension() string { return "sql" }

func (m *MariaDB) env(h model.DatabaseHandle) []string {
	env := []string{}
	if pw := h.Credentials.Password.Reveal(); pw != "" {
		env = append(env, "MYSQL_PWD="+pw)
	}
	return env
}

func (m *MariaDB) user(h model.DatabaseHandle) string {
	if h.Credentials.User != "" {
		return h.Credentials.User
	}
	return "root"
}

func (m *MariaDB) client(h model.DatabaseHandle, args ...string) []string {
	return fallback("mariadb", "mysql", append([]string{"--user=" + m.user(h)}, args...)...)
}

func (m *MariaDB) Dump(ctx context.Context, h model.DatabaseHandle, dest string) model.DumpResult {
	if err := checkName(h.Database); err != nil {
		return model.DumpFailure(err)
	}
	cmd := fallback("mariadb-dump", "mysqldump",
		"--user="+m.user(h),
		"--single-transaction",
		"--routines",
		"--triggers",
		"--events",
		h.Database,
	)
	return m.dump(ctx, h, dest, cmd, m.env(h))
}

func (m *MariaDB) Restore(ctx context.Context, h model.DatabaseHandle, src, target string) model.RestoreResult {
	if target == "" {
		target = h.Database
	}
	if err := checkName(target); err != nil {
		return model.RestoreFailure(target, err)
	}
	create := m.client(h, "--execute", fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", target))
	if _, err := m.run(ctx, h.Container, create, m.env(h)); err != nil {
		return model.RestoreFailure(target, fmt.Errorf("failed to create database %s: %w", target, err))
	}
	return m.restore(ctx, h, src, target, m.client(h, target), m.env(h))
}

func (m *MariaDB) Count(ctx context.Context, h model.DatabaseHandle) (int, error) {
	if err := checkName(h.Database); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = '%s'", h.Database)
	return m.count(ctx, h.Container, m.client(h, "--batch", "--skip-column-names", "--execute", query), m.env(h))
}

func (m *MariaDB) DropTemporary(ctx context.Context, h model.DatabaseHandle) error {
	if err := checkName(h.Database); err != nil {
		return err
	}
	drop := m.client(h, "--execute", fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", h.Database))
	if _, err := m.run(ctx, h.Container, drop, m.env(h)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", h.Database, err)
	}
	if _, err := m.run(ctx, h.Container, []string{"rm", "-rf", m.tempPath(m.Kind(), h.Database)}, nil); err != nil {
		return fmt.Errorf("failed to remove temp files of %s: %w", h.Database, err)
	}
	return nil
}

func (m *MariaDB) WaitReady(ctx context.Context, h model.DatabaseHandle, timeout time.Duration) bool {
	ping := fallback("mariadb-admin", "mysqladmin", "--user="+m.user(h), "ping")
	return m.waitReady(ctx, h, timeout, func(ctx context.Context) bool {
		_, err := m.run(ctx, h.Container, ping, m.env(h))
		return err == nil
	})
}
