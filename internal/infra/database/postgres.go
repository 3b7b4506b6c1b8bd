package database

import (
	"context"
	"fmt"
	"time"

	"lifecycle-agent/internal/domain/model"
)

// Postgres dumps with pg_dump in custom format, left uncompressed so the
// configured codec does the compression, and restores with pg_restore.
type Postgres struct {
	runner
}

func (p *Postgres) Kind() model.EngineKind { return model.EnginePostgres }

func (p *Postgres) Extension() string { return "dump" }

func (p *Postgres) env(h model.DatabaseHandle) []string {
	env := []string{}
	if pw := h.Credentials.Password.Reveal(); pw != "" {
		env = append(env, "PGPASSWORD="+pw)
	}
	return env
}

func (p *Postgres) user(h model.DatabaseHandle) string {
	if h.Credentials.User != "" {
		return h.Credentials.User
	}
	return "postgres"
}

func (p *Postgres) psql(h model.DatabaseHandle, db, query string) []string {
	return []string{"psql", "--username=" + p.user(h), "--dbname=" + db, "--no-psqlrc", "--tuples-only", "--no-align", "--command", query}
}

func (p *Postgres) Dump(ctx context.Context, h model.DatabaseHandle, dest string) model.DumpResult {
	if err := checkName(h.Database); err != nil {
		return model.DumpFailure(err)
	}
	cmd := []string{"pg_dump", "--username=" + p.user(h), "--format=custom", "--compress=0", "--dbname=" + h.Database}
	return p.dump(ctx, h, dest, cmd, p.env(h))
}

func (p *Postgres) exists(ctx context.Context, h model.DatabaseHandle, name string) (bool, error) {
	out, err := p.run(ctx, h.Container, p.psql(h, "postgres", fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = '%s'", name)), p.env(h))
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

func (p *Postgres) Restore(ctx context.Context, h model.DatabaseHandle, src, target string) model.RestoreResult {
	if target == "" {
		target = h.Database
	}
	if err := checkName(target); err != nil {
		return model.RestoreFailure(target, err)
	}
	ok, err := p.exists(ctx, h, target)
	if err != nil {
		return model.RestoreFailure(target, fmt.Errorf("failed to look up database %s: %w", target, err))
	}
	if !ok {
		create := []string{"createdb", "--username=" + p.user(h), target}
		if _, err := p.run(ctx, h.Container, create, p.env(h)); err != nil {
			return model.RestoreFailure(target, fmt.Errorf("failed to create database %s: %w", target, err))
		}
	}
	cmd := []string{"pg_restore", "--username=" + p.user(h), "--dbname=" + target, "--clean", "--if-exists", "--no-owner", "--exit-on-error"}
	return p.restore(ctx, h, src, target, cmd, p.env(h))
}

func (p *Postgres) Count(ctx context.Context, h model.DatabaseHandle) (int, error) {
	if err := checkName(h.Database); err != nil {
		return 0, err
	}
	query := "SELECT count(*) FROM information_schema.tables WHERE table_schema NOT IN ('pg_catalog', 'information_schema')"
	return p.count(ctx, h.Container, p.psql(h, h.Database, query), p.env(h))
}

func (p *Postgres) DropTemporary(ctx context.Context, h model.DatabaseHandle) error {
	if err := checkName(h.Database); err != nil {
		return err
	}
	drop := []string{"dropdb", "--username=" + p.user(h), "--if-exists", h.Database}
	if _, err := p.run(ctx, h.Container, drop, p.env(h)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", h.Database, err)
	}
	if _, err := p.run(ctx, h.Container, []string{"rm", "-rf", p.tempPath(p.Kind(), h.Database)}, nil); err != nil {
		return fmt.Errorf("failed to remove temp files of %s: %w", h.Database, err)
	}
	return nil
}

func (p *Postgres) WaitReady(ctx context.Context, h model.DatabaseHandle, timeout time.Duration) bool {
	probe := []string{"pg_isready", "--username=" + p.user(h)}
	if h.Database != "" {
		probe = append(probe, "--dbname="+h.Database)
	}
	return p.waitReady(ctx, h, timeout, func(ctx context.Context) bool {
		_, err := p.run(ctx, h.Container, probe, p.env(h))
		return err == nil
	})
}
