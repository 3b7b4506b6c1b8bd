// Package sqlite implements the append-only operation log on a local SQLite
// database (pure Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// Tables of the operation log, one per operation kind.
const (
	TableBackups   = "backups"
	TableRestores  = "restores"
	TableUpdates   = "updates"
	TableRollbacks = "rollbacks"
	TableVerifies  = "verifies"
)

var tables = []string{TableBackups, TableRestores, TableUpdates, TableRollbacks, TableVerifies}

// Column names accepted in Record fields. Other fields are kept as JSON in
// the extra column.
const (
	FieldOpID      = "op_id"
	FieldTimestamp = "timestamp"
	FieldHost      = "host"
	FieldUnit      = "unit"
	FieldItem      = "item"
	FieldStatus    = "status"
	FieldSize      = "size"
	FieldArtifact  = "artifact"
	FieldDetail    = "detail"
)

const schema = `CREATE TABLE IF NOT EXISTS %s (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	op_id     TEXT NOT NULL DEFAULT '',
	ts        INTEGER NOT NULL,
	host      TEXT NOT NULL DEFAULT '',
	unit      TEXT NOT NULL DEFAULT '',
	item      TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL DEFAULT '',
	size      INTEGER NOT NULL DEFAULT 0,
	artifact  TEXT NOT NULL DEFAULT '',
	detail    TEXT NOT NULL DEFAULT '',
	extra     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS %s_host_unit ON %s (host, unit, ts);`

// Recorder is the SQLite-backed repository.Recorder and repository.BackupLog.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ repository.Recorder  = (*Recorder)(nil)
	_ repository.BackupLog = (*Recorder)(nil)
)

// Open opens or creates the log database at path.
func Open(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	for _, t := range tables {
		if _, err := db.Exec(fmt.Sprintf(schema, t, t, t)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return &Recorder{db: db, now: time.Now}, nil
}

func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func knownTable(table string) bool {
	for _, t := range tables {
		if t == table {
			return true
		}
	}
	return false
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

func intField(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Record appends one row to table.
func (r *Recorder) Record(ctx context.Context, table string, fields map[string]any) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown log table %q", table)
	}
	ts := r.now()
	if t, ok := fields[FieldTimestamp].(time.Time); ok && !t.IsZero() {
		ts = t
	}

	extra := make(map[string]any)
	for k, v := range fields {
		switch k {
		case FieldOpID, FieldTimestamp, FieldHost, FieldUnit, FieldItem, FieldStatus, FieldSize, FieldArtifact, FieldDetail:
		default:
			extra[k] = v
		}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encode extra fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (op_id, ts, host, unit, item, status, size, artifact, detail, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table),
		stringField(fields, FieldOpID),
		ts.UnixMilli(),
		stringField(fields, FieldHost),
		stringField(fields, FieldUnit),
		stringField(fields, FieldItem),
		stringField(fields, FieldStatus),
		intField(fields, FieldSize),
		stringField(fields, FieldArtifact),
		stringField(fields, FieldDetail),
		string(extraJSON),
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// StaleBackups returns, per host and unit seen in the backup log, the newest
// successful backup when it is older than threshold. Units whose backups all
// failed are reported with a zero LastBackup.
func (r *Recorder) StaleBackups(ctx context.Context, threshold time.Duration) ([]model.StaleBackup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT host, unit, artifact, ts, status FROM backups
		ORDER BY host, unit, ts`)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	type key struct{ host, unit string }
	latest := make(map[key]model.StaleBackup)
	for rows.Next() {
		var host, unit, artifact, status string
		var ts int64
		if err := rows.Scan(&host, &unit, &artifact, &ts, &status); err != nil {
			return nil, fmt.Errorf("scan backups: %w", err)
		}
		k := key{host, unit}
		entry, seen := latest[k]
		if !seen {
			entry = model.StaleBackup{Host: host, Unit: unit}
		}
		failed := model.Status(status) == model.StatusFailed || strings.HasPrefix(artifact, model.FailedPrefix)
		if !failed {
			entry.Artifact = artifact
			entry.LastBackup = time.UnixMilli(ts)
		}
		latest[k] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read backups: %w", err)
	}

	now := r.now()
	var stale []model.StaleBackup
	for _, entry := range latest {
		if !entry.LastBackup.IsZero() {
			entry.Age = now.Sub(entry.LastBackup)
			if entry.Age <= threshold {
				continue
			}
		}
		stale = append(stale, entry)
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Host != stale[j].Host {
			return stale[i].Host < stale[j].Host
		}
		return stale[i].Unit < stale[j].Unit
	})
	return stale, nil
}

// Count returns the number of rows in table. Used by reports and tests.
func (r *Recorder) Count(ctx context.Context, table string) (int, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("unknown log table %q", table)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
