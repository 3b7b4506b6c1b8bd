package model

import (
	"fmt"
	"log/slog"
)

// EngineKind names a supported database engine.
type EngineKind string

const (
	EngineMariaDB  EngineKind = "mariadb"
	EnginePostgres EngineKind = "postgres"
	EngineInflux   EngineKind = "influxdb"
)

// ParseEngineKind accepts the engine names used in inventories.
func ParseEngineKind(s string) (EngineKind, error) {
	switch s {
	case "mariadb", "mysql":
		return EngineMariaDB, nil
	case "postgres", "postgresql":
		return EnginePostgres, nil
	case "influxdb", "influx":
		return EngineInflux, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
}

// Secret is an opaque credential value. It never prints its content.
type Secret string

func (s Secret) String() string { return "[REDACTED]" }

// LogValue keeps secrets out of structured logs.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// Reveal returns the raw value for handing to a process environment.
func (s Secret) Reveal() string { return string(s) }

// Credentials are resolved connection secrets for one engine instance. They
// are passed to engine commands through the process environment only.
type Credentials struct {
	User     string
	Password Secret
	Token    Secret
	Org      string
}

// DatabaseHandle is the runtime binding used for one dump or restore call.
// It is constructed per call and never persisted.
type DatabaseHandle struct {
	Engine      EngineKind
	Container   string
	Endpoint    string
	Database    string
	Credentials Credentials
}

func (h DatabaseHandle) String() string {
	return fmt.Sprintf("%s:%s/%s", h.Engine, h.Container, h.Database)
}

// DumpResult reports a dump call. ExitCode is the engine command exit status.
type DumpResult struct {
	ExitCode     int
	BytesWritten int64
	Stderr       string
	// Err is the cause when the command could not run at all; ExitCode is
	// then -1.
	Err error
}

// OK reports whether the dump command succeeded.
func (r DumpResult) OK() bool { return r.ExitCode == 0 }

// RestoreResult reports a restore call.
type RestoreResult struct {
	ExitCode int
	Target   string
	Stderr   string
	Err      error
}

// OK reports whether the restore command succeeded.
func (r RestoreResult) OK() bool { return r.ExitCode == 0 }

// DumpFailure builds the result of a dump that could not be executed.
func DumpFailure(err error) DumpResult {
	return DumpResult{ExitCode: -1, Err: err}
}

// RestoreFailure builds the result of a restore that could not be executed.
func RestoreFailure(target string, err error) RestoreResult {
	return RestoreResult{ExitCode: -1, Target: target, Err: err}
}

// Describe returns a short human description of a failed dump.
func (r DumpResult) Describe() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Stderr != "" {
		return fmt.Sprintf("exit code %d: %s", r.ExitCode, r.Stderr)
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// Describe returns a short human description of a failed restore.
func (r RestoreResult) Describe() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Stderr != "" {
		return fmt.Sprintf("exit code %d: %s", r.ExitCode, r.Stderr)
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}
