package repository

import (
	"context"
	"time"

	"lifecycle-agent/internal/domain/model"
)

// SnapshotStore persists the single-generation snapshot of each unit.
type SnapshotStore interface {
	// Save replaces any previous snapshot of the unit.
	Save(ctx context.Context, unit model.Unit, rec model.SnapshotRecord) error
	// Load returns model.ErrSnapshotNotFound when the unit has none.
	Load(ctx context.Context, unit model.Unit) (model.SnapshotRecord, error)
}

// ArtifactStore is durable storage for backup artifacts. Keys are slash
// separated paths relative to the store root.
type ArtifactStore interface {
	Put(ctx context.Context, localPath, key string) (model.Artifact, error)
	Fetch(ctx context.Context, key, localPath string) error
	List(ctx context.Context, prefix string) ([]model.Artifact, error)
	Delete(ctx context.Context, key string) error
}

// Archiver captures and replaces the filesystem state of a unit.
type Archiver interface {
	// Archive writes the unit directory as a compressed tar stream to destPath.
	Archive(ctx context.Context, dir, destPath string) (int64, error)
	// Extract replaces dir with the content of the archive at sourcePath.
	Extract(ctx context.Context, sourcePath, dir string) error
	// Verify reads the archive completely and reports corruption.
	Verify(ctx context.Context, sourcePath string) error
	// Extension is the artifact extension, e.g. "tar.zst".
	Extension() string
}

// Recorder is the append-only structured operation log.
type Recorder interface {
	Record(ctx context.Context, table string, fields map[string]any) error
}

// BackupLog answers questions about recorded backups.
type BackupLog interface {
	// StaleBackups returns, per host and unit, the newest non-failed backup
	// when it is older than threshold.
	StaleBackups(ctx context.Context, threshold time.Duration) ([]model.StaleBackup, error)
}

// Notifier delivers one notification per operation. Implementations must not
// block the caller on an unreachable sink.
type Notifier interface {
	Notify(ctx context.Context, title string, status model.Status, fields map[string]string)
}

// Inventory resolves a scope into the concrete hosts and units it covers.
type Inventory interface {
	Resolve(ctx context.Context, scope model.Scope) ([]model.Host, error)
}

// CredentialSource resolves named credentials. Values are opaque.
type CredentialSource interface {
	Credentials(ctx context.Context, name string) (model.Credentials, error)
}

// DefinitionValidator checks a staged declarative definition.
type DefinitionValidator interface {
	Validate(ctx context.Context, unit model.Unit, stagedPath string) error
}
