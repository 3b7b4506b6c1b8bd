package repository

import (
	"context"
	"io"
	"time"

	"lifecycle-agent/internal/domain/model"
)

// Controller stops and starts workloads through one control mechanism. The
// result shape is the same whatever the mechanism.
type Controller interface {
	// Mode returns the control mechanism this controller drives.
	Mode() model.ControlMode

	// Stop stops the running members of target when guard allows it.
	// Per-container failures are collected in the result, not returned.
	Stop(ctx context.Context, target model.Target, guard model.Guard) (model.StopResult, error)

	// Start starts the members of target when guard allows it. Callers pass
	// the guard the matching Stop ran under.
	Start(ctx context.Context, target model.Target, guard model.Guard) (model.StartResult, error)

	// Recreate replaces the members of target with fresh containers created
	// from their currently tagged image, without pulling.
	Recreate(ctx context.Context, target model.Target) error

	// Running reports which members of target are currently running.
	Running(ctx context.Context, target model.Target) ([]model.ContainerRef, error)
}

// ImageRepository reads and manipulates the local image cache.
type ImageRepository interface {
	// Describe returns the image state of a running or stopped container.
	Describe(ctx context.Context, container model.ContainerRef) (model.ImageSnapshot, error)

	// Present reports whether an image with the given ID is in the local cache.
	Present(ctx context.Context, imageID string) (bool, error)

	// Tag points reference at a locally cached image.
	Tag(ctx context.Context, imageID, reference string) error

	// Pull fetches reference from its registry.
	Pull(ctx context.Context, reference string) error
}

// ExecRequest is a command to run inside a container.
type ExecRequest struct {
	Cmd    []string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs commands inside containers.
type Executor interface {
	// Exec runs req in container and returns the command exit code. An error
	// is returned only when the command could not be run.
	Exec(ctx context.Context, container string, req ExecRequest) (int, error)
}

// EngineAdapter is the per-engine dump/restore contract. Dump and Restore
// report failures in their result and never return an error.
type EngineAdapter interface {
	Kind() model.EngineKind

	// Extension is the artifact extension of a dump, without compressor suffix.
	Extension() string

	Dump(ctx context.Context, h model.DatabaseHandle, destPath string) model.DumpResult
	Restore(ctx context.Context, h model.DatabaseHandle, sourcePath, targetName string) model.RestoreResult

	// Count returns the number of tables or measurements in h.Database.
	Count(ctx context.Context, h model.DatabaseHandle) (int, error)

	// DropTemporary removes the verification dataset h.Database and any temp
	// files left on the engine host.
	DropTemporary(ctx context.Context, h model.DatabaseHandle) error

	// WaitReady polls until the engine accepts connections or timeout elapses.
	WaitReady(ctx context.Context, h model.DatabaseHandle, timeout time.Duration) bool
}

// EngineRegistry maps an engine kind to its adapter.
type EngineRegistry interface {
	Adapter(kind model.EngineKind) (EngineAdapter, error)
}

// Runtime bundles the container-facing collaborators of one host.
type Runtime interface {
	// Controller returns the controller for unit, using the control mode
	// configured for the host or derived from its capabilities.
	Controller(unit model.Unit) (Controller, error)
	Images() ImageRepository
	Engines() EngineRegistry
	Close() error
}

// Connector opens the runtime of a host.
type Connector interface {
	Connect(ctx context.Context, host model.Host) (Runtime, error)
}
