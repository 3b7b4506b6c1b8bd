// Package database implements the per-engine dump and restore adapters. Every
// engine command runs inside the engine container through an Executor, with
// credentials passed in the process environment only.
package database

import (
	"fmt"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/compress"
)

const defaultPollInterval = 2 * time.Second

// Options configures the adapters of a Registry.
type Options struct {
	// Compressor names the codec dumps are written with ("zstd" or "gzip").
	Compressor string
	// PollInterval is the WaitReady probe interval.
	PollInterval time.Duration
	// TempDir is the scratch directory inside engine containers.
	TempDir string
}

// Registry maps engine kinds to adapters.
type Registry struct {
	adapters map[model.EngineKind]repository.EngineAdapter
}

var _ repository.EngineRegistry = (*Registry)(nil)

// NewRegistry creates the adapters for every supported engine.
func NewRegistry(exec repository.Executor, opts Options) (*Registry, error) {
	codec, err := compress.ByName(opts.Compressor)
	if err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.TempDir == "" {
		opts.TempDir = "/tmp"
	}
	b := runner{exec: exec, codec: codec, poll: opts.PollInterval, tmp: opts.TempDir}
	return &Registry{adapters: map[model.EngineKind]repository.EngineAdapter{
		model.EngineMariaDB:  &MariaDB{runner: b},
		model.EnginePostgres: &Postgres{runner: b},
		model.EngineInflux:   NewInflux(b),
	}}, nil
}

// Adapter returns the adapter for kind.
func (r *Registry) Adapter(kind model.EngineKind) (repository.EngineAdapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedEngine, kind)
	}
	return a, nil
}
