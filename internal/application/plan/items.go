// Package plan enumerates the items an operation covers on a unit. Items are
// fixed before any work starts so every one of them gets a result.
package plan

import (
	"context"
	"fmt"
	"path/filepath"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// KindFiles is the item kind of a unit's filesystem state.
const KindFiles = "files"

// Item is one unit of work: the directory of a unit or one database.
type Item struct {
	// ID is the identifier embedded in artifact names. It is unique within
	// the unit.
	ID       string
	Kind     string
	Host     string
	Unit     model.Unit
	Database *model.DatabaseTarget
	// Name is the database name for database items.
	Name string
}

// Filter narrows the items of a unit. The zero value selects everything.
type Filter struct {
	Files     bool
	Databases bool
	// Database keeps only the database with this name.
	Database string
}

func (f Filter) wantFiles() bool {
	return f.Database == "" && (f.Files || !f.Databases)
}

func (f Filter) wantDatabases() bool {
	return f.Database != "" || f.Databases || !f.Files
}

// Order tells Enumerate which item kind comes first.
type Order int

const (
	// DatabasesFirst captures databases while the unit still runs, then its files.
	DatabasesFirst Order = iota
	// FilesFirst puts files back before the databases that live on top of them.
	FilesFirst
)

// Enumerate returns the items of unit on host. Files are only covered on
// hosts whose filesystem is local to this process.
func Enumerate(host model.Host, unit model.Unit, f Filter, order Order) []Item {
	if unit.Host == "" {
		unit.Host = host.Name
	}
	var files, dbs []Item
	if f.wantFiles() && unit.Dir != "" && host.IsLocal() {
		files = append(files, Item{
			ID:   model.Identifier(unit.Name),
			Kind: KindFiles,
			Host: host.Name,
			Unit: unit,
		})
	}
	if f.wantDatabases() {
		seen := make(map[string]bool)
		for i := range unit.Databases {
			db := &unit.Databases[i]
			for _, name := range db.Names {
				if f.Database != "" && name != f.Database {
					continue
				}
				id := model.Identifier(unit.Name, name)
				if seen[id] {
					id = model.Identifier(unit.Name, db.Container, name)
				}
				seen[id] = true
				dbs = append(dbs, Item{
					ID:       id,
					Kind:     string(db.Engine),
					Host:     host.Name,
					Unit:     unit,
					Database: db,
					Name:     name,
				})
			}
		}
	}
	if order == FilesFirst {
		return append(files, dbs...)
	}
	return append(dbs, files...)
}

// IsFiles reports whether the item is a unit directory.
func (it Item) IsFiles() bool { return it.Kind == KindFiles }

// Result returns the result skeleton of the item.
func (it Item) Result() model.OperationResult {
	return model.OperationResult{
		ID:      it.ID,
		Unit:    it.Unit.Name,
		Host:    it.Host,
		Subtype: it.Kind,
	}
}

// Fail fills r as failed before any artifact existed.
func Fail(r model.OperationResult, err error) model.OperationResult {
	r.Status = model.StatusFailed
	r.Size = 0
	r.Detail = err.Error()
	return r
}

// StopTarget returns the containers to stop while the item is captured or
// replaced: the whole unit for files, the declared dependents for a
// database. An empty target means nothing needs stopping.
func (it Item) StopTarget() model.Target {
	if it.IsFiles() {
		return model.Target{Unit: it.Unit}
	}
	refs := make([]model.ContainerRef, 0, len(it.Database.StopDependents))
	for _, name := range it.Database.StopDependents {
		ref := model.ContainerRef{Name: name}
		for _, c := range it.Unit.Containers {
			if c.Name == name {
				ref = c
			}
		}
		refs = append(refs, ref)
	}
	return model.Target{Unit: it.Unit, Containers: refs}
}

// Handle resolves the database handle of a database item.
func (it Item) Handle(ctx context.Context, creds repository.CredentialSource) (model.DatabaseHandle, error) {
	if it.Database == nil {
		return model.DatabaseHandle{}, fmt.Errorf("item %s is not a database", it.ID)
	}
	c, err := creds.Credentials(ctx, it.Database.Credentials)
	if err != nil {
		return model.DatabaseHandle{}, fmt.Errorf("credentials %q: %w", it.Database.Credentials, err)
	}
	return model.DatabaseHandle{
		Engine:      it.Database.Engine,
		Container:   it.Database.Container,
		Endpoint:    it.Database.Endpoint,
		Database:    it.Name,
		Credentials: c,
	}, nil
}

// Extension returns the artifact extension of the item.
func (it Item) Extension(archiver repository.Archiver, engines repository.EngineRegistry, compressorExt string) (string, error) {
	if it.IsFiles() {
		return archiver.Extension(), nil
	}
	adapter, err := engines.Adapter(it.Database.Engine)
	if err != nil {
		return "", err
	}
	return adapter.Extension() + "." + compressorExt, nil
}

// StagingPath is the local scratch file of an artifact. It depends only on
// the host and the artifact name, so items never share scratch files.
func StagingPath(stagingDir, host, artifact string) string {
	return filepath.Join(stagingDir, model.Identifier(host), artifact)
}

// TargetsEmpty reports whether target selects no container.
func TargetsEmpty(target model.Target) bool {
	return target.Containers != nil && len(target.Containers) == 0
}
