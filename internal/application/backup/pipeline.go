// Package backup captures unit directories and databases into artifacts and
// moves them to durable storage.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lifecycle-agent/internal/application/fleet"
	"lifecycle-agent/internal/application/lifecycle"
	"lifecycle-agent/internal/application/plan"
	"lifecycle-agent/internal/application/report"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/infra/storage"
	"lifecycle-agent/pkg/log"
)

// Deps are the collaborators of the pipeline.
type Deps struct {
	Inventory   repository.Inventory
	Connector   repository.Connector
	Credentials repository.CredentialSource
	Store       repository.ArtifactStore
	Archiver    repository.Archiver
	Aggregator  *report.Aggregator
}

// Options tune the pipeline.
type Options struct {
	StagingDir string
	// CompressorExt is the extension the engine adapters compress dumps with.
	CompressorExt  string
	Keep           int
	Parallelism    int
	RecoverTimeout time.Duration
	// VerifyAfter checks every artifact before it is transferred.
	VerifyAfter bool
}

// Request selects what to back up.
type Request struct {
	Scope  model.Scope
	Filter plan.Filter
	DryRun bool
}

// Pipeline runs backups.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a backup pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.CompressorExt == "" {
		opts.CompressorExt = "zst"
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Run backs up every item in scope and returns the batch report. Item
// failures are reported in the batch; the error is only set when the batch
// could not run at all.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.BatchReport, error) {
	batch := p.deps.Aggregator.Begin(model.OpBackup, req.Scope, req.DryRun)
	hosts, err := p.deps.Inventory.Resolve(ctx, req.Scope)
	if err != nil {
		err = fmt.Errorf("resolve %s: %w", req.Scope, err)
		return batch.Finish(ctx, err), err
	}

	err = fleet.ForEachHost(ctx, hosts, p.opts.Parallelism, func(ctx context.Context, host model.Host) error {
		p.runHost(ctx, host, req, batch)
		return nil
	})
	return batch.Finish(ctx, err), err
}

func (p *Pipeline) runHost(ctx context.Context, host model.Host, req Request, batch *report.Batch) {
	var items [][]plan.Item
	for _, unit := range host.Units {
		items = append(items, plan.Enumerate(host, unit, req.Filter, plan.DatabasesFirst))
	}

	rt, err := p.deps.Connector.Connect(ctx, host)
	if err != nil {
		log.Error("[Backup] Failed to connect to host", "host", host.Name, "error", err)
		for _, unitItems := range items {
			for _, it := range unitItems {
				batch.Add(plan.Fail(it.Result(), fmt.Errorf("connect %s: %w", host.Name, err)))
			}
		}
		return
	}
	defer rt.Close()

	for _, unitItems := range items {
		if len(unitItems) == 0 {
			continue
		}
		p.runUnit(ctx, rt, unitItems, req, batch)
	}
}

func (p *Pipeline) runUnit(ctx context.Context, rt repository.Runtime, items []plan.Item, req Request, batch *report.Batch) {
	unit := items[0].Unit
	ctrl, err := rt.Controller(unit)
	var guard model.Guard
	if err == nil {
		guard, err = lifecycle.ComputeGuard(ctx, ctrl, model.Target{Unit: unit})
	}
	if err != nil {
		for _, it := range items {
			batch.Add(plan.Fail(it.Result(), err))
		}
		return
	}
	log.Debug("[Backup] Unit guard", "unit", unit.Name, "allow", guard.Allow, "reason", guard.Reason)

	for _, it := range items {
		batch.Add(p.runItem(ctx, rt, ctrl, guard, it, req))
	}
}

// runItem produces exactly one result for it. Dependents stopped for the
// capture are restarted before the artifact is transferred.
func (p *Pipeline) runItem(ctx context.Context, rt repository.Runtime, ctrl repository.Controller, guard model.Guard, it plan.Item, req Request) (res model.OperationResult) {
	res = it.Result()
	date := p.now().UTC()
	ext, err := it.Extension(p.deps.Archiver, rt.Engines(), p.opts.CompressorExt)
	if err != nil {
		res = plan.Fail(res, err)
		res.Artifact = model.FailedArtifactName(it.ID, date, "unknown")
		return res
	}
	name := model.ArtifactName(it.ID, date, ext)

	defer func() {
		if r := recover(); r != nil {
			log.Error("[Backup] Recovered from panic", "item", it.ID, "panic", r)
			res = plan.Fail(res, fmt.Errorf("unexpected failure: %v", r))
			res.Artifact = model.FailedArtifactName(it.ID, date, ext)
		}
	}()

	if req.DryRun {
		res.Status = model.StatusPlanned
		res.Artifact = name
		res.Detail = fmt.Sprintf("would capture %s into %s", it.ID, storage.Key(it.Host, it.Unit.Name, name))
		return res
	}

	local := plan.StagingPath(p.opts.StagingDir, it.Host, name)
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		res = plan.Fail(res, fmt.Errorf("create staging directory: %w", err))
		res.Artifact = model.FailedArtifactName(it.ID, date, ext)
		return res
	}
	defer os.Remove(local)

	var size int64
	capture := func(ctx context.Context) error {
		var err error
		size, err = p.capture(ctx, rt, it, local)
		return err
	}
	target := it.StopTarget()
	if plan.TargetsEmpty(target) {
		err = lifecycle.Protect(ctx, capture)
	} else {
		err = lifecycle.Run(ctx, ctrl, target, guard, p.opts.RecoverTimeout, capture)
	}
	if err == nil && p.opts.VerifyAfter {
		if verr := p.deps.Archiver.Verify(ctx, local); verr != nil {
			err = fmt.Errorf("integrity check of %s: %w", name, verr)
		}
	}
	if err == nil {
		err = p.transfer(ctx, it, local, name)
	}
	if err != nil {
		res = plan.Fail(res, err)
		res.Artifact = model.FailedArtifactName(it.ID, date, ext)
		return res
	}

	res.Status = model.StatusSuccess
	res.Size = size
	res.Artifact = name
	return res
}

func (p *Pipeline) capture(ctx context.Context, rt repository.Runtime, it plan.Item, local string) (int64, error) {
	if it.IsFiles() {
		return p.deps.Archiver.Archive(ctx, it.Unit.Dir, local)
	}

	adapter, err := rt.Engines().Adapter(it.Database.Engine)
	if err != nil {
		return 0, err
	}
	h, err := it.Handle(ctx, p.deps.Credentials)
	if err != nil {
		return 0, err
	}
	res := adapter.Dump(ctx, h, local)
	if !res.OK() {
		return 0, model.Classify(model.ClassPartial, fmt.Errorf("dump %s: %s", h.Database, res.Describe()))
	}
	return res.BytesWritten, nil
}

func (p *Pipeline) transfer(ctx context.Context, it plan.Item, local, name string) error {
	key := storage.Key(it.Host, it.Unit.Name, name)
	if _, err := p.deps.Store.Put(ctx, local, key); err != nil {
		return fmt.Errorf("transfer %s: %w", name, err)
	}
	if _, err := storage.Prune(ctx, p.deps.Store, storage.Prefix(it.Host, it.Unit.Name), it.ID, p.opts.Keep); err != nil {
		log.Warn("[Backup] Retention failed", "item", it.ID, "error", err)
	}
	return nil
}
