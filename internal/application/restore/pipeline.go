// Package restore puts unit directories and databases back from stored
// artifacts. Nothing is changed without an explicit confirmation.
package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
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

const defaultWaitReady = 2 * time.Minute

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
	StagingDir     string
	CompressorExt  string
	Parallelism    int
	RecoverTimeout time.Duration
	WaitReady      time.Duration
	// SafetyDump takes a copy of the current state before it is replaced.
	SafetyDump bool
}

// Request selects what to restore.
type Request struct {
	Scope  model.Scope
	Filter plan.Filter
	// Date restores the artifacts of that day instead of the newest ones.
	Date time.Time
	// SourceHost restores artifacts taken on another host.
	SourceHost string
	Confirm    bool
	DryRun     bool
	// SkipSafetyDump disables the pre-restore copy for this request.
	SkipSafetyDump bool
}

// Pipeline runs restores.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a restore pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.CompressorExt == "" {
		opts.CompressorExt = "zst"
	}
	if opts.WaitReady <= 0 {
		opts.WaitReady = defaultWaitReady
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Run restores every item in scope. Without Confirm, or in a dry run, it only
// locates the artifacts and reports what it would restore; an unconfirmed
// request also returns model.ErrConfirmationRequired.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.BatchReport, error) {
	planned := req.DryRun || !req.Confirm
	batch := p.deps.Aggregator.Begin(model.OpRestore, req.Scope, planned)
	hosts, err := p.deps.Inventory.Resolve(ctx, req.Scope)
	if err != nil {
		err = fmt.Errorf("resolve %s: %w", req.Scope, err)
		return batch.Finish(ctx, err), err
	}

	if planned {
		n := 0
		for _, host := range hosts {
			for _, unit := range host.Units {
				for _, it := range plan.Enumerate(host, unit, req.Filter, plan.FilesFirst) {
					batch.Add(p.Plan(ctx, it, req))
					n++
				}
			}
		}
		if !req.Confirm {
			err = fmt.Errorf("%w: restore of %d item(s) in %s replaces live data, rerun with confirmation to apply", model.ErrConfirmationRequired, n, req.Scope)
		}
		return batch.Finish(ctx, err), err
	}

	err = fleet.ForEachHost(ctx, hosts, p.opts.Parallelism, func(ctx context.Context, host model.Host) error {
		p.runHost(ctx, host, req, batch)
		return nil
	})
	return batch.Finish(ctx, err), err
}

// Plan locates the artifact of it and describes the restore without
// touching anything.
func (p *Pipeline) Plan(ctx context.Context, it plan.Item, req Request) model.OperationResult {
	res := it.Result()
	artifact, err := p.locate(ctx, it, req)
	if err != nil {
		return plan.Fail(res, err)
	}
	res.Status = model.StatusPlanned
	res.Artifact = artifact.Name
	res.Size = artifact.Size
	if it.IsFiles() {
		res.Detail = fmt.Sprintf("would replace %s from %s", it.Unit.Dir, artifact.Location)
	} else {
		res.Detail = fmt.Sprintf("would restore database %s from %s", it.Name, artifact.Location)
	}
	return res
}

func (p *Pipeline) locate(ctx context.Context, it plan.Item, req Request) (model.Artifact, error) {
	source := it.Host
	if req.SourceHost != "" {
		source = req.SourceHost
	}
	return plan.Locate(ctx, p.deps.Store, storage.Prefix(source, it.Unit.Name), it.ID, req.Date)
}

func (p *Pipeline) runHost(ctx context.Context, host model.Host, req Request, batch *report.Batch) {
	rt, err := p.deps.Connector.Connect(ctx, host)
	if err != nil {
		log.Error("[Restore] Failed to connect to host", "host", host.Name, "error", err)
		for _, unit := range host.Units {
			for _, it := range plan.Enumerate(host, unit, req.Filter, plan.FilesFirst) {
				batch.Add(plan.Fail(it.Result(), fmt.Errorf("connect %s: %w", host.Name, err)))
			}
		}
		return
	}
	defer rt.Close()

	for _, unit := range host.Units {
		items := plan.Enumerate(host, unit, req.Filter, plan.FilesFirst)
		if len(items) == 0 {
			continue
		}
		ctrl, err := rt.Controller(items[0].Unit)
		var guard model.Guard
		if err == nil {
			guard, err = lifecycle.ComputeGuard(ctx, ctrl, model.Target{Unit: items[0].Unit})
		}
		for _, it := range items {
			if err != nil {
				batch.Add(plan.Fail(it.Result(), err))
				continue
			}
			batch.Add(p.RestoreItem(ctx, rt, ctrl, guard, it, req))
		}
	}
}

// RestoreItem restores one item: locate, verify, stop its dependents, take
// the safety copy, apply, wait for the engine and restart. The dependents are
// restarted whatever happens after they were stopped.
func (p *Pipeline) RestoreItem(ctx context.Context, rt repository.Runtime, ctrl repository.Controller, guard model.Guard, it plan.Item, req Request) (res model.OperationResult) {
	res = it.Result()
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Restore] Recovered from panic", "item", it.ID, "panic", r)
			res = plan.Fail(res, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	target := it.StopTarget()
	if !plan.TargetsEmpty(target) {
		if err := lifecycle.RequireQuiet(ctx, ctrl, target, guard); err != nil {
			return plan.Fail(res, err)
		}
	}

	artifact, err := p.locate(ctx, it, req)
	if err != nil {
		return plan.Fail(res, err)
	}
	res.Artifact = artifact.Name

	local := plan.StagingPath(p.opts.StagingDir, it.Host, artifact.Name)
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		return plan.Fail(res, fmt.Errorf("create staging directory: %w", err))
	}
	defer os.Remove(local)

	if err := p.deps.Store.Fetch(ctx, artifact.Location, local); err != nil {
		return plan.Fail(res, err)
	}
	if err := p.deps.Archiver.Verify(ctx, local); err != nil {
		return plan.Fail(res, fmt.Errorf("integrity check of %s: %w", artifact.Name, err))
	}

	var notes []string
	apply := func(ctx context.Context) error {
		var err error
		notes, err = p.apply(ctx, rt, it, local, req)
		return err
	}
	if plan.TargetsEmpty(target) {
		err = lifecycle.Protect(ctx, apply)
	} else {
		err = lifecycle.Run(ctx, ctrl, target, guard, p.opts.RecoverTimeout, apply)
	}
	if err != nil {
		res = plan.Fail(res, err)
		if len(notes) > 0 {
			res.Detail += "; " + strings.Join(notes, "; ")
		}
		return res
	}

	res.Status = model.StatusSuccess
	res.Size = artifact.Size
	res.Detail = strings.Join(append([]string{"restored from " + artifact.Location}, notes...), "; ")
	return res
}

// apply replaces the live state of it with the artifact at local. The notes
// describe the safety copy so a failed item still says where it is.
func (p *Pipeline) apply(ctx context.Context, rt repository.Runtime, it plan.Item, local string, req Request) ([]string, error) {
	var notes []string
	if it.IsFiles() {
		if p.opts.SafetyDump && !req.SkipSafetyDump {
			note, err := p.safetyCopy(ctx, it, p.deps.Archiver.Extension(), func(ctx context.Context, dest string) (int64, error) {
				return p.deps.Archiver.Archive(ctx, it.Unit.Dir, dest)
			})
			if err != nil {
				return notes, err
			}
			notes = append(notes, note)
		}
		if err := p.deps.Archiver.Extract(ctx, local, it.Unit.Dir); err != nil {
			return notes, fmt.Errorf("extract into %s: %w", it.Unit.Dir, err)
		}
		return notes, nil
	}

	adapter, err := rt.Engines().Adapter(it.Database.Engine)
	if err != nil {
		return notes, err
	}
	h, err := it.Handle(ctx, p.deps.Credentials)
	if err != nil {
		return notes, err
	}
	if p.opts.SafetyDump && !req.SkipSafetyDump {
		ext := adapter.Extension() + "." + p.opts.CompressorExt
		note, err := p.safetyCopy(ctx, it, ext, func(ctx context.Context, dest string) (int64, error) {
			res := adapter.Dump(ctx, h, dest)
			if !res.OK() {
				return 0, fmt.Errorf("dump %s: %s", h.Database, res.Describe())
			}
			return res.BytesWritten, nil
		})
		if err != nil {
			return notes, err
		}
		notes = append(notes, note)
	}

	if res := adapter.Restore(ctx, h, local, it.Name); !res.OK() {
		return notes, model.Classify(model.ClassPartial, fmt.Errorf("restore %s: %s", it.Name, res.Describe()))
	}
	if !adapter.WaitReady(ctx, h, p.opts.WaitReady) {
		return notes, model.Classify(model.ClassTransient, fmt.Errorf("%s in %s not ready after %s", it.Database.Engine, it.Database.Container, p.opts.WaitReady))
	}
	return notes, nil
}

// safetyCopy captures the current state with capture and stores it under
// the safety prefix. When the upload fails the copy stays in the staging
// directory.
func (p *Pipeline) safetyCopy(ctx context.Context, it plan.Item, ext string, capture func(ctx context.Context, dest string) (int64, error)) (string, error) {
	name := model.SafetyPrefix + model.ArtifactName(it.ID, p.now(), ext)
	local := plan.StagingPath(p.opts.StagingDir, it.Host, name)
	if _, err := capture(ctx, local); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("safety copy failed, nothing was replaced: %w", err)
	}

	key := storage.Key(it.Host, it.Unit.Name, name)
	if _, err := p.deps.Store.Put(ctx, local, key); err != nil {
		log.Warn("[Restore] Failed to upload safety copy", "item", it.ID, "path", local, "error", err)
		return "safety copy kept at " + local, nil
	}
	os.Remove(local)
	log.Info("[Restore] Safety copy stored", "item", it.ID, "key", key)
	return "safety copy " + key, nil
}
