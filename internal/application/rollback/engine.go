// Package rollback returns units to the images recorded before their last
// update, optionally restoring their files and databases first.
package rollback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lifecycle-agent/internal/application/fleet"
	"lifecycle-agent/internal/application/lifecycle"
	"lifecycle-agent/internal/application/plan"
	"lifecycle-agent/internal/application/pull"
	"lifecycle-agent/internal/application/report"
	"lifecycle-agent/internal/application/restore"
	"lifecycle-agent/internal/application/update"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/domain/service/configwriter"
	"lifecycle-agent/pkg/log"
)

// State is the progress of one unit rollback.
type State int

const (
	Idle State = iota
	SnapshotLoaded
	FastPath
	SlowPath
	Applied
)

func (s State) String() string {
	switch s {
	case SnapshotLoaded:
		return "snapshot_loaded"
	case FastPath:
		return "fast_path"
	case SlowPath:
		return "slow_path"
	case Applied:
		return "applied"
	default:
		return "idle"
	}
}

// Step is the decision taken for one container image.
type Step struct {
	Image model.ImageSnapshot
	Path  State
}

// Deps are the collaborators of the engine.
type Deps struct {
	Inventory  repository.Inventory
	Connector  repository.Connector
	Snapshots  repository.SnapshotStore
	Writer     *configwriter.Writer
	Restore    *restore.Pipeline
	Aggregator *report.Aggregator
}

// Options tune rollbacks.
type Options struct {
	Parallelism    int
	RecoverTimeout time.Duration
	Pull           pull.Policy
}

// Request selects the units to roll back.
type Request struct {
	Scope model.Scope
	// Combined also restores the unit's files and databases before the
	// images are rolled back. It requires Confirm.
	Combined bool
	Filter   plan.Filter
	Date     time.Time
	Confirm  bool
	DryRun   bool
}

// Engine runs rollbacks.
type Engine struct {
	deps Deps
	opts Options
}

// New creates a rollback engine.
func New(deps Deps, opts Options) *Engine {
	return &Engine{deps: deps, opts: opts}
}

// Run rolls back every unit in scope.
func (e *Engine) Run(ctx context.Context, req Request) (*model.BatchReport, error) {
	batch := e.deps.Aggregator.Begin(model.OpRollback, req.Scope, req.DryRun)
	if req.Combined && !req.Confirm && !req.DryRun {
		err := fmt.Errorf("%w: combined recovery restores files and databases of %s", model.ErrConfirmationRequired, req.Scope)
		return batch.Finish(ctx, err), err
	}
	if req.Combined && e.deps.Restore == nil {
		err := fmt.Errorf("combined recovery is not available without a restore pipeline")
		return batch.Finish(ctx, err), err
	}
	hosts, err := e.deps.Inventory.Resolve(ctx, req.Scope)
	if err != nil {
		err = fmt.Errorf("resolve %s: %w", req.Scope, err)
		return batch.Finish(ctx, err), err
	}

	err = fleet.ForEachHost(ctx, hosts, e.opts.Parallelism, func(ctx context.Context, host model.Host) error {
		rt, err := e.deps.Connector.Connect(ctx, host)
		if err != nil {
			for _, unit := range host.Units {
				batch.Add(failed(result(host, unit), fmt.Errorf("connect %s: %w", host.Name, err)))
			}
			return nil
		}
		defer rt.Close()
		for _, unit := range host.Units {
			unit.Host = host.Name
			e.rollbackUnit(ctx, rt, host, unit, req, batch)
		}
		return nil
	})
	return batch.Finish(ctx, err), err
}

func result(host model.Host, unit model.Unit) model.OperationResult {
	return model.OperationResult{ID: model.Identifier(unit.Name), Unit: unit.Name, Host: host.Name, Subtype: update.Subtype}
}

func failed(r model.OperationResult, err error) model.OperationResult {
	r.Status = model.StatusFailed
	r.Detail = err.Error()
	return r
}

func (e *Engine) rollbackUnit(ctx context.Context, rt repository.Runtime, host model.Host, unit model.Unit, req Request, batch *report.Batch) {
	res := result(host, unit)
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Rollback] Recovered from panic", "unit", unit.Name, "panic", r)
			batch.Add(failed(res, fmt.Errorf("unexpected failure: %v", r)))
		}
	}()

	// The snapshot is read before anything else: a files restore replaces
	// the unit directory it lives in.
	rec, err := e.deps.Snapshots.Load(ctx, unit)
	if err != nil {
		batch.Add(failed(res, err))
		return
	}
	log.Info("[Rollback] Snapshot loaded", "unit", unit.Name, "captured_at", rec.CapturedAt, "versions", rec.VersionSummary())

	steps, err := Decide(ctx, rt.Images(), rec)
	if err != nil {
		batch.Add(failed(res, err))
		return
	}

	if req.DryRun {
		if req.Combined {
			rreq := restore.Request{Date: req.Date}
			for _, it := range plan.Enumerate(host, unit, req.Filter, plan.FilesFirst) {
				batch.Add(e.deps.Restore.Plan(ctx, it, rreq))
			}
		}
		res.Status = model.StatusPlanned
		res.Detail = "would " + describe(steps)
		batch.Add(res)
		return
	}

	ctrl, err := rt.Controller(unit)
	if err != nil {
		batch.Add(failed(res, err))
		return
	}
	target := model.Target{Unit: unit}
	guard, err := lifecycle.ComputeGuard(ctx, ctrl, target)
	if err != nil {
		batch.Add(failed(res, err))
		return
	}

	if !req.Combined {
		batch.Add(e.apply(ctx, rt, ctrl, guard, unit, rec, steps, res))
		return
	}

	if err := lifecycle.RequireQuiet(ctx, ctrl, target, guard); err != nil {
		for _, it := range plan.Enumerate(host, unit, req.Filter, plan.FilesFirst) {
			batch.Add(plan.Fail(it.Result(), err))
		}
		batch.Add(failed(res, err))
		return
	}

	session, err := lifecycle.Pause(ctx, ctrl, target, guard, e.opts.RecoverTimeout)
	defer func() {
		if _, startErr := session.Resume(ctx); startErr != nil {
			log.Error("[Rollback] Failed to start remaining services", "unit", unit.Name, "error", startErr)
		}
	}()
	if err == nil && session.Stopped().Partial() {
		err = fmt.Errorf("failed to stop %d container(s) of %s", len(session.Stopped().Failed), unit.Name)
	}
	if err != nil {
		batch.Add(failed(res, err))
		return
	}

	rreq := restore.Request{Date: req.Date, Confirm: true}
	var files, dbs []plan.Item
	for _, it := range plan.Enumerate(host, unit, req.Filter, plan.FilesFirst) {
		if it.IsFiles() {
			files = append(files, it)
		} else {
			dbs = append(dbs, it)
		}
	}
	for _, it := range files {
		batch.Add(e.deps.Restore.RestoreItem(ctx, rt, ctrl, guard, it, rreq))
	}
	if len(dbs) > 0 {
		if err := startDatabaseTier(ctx, guard, session, unit); err != nil {
			for _, it := range dbs {
				batch.Add(plan.Fail(it.Result(), err))
			}
			dbs = nil
		}
	}
	for _, it := range dbs {
		batch.Add(e.deps.Restore.RestoreItem(ctx, rt, ctrl, guard, it, rreq))
	}

	batch.Add(e.apply(ctx, rt, ctrl, guard, unit, rec, steps, res))
}

// startDatabaseTier starts the engine containers the session stopped, so the
// databases can be restored while their dependents stay down.
func startDatabaseTier(ctx context.Context, guard model.Guard, session *lifecycle.Session, unit model.Unit) error {
	if _, err := session.ResumePart(ctx, guard, unit.DatabaseContainers()); err != nil {
		return fmt.Errorf("start database tier: %w", err)
	}
	return nil
}

// Decide picks the path of every snapshot image: a local re-tag when the
// recorded image is still cached, otherwise a pull of the recorded reference.
func Decide(ctx context.Context, images repository.ImageRepository, rec model.SnapshotRecord) ([]Step, error) {
	steps := make([]Step, 0, len(rec.Images))
	for _, img := range rec.Images {
		if img.Reference == "" {
			return nil, fmt.Errorf("snapshot of %s has no reference for %s", rec.Unit, img.Container)
		}
		path := SlowPath
		if img.ImageID != "" {
			present, err := images.Present(ctx, img.ImageID)
			if err != nil {
				return nil, fmt.Errorf("inspect %s: %w", img.ImageID, err)
			}
			if present {
				path = FastPath
			}
		}
		steps = append(steps, Step{Image: img, Path: path})
	}
	return steps, nil
}

// apply moves every image back and recreates the unit. The slow path pulls
// the recorded reference only; the version label is never a pull target.
func (e *Engine) apply(ctx context.Context, rt repository.Runtime, ctrl repository.Controller, guard model.Guard, unit model.Unit, rec model.SnapshotRecord, steps []Step, res model.OperationResult) model.OperationResult {
	images := rt.Images()
	for _, s := range steps {
		log.Info("[Rollback] Applying image", "unit", unit.Name, "container", s.Image.Container, "path", s.Path, "reference", s.Image.Reference)
		switch s.Path {
		case FastPath:
			if err := images.Tag(ctx, s.Image.ImageID, s.Image.Reference); err != nil {
				return failed(res, fmt.Errorf("re-tag %s: %w", s.Image.Reference, err))
			}
		default:
			if err := pull.Image(ctx, images, s.Image.Reference, e.opts.Pull); err != nil {
				return failed(res, err)
			}
		}
	}

	if rec.Definition != "" {
		if err := e.deps.Writer.Write(ctx, unit, []byte(rec.Definition)); err != nil {
			return failed(res, err)
		}
	}

	res.Status = model.StatusSuccess
	res.Detail = describe(steps)
	if !guard.Allow {
		res.Detail += "; recreate skipped: " + guard.Reason
		return res
	}
	if err := ctrl.Recreate(ctx, model.Target{Unit: unit}); err != nil {
		return failed(res, fmt.Errorf("recreate %s: %w", unit.Name, err))
	}
	log.Info("[Rollback] Applied", "unit", unit.Name, "state", Applied, "versions", rec.VersionSummary())
	return res
}

func describe(steps []Step) string {
	var fast, slow []string
	for _, s := range steps {
		if s.Path == FastPath {
			fast = append(fast, s.Image.Container)
		} else {
			slow = append(slow, s.Image.Container+" ("+s.Image.Reference+")")
		}
	}
	var parts []string
	if len(fast) > 0 {
		parts = append(parts, "re-tag "+strings.Join(fast, ", "))
	}
	if len(slow) > 0 {
		parts = append(parts, "pull "+strings.Join(slow, ", "))
	}
	if len(parts) == 0 {
		return "nothing to roll back"
	}
	return strings.Join(parts, "; ")
}
