// Package update moves units to new images. The pre-update state of every
// unit is saved first so a rollback can return to it.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"lifecycle-agent/internal/application/fleet"
	"lifecycle-agent/internal/application/lifecycle"
	"lifecycle-agent/internal/application/pull"
	"lifecycle-agent/internal/application/report"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/domain/service/configwriter"
	"lifecycle-agent/pkg/log"
)

// Subtype is the result subtype of update and rollback items.
const Subtype = "images"

// Deps are the collaborators of an update.
type Deps struct {
	Inventory  repository.Inventory
	Connector  repository.Connector
	Snapshots  repository.SnapshotStore
	Writer     *configwriter.Writer
	Aggregator *report.Aggregator
}

// Options tune updates.
type Options struct {
	Parallelism int
	Pull        pull.Policy
}

// Request selects the units to update.
type Request struct {
	Scope model.Scope
	// Definition replaces the compose definition of the unit before pulling.
	// It requires a scope naming one unit.
	Definition []byte
	DryRun     bool
}

// Service runs updates.
type Service struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates an update service.
func New(deps Deps, opts Options) *Service {
	return &Service{deps: deps, opts: opts, now: time.Now}
}

// Run updates every unit in scope and reports one result per unit.
func (s *Service) Run(ctx context.Context, req Request) (*model.BatchReport, error) {
	batch := s.deps.Aggregator.Begin(model.OpUpdate, req.Scope, req.DryRun)
	if req.Definition != nil && req.Scope.Unit == "" {
		err := model.Classify(model.ClassSafetyCritical, errors.New("a new definition can only be applied to a single unit"))
		return batch.Finish(ctx, err), err
	}
	hosts, err := s.deps.Inventory.Resolve(ctx, req.Scope)
	if err != nil {
		err = fmt.Errorf("resolve %s: %w", req.Scope, err)
		return batch.Finish(ctx, err), err
	}

	err = fleet.ForEachHost(ctx, hosts, s.opts.Parallelism, func(ctx context.Context, host model.Host) error {
		rt, err := s.deps.Connector.Connect(ctx, host)
		if err != nil {
			for _, unit := range host.Units {
				batch.Add(failed(result(host, unit), fmt.Errorf("connect %s: %w", host.Name, err)))
			}
			return nil
		}
		defer rt.Close()
		for _, unit := range host.Units {
			unit.Host = host.Name
			batch.Add(s.updateUnit(ctx, rt, host, unit, req))
		}
		return nil
	})
	return batch.Finish(ctx, err), err
}

func result(host model.Host, unit model.Unit) model.OperationResult {
	return model.OperationResult{ID: model.Identifier(unit.Name), Unit: unit.Name, Host: host.Name, Subtype: Subtype}
}

func failed(r model.OperationResult, err error) model.OperationResult {
	r.Status = model.StatusFailed
	r.Detail = err.Error()
	return r
}

func (s *Service) updateUnit(ctx context.Context, rt repository.Runtime, host model.Host, unit model.Unit, req Request) (res model.OperationResult) {
	res = result(host, unit)
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Update] Recovered from panic", "unit", unit.Name, "panic", r)
			res = failed(res, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	ctrl, err := rt.Controller(unit)
	if err != nil {
		return failed(res, err)
	}
	target := model.Target{Unit: unit}
	guard, err := lifecycle.ComputeGuard(ctx, ctrl, target)
	if err != nil {
		return failed(res, err)
	}

	before, err := Capture(ctx, rt.Images(), ctrl, target)
	if err != nil {
		return failed(res, fmt.Errorf("capture current images: %w", err))
	}
	rec := model.SnapshotRecord{Unit: unit.Name, CapturedAt: s.now().UTC(), Images: before}
	if req.Definition != nil {
		current, err := os.ReadFile(unit.DefinitionFile())
		if err != nil {
			return failed(res, fmt.Errorf("read current definition: %w", err))
		}
		rec.Definition = string(current)
	}

	refs, err := pullTargets(ctx, unit, before, req.Definition)
	if err != nil {
		return failed(res, err)
	}
	if req.DryRun {
		res.Status = model.StatusPlanned
		res.Detail = fmt.Sprintf("would snapshot %d container(s) and pull %s", len(before), strings.Join(refs, ", "))
		return res
	}

	if err := s.deps.Snapshots.Save(ctx, unit, rec); err != nil {
		return failed(res, err)
	}
	log.Info("[Update] Snapshot saved", "unit", unit.Name, "versions", rec.VersionSummary())

	if req.Definition != nil {
		if err := s.deps.Writer.Write(ctx, unit, req.Definition); err != nil {
			return failed(res, err)
		}
	}
	for _, ref := range refs {
		if err := pull.Image(ctx, rt.Images(), ref, s.opts.Pull); err != nil {
			return failed(res, err)
		}
	}

	if !guard.Allow {
		res.Status = model.StatusSuccess
		res.Detail = fmt.Sprintf("pulled %s; recreate skipped: %s", strings.Join(refs, ", "), guard.Reason)
		return res
	}
	if err := ctrl.Recreate(ctx, target); err != nil {
		return failed(res, fmt.Errorf("recreate %s: %w", unit.Name, err))
	}

	after, err := Capture(ctx, rt.Images(), ctrl, target)
	if err != nil {
		log.Warn("[Update] Failed to read updated images", "unit", unit.Name, "error", err)
	}
	res.Status = model.StatusSuccess
	res.Detail = describeChange(before, after)
	return res
}

// Capture describes the image of every member of target. Without declared
// containers the running members are used.
func Capture(ctx context.Context, images repository.ImageRepository, ctrl repository.Controller, target model.Target) ([]model.ImageSnapshot, error) {
	members := target.Members()
	if len(members) == 0 && target.Containers == nil {
		running, err := ctrl.Running(ctx, target)
		if err != nil {
			return nil, err
		}
		members = running
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("unit %s has no containers", target.Unit.Name)
	}
	out := make([]model.ImageSnapshot, 0, len(members))
	for _, ref := range members {
		snap, err := images.Describe(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", ref.Name, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func pullTargets(ctx context.Context, unit model.Unit, before []model.ImageSnapshot, definition []byte) ([]string, error) {
	seen := make(map[string]bool)
	var refs []string
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if definition != nil {
		services, err := configwriter.ServiceImages(ctx, unit, definition)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrValidationFailed, err)
		}
		for _, svc := range services {
			add(svc.Image)
		}
		return refs, nil
	}
	for _, img := range before {
		add(img.Reference)
	}
	return refs, nil
}

func describeChange(before, after []model.ImageSnapshot) string {
	current := model.SnapshotRecord{Images: after}
	var parts []string
	for _, b := range before {
		from := b.VersionLabel
		if from == "" {
			from = shortID(b.ImageID)
		}
		a, ok := current.Image(b.Container)
		if !ok {
			parts = append(parts, fmt.Sprintf("%s: %s -> unknown", b.Container, from))
			continue
		}
		to := a.VersionLabel
		if to == "" {
			to = shortID(a.ImageID)
		}
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", b.Container, from, to))
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
