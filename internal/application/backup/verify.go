package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lifecycle-agent/internal/application/fleet"
	"lifecycle-agent/internal/application/plan"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/infra/storage"
	"lifecycle-agent/pkg/log"
)

// VerifySuffix is appended to a database name to form the temporary dataset
// a deep verification restores into.
const VerifySuffix = "_verify"

// VerifyRequest selects the artifacts to verify.
type VerifyRequest struct {
	Scope  model.Scope
	Filter plan.Filter
	// Deep restores database dumps into a temporary dataset and checks that
	// it is not empty.
	Deep   bool
	Date   time.Time
	DryRun bool
}

// Verifier checks stored artifacts outside the backup critical path.
type Verifier struct {
	deps Deps
	opts Options
}

// NewVerifier creates a Verifier sharing the collaborators of a pipeline.
func NewVerifier(deps Deps, opts Options) *Verifier {
	return &Verifier{deps: deps, opts: opts}
}

// Run verifies the newest artifact of every item in scope.
func (v *Verifier) Run(ctx context.Context, req VerifyRequest) (*model.BatchReport, error) {
	batch := v.deps.Aggregator.Begin(model.OpVerify, req.Scope, req.DryRun)
	hosts, err := v.deps.Inventory.Resolve(ctx, req.Scope)
	if err != nil {
		err = fmt.Errorf("resolve %s: %w", req.Scope, err)
		return batch.Finish(ctx, err), err
	}

	err = fleet.ForEachHost(ctx, hosts, v.opts.Parallelism, func(ctx context.Context, host model.Host) error {
		var engines repository.EngineRegistry
		var connErr error
		if req.Deep && !req.DryRun {
			rt, err := v.deps.Connector.Connect(ctx, host)
			if err != nil {
				log.Warn("[Verify] Deep verification unavailable", "host", host.Name, "error", err)
				connErr = err
			} else {
				defer rt.Close()
				engines = rt.Engines()
			}
		}
		for _, unit := range host.Units {
			for _, it := range plan.Enumerate(host, unit, req.Filter, plan.DatabasesFirst) {
				batch.Add(v.verifyItem(ctx, engines, connErr, it, req))
			}
		}
		return nil
	})
	return batch.Finish(ctx, err), err
}

func (v *Verifier) verifyItem(ctx context.Context, engines repository.EngineRegistry, connErr error, it plan.Item, req VerifyRequest) (res model.OperationResult) {
	res = it.Result()
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Verify] Recovered from panic", "item", it.ID, "panic", r)
			res = plan.Fail(res, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	artifact, err := plan.Locate(ctx, v.deps.Store, storage.Prefix(it.Host, it.Unit.Name), it.ID, req.Date)
	if err != nil {
		return plan.Fail(res, err)
	}
	res.Artifact = artifact.Name
	res.Size = artifact.Size
	if req.DryRun {
		res.Status = model.StatusPlanned
		res.Detail = "would verify " + artifact.Location
		return res
	}

	local := plan.StagingPath(v.opts.StagingDir, it.Host, artifact.Name)
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		return plan.Fail(res, fmt.Errorf("create staging directory: %w", err))
	}
	defer os.Remove(local)

	if err := v.deps.Store.Fetch(ctx, artifact.Location, local); err != nil {
		return plan.Fail(res, err)
	}
	if err := v.deps.Archiver.Verify(ctx, local); err != nil {
		res.Status = model.StatusFailed
		res.Detail = fmt.Sprintf("integrity check failed: %v", err)
		return res
	}
	res.Status = model.StatusSuccess
	res.Detail = "integrity ok"

	if !req.Deep || it.IsFiles() {
		return res
	}
	if engines == nil {
		// A requested check that did not run is not a pass.
		res.Status = model.StatusFailed
		res.Detail = fmt.Sprintf("integrity ok, deep check not run: %v", connErr)
		return res
	}
	tables, err := v.deepVerify(ctx, engines, it, local)
	if err != nil {
		res.Status = model.StatusFailed
		res.Detail = err.Error()
		return res
	}
	res.Detail = fmt.Sprintf("integrity ok, %d tables restored", tables)
	return res
}

// deepVerify restores the dump into a temporary dataset, counts its tables
// and always drops it again.
func (v *Verifier) deepVerify(ctx context.Context, engines repository.EngineRegistry, it plan.Item, local string) (int, error) {
	adapter, err := engines.Adapter(it.Database.Engine)
	if err != nil {
		return 0, err
	}
	h, err := it.Handle(ctx, v.deps.Credentials)
	if err != nil {
		return 0, err
	}
	tmp := h
	tmp.Database = it.Name + VerifySuffix
	defer func() {
		if err := adapter.DropTemporary(context.WithoutCancel(ctx), tmp); err != nil {
			log.Warn("[Verify] Failed to drop temporary dataset", "db", tmp.Database, "error", err)
		}
	}()

	if res := adapter.Restore(ctx, h, local, tmp.Database); !res.OK() {
		return 0, fmt.Errorf("restore into %s: %s", tmp.Database, res.Describe())
	}
	n, err := adapter.Count(ctx, tmp)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", tmp.Database, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("restored dataset %s is empty", tmp.Database)
	}
	return n, nil
}
