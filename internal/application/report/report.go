// Package report aggregates per-item operation results into one batch
// report, records every item and sends one notification per batch.
package report

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/infra/sqlite"
	"lifecycle-agent/pkg/log"
	"lifecycle-agent/pkg/metrics"
)

// Tables maps each operation to its log table.
var Tables = map[model.Operation]string{
	model.OpBackup:   sqlite.TableBackups,
	model.OpRestore:  sqlite.TableRestores,
	model.OpUpdate:   sqlite.TableUpdates,
	model.OpRollback: sqlite.TableRollbacks,
	model.OpVerify:   sqlite.TableVerifies,
}

// Aggregator creates batches bound to the process collaborators.
type Aggregator struct {
	recorder    repository.Recorder
	notifier    repository.Notifier
	metrics     *metrics.Recorder
	metricsFile string
	now         func() time.Time
}

// Options configures NewAggregator. Nil collaborators are skipped.
type Options struct {
	Recorder repository.Recorder
	Notifier repository.Notifier
	Metrics  *metrics.Recorder
	// MetricsFile receives the textfile export after each batch when set.
	MetricsFile string
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{
		recorder:    opts.Recorder,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		metricsFile: opts.MetricsFile,
		now:         time.Now,
	}
}

// Batch collects the results of one operation. Add is safe for concurrent
// use by host workers.
type Batch struct {
	agg      *Aggregator
	mu       sync.Mutex
	report   model.BatchReport
	finished bool
}

// Begin starts a batch with a fresh operation ID.
func (a *Aggregator) Begin(op model.Operation, scope model.Scope, dryRun bool) *Batch {
	b := &Batch{
		agg: a,
		report: model.BatchReport{
			OpID:      uuid.NewString(),
			Operation: op,
			Scope:     scope.String(),
			DryRun:    dryRun,
			Started:   a.now(),
		},
	}
	log.Info(fmt.Sprintf("[%s] Operation started", title(op)), "op_id", b.report.OpID, "scope", b.report.Scope, "dry_run", dryRun)
	return b
}

// OpID returns the operation ID shared by every result of the batch.
func (b *Batch) OpID() string { return b.report.OpID }

// Add appends one item result. The timestamp is set when missing.
func (b *Batch) Add(r model.OperationResult) {
	if r.Timestamp.IsZero() {
		r.Timestamp = b.agg.now()
	}
	b.mu.Lock()
	b.report.Add(r)
	b.mu.Unlock()

	args := []any{"op_id", b.report.OpID, "host", r.Host, "unit", r.Unit, "item", r.ID, "status", r.Status}
	if r.Artifact != "" {
		args = append(args, "artifact", r.Artifact)
	}
	if r.Failed() {
		log.Warn(fmt.Sprintf("[%s] Item failed", title(b.report.Operation)), append(args, "detail", r.Detail)...)
	} else {
		log.Info(fmt.Sprintf("[%s] Item done", title(b.report.Operation)), args...)
	}
}

// Finish closes the batch: every result is recorded, metrics are updated and
// exactly one notification is sent. err marks a batch aborted early. Calling
// Finish again returns the same report without side effects.
func (b *Batch) Finish(ctx context.Context, err error) *model.BatchReport {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return b.snapshot()
	}
	b.finished = true
	b.report.Err = err
	b.report.Finished = b.agg.now()
	b.mu.Unlock()

	rep := b.snapshot()
	a := b.agg
	status := rep.Status()

	if a.recorder != nil {
		table := Tables[rep.Operation]
		for _, r := range rep.Results {
			if recErr := a.recorder.Record(ctx, table, rowFields(rep, r)); recErr != nil {
				log.Error("[Report] Failed to record result", "op_id", rep.OpID, "item", r.ID, "error", recErr)
			}
		}
	}

	if a.metrics != nil {
		for _, r := range rep.Results {
			a.metrics.ObserveItem(string(rep.Operation), string(r.Status), r.Size)
		}
		a.metrics.ObserveBatch(string(rep.Operation), string(status), rep.Finished.Sub(rep.Started), rep.Finished)
		if a.metricsFile != "" {
			if mErr := a.metrics.WriteTextfile(a.metricsFile); mErr != nil {
				log.Warn("[Report] Failed to write metrics textfile", "path", a.metricsFile, "error", mErr)
			}
		}
	}

	if a.notifier != nil {
		a.notifier.Notify(ctx, fmt.Sprintf("%s %s", rep.Operation, rep.Scope), status, notificationFields(rep))
	}

	ok, failed := rep.Counts()
	args := []any{"op_id", rep.OpID, "status", status, "succeeded", ok, "failed", failed, "took", rep.Finished.Sub(rep.Started).Round(time.Millisecond)}
	if err != nil {
		args = append(args, "error", err)
	}
	log.Info(fmt.Sprintf("[%s] Operation finished", title(rep.Operation)), args...)
	return rep
}

func (b *Batch) snapshot() *model.BatchReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	rep := b.report
	rep.Results = append([]model.OperationResult(nil), b.report.Results...)
	return &rep
}

func rowFields(rep *model.BatchReport, r model.OperationResult) map[string]any {
	fields := map[string]any{
		sqlite.FieldOpID:      rep.OpID,
		sqlite.FieldTimestamp: r.Timestamp,
		sqlite.FieldHost:      r.Host,
		sqlite.FieldUnit:      r.Unit,
		sqlite.FieldItem:      r.ID,
		sqlite.FieldStatus:    string(r.Status),
		sqlite.FieldSize:      r.Size,
		sqlite.FieldArtifact:  r.Artifact,
		sqlite.FieldDetail:    r.Detail,
	}
	if r.Subtype != "" {
		fields["subtype"] = r.Subtype
	}
	if rep.DryRun {
		fields["dry_run"] = true
	}
	return fields
}

func notificationFields(rep *model.BatchReport) map[string]string {
	ok, failed := rep.Counts()
	var size int64
	for _, r := range rep.Results {
		size += r.Size
	}
	fields := map[string]string{
		"op_id":     rep.OpID,
		"items":     strconv.Itoa(len(rep.Results)),
		"succeeded": strconv.Itoa(ok),
		"failed":    strconv.Itoa(failed),
		"size":      strconv.FormatInt(size, 10),
	}
	for _, r := range rep.Results {
		if r.Failed() {
			fields["failed:"+r.ID] = r.Detail
		}
	}
	if rep.Err != nil {
		fields["error"] = rep.Err.Error()
	}
	return fields
}

func title(op model.Operation) string {
	switch op {
	case model.OpBackup:
		return "Backup"
	case model.OpRestore:
		return "Restore"
	case model.OpUpdate:
		return "Update"
	case model.OpRollback:
		return "Rollback"
	case model.OpVerify:
		return "Verify"
	}
	return string(op)
}
