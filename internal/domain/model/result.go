package model

import "time"

// Status is the outcome of one item or of a whole batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
	// StatusPlanned marks results of a dry run or of an unconfirmed restore.
	StatusPlanned Status = "planned"
)

// Operation names a top-level lifecycle operation.
type Operation string

const (
	OpBackup   Operation = "backup"
	OpRestore  Operation = "restore"
	OpUpdate   Operation = "update"
	OpRollback Operation = "rollback"
	OpVerify   Operation = "verify"
)

// OperationResult is the per-item outcome. Exactly one exists for every item
// enumerated at the start of an operation.
type OperationResult struct {
	ID        string    `json:"id"`
	Unit      string    `json:"unit"`
	Host      string    `json:"host"`
	Subtype   string    `json:"subtype,omitempty"`
	Status    Status    `json:"status"`
	Size      int64     `json:"size"`
	Artifact  string    `json:"artifact,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the item did not succeed.
func (r OperationResult) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusPartial
}

// BatchReport collects the results of one top-level operation.
type BatchReport struct {
	OpID      string            `json:"op_id"`
	Operation Operation         `json:"operation"`
	Scope     string            `json:"scope"`
	DryRun    bool              `json:"dry_run,omitempty"`
	Started   time.Time         `json:"started"`
	Finished  time.Time         `json:"finished"`
	Results   []OperationResult `json:"results"`
	// Err is set when the batch was aborted before completing.
	Err error `json:"-"`
}

// Add appends a result to the batch.
func (b *BatchReport) Add(r OperationResult) {
	b.Results = append(b.Results, r)
}

// Status derives the batch status: success only when every item succeeded,
// failed when none did, partial otherwise.
func (b *BatchReport) Status() Status {
	if b.Err != nil && len(b.Results) == 0 {
		return StatusFailed
	}
	if len(b.Results) == 0 {
		return StatusSuccess
	}
	var ok, failed, planned int
	for _, r := range b.Results {
		switch r.Status {
		case StatusSuccess:
			ok++
		case StatusPlanned:
			planned++
		default:
			failed++
		}
	}
	switch {
	case planned == len(b.Results):
		return StatusPlanned
	case failed == 0 && b.Err == nil:
		return StatusSuccess
	case ok == 0 && planned == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Counts returns the number of succeeded and failed items.
func (b *BatchReport) Counts() (succeeded, failed int) {
	for _, r := range b.Results {
		if r.Status == StatusSuccess {
			succeeded++
		} else if r.Failed() {
			failed++
		}
	}
	return succeeded, failed
}

// StaleBackup is one entry of the stale-backup report.
type StaleBackup struct {
	Host       string        `json:"host"`
	Unit       string        `json:"unit"`
	Artifact   string        `json:"artifact"`
	LastBackup time.Time     `json:"last_backup"`
	Age        time.Duration `json:"age"`
}
