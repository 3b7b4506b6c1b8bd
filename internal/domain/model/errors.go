package model

import "errors"

var (
	// ErrConfirmationRequired is returned by destructive operations invoked
	// without an explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrSnapshotNotFound means no rollback snapshot exists for a unit.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrArtifactNotFound means no matching backup artifact exists.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrGuardMismatch is returned when a start is requested with a guard that
	// differs from the one the stop ran under.
	ErrGuardMismatch = errors.New("stop/start guard mismatch")
	// ErrUnsupportedEngine means no adapter exists for an engine kind.
	ErrUnsupportedEngine = errors.New("unsupported database engine")
	// ErrValidationFailed is returned when a staged definition is rejected.
	ErrValidationFailed = errors.New("definition validation failed")
	// ErrUnitNotFound means the inventory does not know a unit.
	ErrUnitNotFound = errors.New("unit not found")
)

// ErrorClass is the handling class of a failure.
type ErrorClass int

const (
	// ClassFatal is an unexpected failure; cleanup still runs and the item is failed.
	ClassFatal ErrorClass = iota
	// ClassTransient failures are eligible for bounded retry.
	ClassTransient
	// ClassPartial failures affect one item of a batch only.
	ClassPartial
	// ClassSafetyCritical failures abort the operation before mutating state.
	ClassSafetyCritical
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPartial:
		return "partial"
	case ClassSafetyCritical:
		return "safety_critical"
	default:
		return "fatal"
	}
}

// ClassifiedError attaches an ErrorClass to an error.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Class.String() + ": " + e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with a class.
func Classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf returns the class of err. Confirmation and guard errors are always
// safety critical; unclassified errors are fatal.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, ErrConfirmationRequired) || errors.Is(err, ErrGuardMismatch) {
		return ClassSafetyCritical
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassFatal
}
