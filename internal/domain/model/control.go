package model

// ControlMode selects the mechanism used to stop and start workloads on a host.
type ControlMode string

const (
	// ControlModeDirect drives containers one by one through the runtime API.
	ControlModeDirect ControlMode = "direct"
	// ControlModeCompose drives a unit through compose group commands.
	ControlModeCompose ControlMode = "compose"
	// ControlModeAPI delegates to a container management API.
	ControlModeAPI ControlMode = "api"
)

// Valid reports whether m is a known control mode.
func (m ControlMode) Valid() bool {
	switch m {
	case ControlModeDirect, ControlModeCompose, ControlModeAPI:
		return true
	}
	return false
}

// Guard is the precondition under which a stop step runs. It is computed once
// at the top of an operation and handed unchanged to the matching start step,
// including any start reached from a failure-recovery path.
type Guard struct {
	Allow  bool
	Reason string
}

// Allowing returns a guard that permits stop and start.
func Allowing(reason string) Guard {
	return Guard{Allow: true, Reason: reason}
}

// Denying returns a guard that forbids stop and start.
func Denying(reason string) Guard {
	return Guard{Allow: false, Reason: reason}
}

// StopResult reports what a stop call did. Stopped holds only containers that
// were running and were stopped by this call.
type StopResult struct {
	Mode           ControlMode
	Guard          Guard
	Stopped        []ContainerRef
	AlreadyStopped []ContainerRef
	Failed         map[string]error
}

// Partial reports whether some containers could not be stopped.
func (r StopResult) Partial() bool {
	return len(r.Failed) > 0
}

// StartResult reports what a start call did.
type StartResult struct {
	Mode    ControlMode
	Skipped bool
	Started []ContainerRef
	Failed  map[string]error
}

// OK reports whether every targeted container was started.
func (r StartResult) OK() bool {
	return len(r.Failed) == 0
}
