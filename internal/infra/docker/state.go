package docker

import "strings"

// State is the coarse lifecycle state of a container.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateStopped
	StateRestarting
	StatePaused
	StateProblematic
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateRestarting:
		return "restarting"
	case StatePaused:
		return "paused"
	case StateProblematic:
		return "problematic"
	default:
		return "unknown"
	}
}

// MapState maps a docker container state string to State.
func MapState(state string) State {
	switch strings.ToLower(state) {
	case "running":
		return StateRunning
	case "exited", "stopped", "created":
		return StateStopped
	case "restarting":
		return StateRestarting
	case "paused":
		return StatePaused
	case "dead", "oomkilled", "removing":
		return StateProblematic
	default:
		return StateUnknown
	}
}

// Active reports whether a container in state s holds its process and
// therefore has to be stopped before its data is touched.
func (s State) Active() bool {
	return s == StateRunning || s == StateRestarting || s == StatePaused
}

// Aggregate derives one state for a group of containers.
func Aggregate(states []State) State {
	if len(states) == 0 {
		return StateStopped
	}

	var running, paused, stopped, restarting, problematic int
	for _, s := range states {
		switch s {
		case StateRunning:
			running++
		case StatePaused:
			paused++
		case StateStopped:
			stopped++
		case StateRestarting:
			restarting++
		default:
			problematic++
		}
	}

	switch {
	case problematic > 0:
		return StateProblematic
	case restarting > 0:
		return StateRestarting
	case running > 0 && stopped == 0 && paused == 0:
		return StateRunning
	case stopped > 0 && running == 0 && paused == 0:
		return StateStopped
	case paused > 0 || (running > 0 && stopped > 0):
		return StatePaused
	}
	return StateUnknown
}
