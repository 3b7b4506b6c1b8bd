// Package controller implements the stop/start controller over the three
// control mechanisms: direct runtime calls, compose group commands and a
// container management API.
package controller

import (
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

const defaultStopTimeout = 30 * time.Second

// Options configures New.
type Options struct {
	Mode model.ControlMode
	// Client is required for the direct and compose modes.
	Client client.APIClient
	// DockerHost is passed to the compose CLI.
	DockerHost  string
	StopTimeout time.Duration
	// APIURL and APIToken configure the management API mode.
	APIURL   string
	APIToken model.Secret
}

// New returns the controller for opts.Mode.
func New(opts Options) (repository.Controller, error) {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	switch opts.Mode {
	case model.ControlModeDirect:
		if opts.Client == nil {
			return nil, fmt.Errorf("direct control mode requires a docker client")
		}
		return NewDirect(opts.Client, opts.StopTimeout), nil
	case model.ControlModeCompose:
		if opts.Client == nil {
			return nil, fmt.Errorf("compose control mode requires a docker client")
		}
		return NewCompose(opts.Client, opts.DockerHost, opts.StopTimeout), nil
	case model.ControlModeAPI:
		if opts.APIURL == "" {
			return nil, fmt.Errorf("api control mode requires a management API url")
		}
		return NewAPI(opts.APIURL, opts.APIToken, opts.StopTimeout), nil
	}
	return nil, fmt.Errorf("unknown control mode %q", opts.Mode)
}

func newStopResult(mode model.ControlMode, guard model.Guard) model.StopResult {
	return model.StopResult{Mode: mode, Guard: guard, Failed: make(map[string]error)}
}

func newStartResult(mode model.ControlMode) model.StartResult {
	return model.StartResult{Mode: mode, Failed: make(map[string]error)}
}

func logStop(res model.StopResult, target model.Target) {
	if len(res.Failed) > 0 {
		log.Warn("[Controller] stop finished with failures", "unit", target.Unit.Name, "mode", res.Mode,
			"stopped", len(res.Stopped), "already_stopped", len(res.AlreadyStopped), "failed", len(res.Failed))
		return
	}
	log.Info("[Controller] stop finished", "unit", target.Unit.Name, "mode", res.Mode,
		"stopped", len(res.Stopped), "already_stopped", len(res.AlreadyStopped))
}

func logStart(res model.StartResult, target model.Target) {
	if len(res.Failed) > 0 {
		log.Warn("[Controller] start finished with failures", "unit", target.Unit.Name, "mode", res.Mode,
			"started", len(res.Started), "failed", len(res.Failed))
		return
	}
	log.Info("[Controller] start finished", "unit", target.Unit.Name, "mode", res.Mode, "started", len(res.Started))
}

func skippedStop(mode model.ControlMode, guard model.Guard, target model.Target) model.StopResult {
	log.Info("[Controller] stop not permitted by guard", "unit", target.Unit.Name, "mode", mode, "reason", guard.Reason)
	return newStopResult(mode, guard)
}

func skippedStart(mode model.ControlMode, guard model.Guard, target model.Target) model.StartResult {
	log.Info("[Controller] start not permitted by guard", "unit", target.Unit.Name, "mode", mode, "reason", guard.Reason)
	res := newStartResult(mode)
	res.Skipped = true
	return res
}
