package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/infra/docker"
)

// Compose drives a unit through `docker compose` group commands. Container
// state is read from the engine API through the compose project label.
type Compose struct {
	cli         client.APIClient
	host        string
	stopTimeout time.Duration
	run         commandRunner
}

// NewCompose creates a compose controller.
func NewCompose(cli client.APIClient, host string, stopTimeout time.Duration) *Compose {
	return &Compose{cli: cli, host: host, stopTimeout: stopTimeout, run: execDocker}
}

func (c *Compose) Mode() model.ControlMode { return model.ControlModeCompose }

type member struct {
	ref   model.ContainerRef
	state docker.State
}

func projectName(u model.Unit) string {
	if u.Dir != "" {
		return filepath.Base(u.Dir)
	}
	return u.Name
}

// members lists the project containers matched by target, with their state.
func (c *Compose) members(ctx context.Context, target model.Target) ([]member, error) {
	if target.Unit.Dir == "" {
		return nil, fmt.Errorf("compose unit %s has no directory", target.Unit.Name)
	}
	listed, err := docker.ListProject(ctx, c.cli, projectName(target.Unit))
	if err != nil {
		return nil, err
	}

	var wanted map[string]bool
	if target.Containers != nil {
		wanted = make(map[string]bool, len(target.Containers))
		for _, ref := range target.Containers {
			wanted[ref.Name] = true
			if ref.Service != "" {
				wanted[ref.Service] = true
			}
		}
	}

	out := make([]member, 0, len(listed))
	for _, s := range listed {
		ref := model.ContainerRef{Name: docker.ContainerName(s), Service: s.Labels[docker.ComposeServiceLabel]}
		if wanted != nil && !wanted[ref.Name] && !wanted[ref.Service] {
			continue
		}
		out = append(out, member{ref: ref, state: docker.MapState(s.State)})
	}
	return out, nil
}

func services(refs []model.ContainerRef) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		svc := ref.Service
		if svc == "" {
			svc = ref.Name
		}
		if !seen[svc] {
			seen[svc] = true
			out = append(out, svc)
		}
	}
	return out
}

// Stop stops the running services of target with one compose command and
// then reads back which containers actually stopped.
func (c *Compose) Stop(ctx context.Context, target model.Target, guard model.Guard) (model.StopResult, error) {
	if !guard.Allow {
		return skippedStop(c.Mode(), guard, target), nil
	}
	res := newStopResult(c.Mode(), guard)

	before, err := c.members(ctx, target)
	if err != nil {
		return res, err
	}
	var running []model.ContainerRef
	for _, m := range before {
		if m.state.Active() {
			running = append(running, m.ref)
		} else {
			res.AlreadyStopped = append(res.AlreadyStopped, m.ref)
		}
	}
	if len(running) == 0 {
		logStop(res, target)
		return res, nil
	}

	cmdErr := c.composeStop(ctx, target.Unit.Dir, services(running))
	if cmdErr == nil {
		res.Stopped = running
		logStop(res, target)
		return res, nil
	}

	after, err := c.members(ctx, target)
	if err != nil {
		for _, ref := range running {
			res.Failed[ref.Name] = cmdErr
		}
		logStop(res, target)
		return res, nil
	}
	active := activeNames(after)
	for _, ref := range running {
		if active[ref.Name] {
			res.Failed[ref.Name] = cmdErr
		} else {
			res.Stopped = append(res.Stopped, ref)
		}
	}
	logStop(res, target)
	return res, nil
}

// Start starts the services of target.
func (c *Compose) Start(ctx context.Context, target model.Target, guard model.Guard) (model.StartResult, error) {
	if !guard.Allow {
		return skippedStart(c.Mode(), guard, target), nil
	}
	res := newStartResult(c.Mode())

	var svc []string
	if target.Containers != nil {
		svc = services(target.Containers)
		if len(svc) == 0 {
			return res, nil
		}
	}
	cmdErr := c.composeStart(ctx, target.Unit.Dir, svc)

	after, err := c.members(ctx, target)
	if err != nil {
		if cmdErr == nil {
			res.Started = target.Members()
			logStart(res, target)
			return res, nil
		}
		for _, ref := range target.Members() {
			res.Failed[ref.Name] = cmdErr
		}
		logStart(res, target)
		return res, nil
	}
	for _, m := range after {
		switch {
		case m.state.Active():
			res.Started = append(res.Started, m.ref)
		case cmdErr != nil:
			res.Failed[m.ref.Name] = cmdErr
		default:
			res.Failed[m.ref.Name] = fmt.Errorf("container is %s after start", m.state)
		}
	}
	logStart(res, target)
	return res, nil
}

// Running returns the members of target that are currently running.
func (c *Compose) Running(ctx context.Context, target model.Target) ([]model.ContainerRef, error) {
	members, err := c.members(ctx, target)
	if err != nil {
		return nil, err
	}
	var running []model.ContainerRef
	for _, m := range members {
		if m.state.Active() {
			running = append(running, m.ref)
		}
	}
	return running, nil
}

// Recreate force-recreates the services of target from the local image cache.
func (c *Compose) Recreate(ctx context.Context, target model.Target) error {
	var svc []string
	if target.Containers != nil {
		svc = services(target.Containers)
	}
	return c.composeRecreate(ctx, target.Unit.Dir, svc)
}

func activeNames(members []member) map[string]bool {
	out := make(map[string]bool, len(members))
	for _, m := range members {
		if m.state.Active() {
			out[m.ref.Name] = true
		}
	}
	return out
}
