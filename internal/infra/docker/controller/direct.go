package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/infra/docker"
	"lifecycle-agent/pkg/log"
)

// replacedSuffix is appended to a container name while its replacement is
// created.
const replacedSuffix = "-lifecycle-replaced"

// Direct drives containers one by one through the docker engine API.
type Direct struct {
	cli         client.APIClient
	stopTimeout time.Duration
}

// NewDirect creates a direct controller.
func NewDirect(cli client.APIClient, stopTimeout time.Duration) *Direct {
	return &Direct{cli: cli, stopTimeout: stopTimeout}
}

func (d *Direct) Mode() model.ControlMode { return model.ControlModeDirect }

func (d *Direct) state(ctx context.Context, name string) (docker.State, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return docker.StateUnknown, err
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return docker.StateUnknown, nil
	}
	return docker.MapState(info.State.Status), nil
}

// Stop stops every running member. Members that are missing or not running
// are reported as already stopped.
func (d *Direct) Stop(ctx context.Context, target model.Target, guard model.Guard) (model.StopResult, error) {
	if !guard.Allow {
		return skippedStop(d.Mode(), guard, target), nil
	}
	res := newStopResult(d.Mode(), guard)
	timeout := int(d.stopTimeout.Seconds())

	for _, ref := range target.Members() {
		if err := ctx.Err(); err != nil {
			logStop(res, target)
			return res, err
		}
		state, err := d.state(ctx, ref.Name)
		if err != nil {
			if errdefs.IsNotFound(err) {
				log.Warn("[Controller] container not found, treating as stopped", "unit", target.Unit.Name, "container", ref.Name)
				res.AlreadyStopped = append(res.AlreadyStopped, ref)
				continue
			}
			res.Failed[ref.Name] = fmt.Errorf("inspect: %w", err)
			continue
		}
		if !state.Active() {
			res.AlreadyStopped = append(res.AlreadyStopped, ref)
			continue
		}
		if err := d.cli.ContainerStop(ctx, ref.Name, container.StopOptions{Timeout: &timeout}); err != nil {
			res.Failed[ref.Name] = fmt.Errorf("stop: %w", err)
			continue
		}
		log.Debug("[Controller] container stopped", "unit", target.Unit.Name, "container", ref.Name)
		res.Stopped = append(res.Stopped, ref)
	}

	logStop(res, target)
	return res, nil
}

// Start starts every member. Starting a running container is a no-op.
func (d *Direct) Start(ctx context.Context, target model.Target, guard model.Guard) (model.StartResult, error) {
	if !guard.Allow {
		return skippedStart(d.Mode(), guard, target), nil
	}
	res := newStartResult(d.Mode())
	for _, ref := range target.Members() {
		if err := d.cli.ContainerStart(ctx, ref.Name, container.StartOptions{}); err != nil {
			res.Failed[ref.Name] = fmt.Errorf("start: %w", err)
			continue
		}
		res.Started = append(res.Started, ref)
	}
	logStart(res, target)
	return res, nil
}

// Running returns the members that are currently running.
func (d *Direct) Running(ctx context.Context, target model.Target) ([]model.ContainerRef, error) {
	var running []model.ContainerRef
	for _, ref := range target.Members() {
		state, err := d.state(ctx, ref.Name)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to inspect %s: %w", ref.Name, err)
		}
		if state.Active() {
			running = append(running, ref)
		}
	}
	return running, nil
}

// Recreate replaces each member with a container created from the same
// configuration. The image reference is resolved again, so a re-tagged or
// freshly pulled image takes effect. The old container is kept under a
// temporary name until the replacement exists.
func (d *Direct) Recreate(ctx context.Context, target model.Target) error {
	for _, ref := range target.Members() {
		if err := d.recreate(ctx, ref.Name); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", ref.Name, err)
		}
	}
	return nil
}

func (d *Direct) recreate(ctx context.Context, name string) error {
	old, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	if old.ContainerJSONBase == nil || old.Config == nil {
		return fmt.Errorf("inspect returned no configuration")
	}

	wasRunning := old.State != nil && docker.MapState(old.State.Status).Active()
	cfg := *old.Config
	shortID := old.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	if cfg.Hostname == shortID {
		cfg.Hostname = ""
	}
	var endpoints map[string]*network.EndpointSettings
	if old.NetworkSettings != nil {
		endpoints = old.NetworkSettings.Networks
	}
	netCfg := networkingFrom(endpoints, shortID)

	if wasRunning {
		timeout := int(d.stopTimeout.Seconds())
		if err := d.cli.ContainerStop(ctx, old.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}
	if err := d.cli.ContainerRename(ctx, old.ID, name+replacedSuffix); err != nil {
		d.restoreOld(ctx, old.ID, name, wasRunning, false)
		return fmt.Errorf("rename: %w", err)
	}

	created, err := d.cli.ContainerCreate(ctx, &cfg, old.HostConfig, netCfg, nil, name)
	if err != nil {
		d.restoreOld(ctx, old.ID, name, wasRunning, true)
		return fmt.Errorf("create: %w", err)
	}

	if wasRunning {
		if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("start replacement: %w", err)
		}
	}
	if err := d.cli.ContainerRemove(ctx, old.ID, container.RemoveOptions{Force: true}); err != nil {
		log.Warn("[Controller] failed to remove replaced container", "container", name, "id", old.ID, "error", err)
	}
	log.Info("[Controller] container recreated", "container", name, "image", cfg.Image, "id", created.ID)
	return nil
}

// restoreOld puts a container back under its name after a failed
// replacement.
func (d *Direct) restoreOld(ctx context.Context, id, name string, wasRunning, renamed bool) {
	if renamed {
		if err := d.cli.ContainerRename(ctx, id, name); err != nil {
			log.Error("[Controller] failed to restore container name", "container", name, "id", id, "error", err)
		}
	}
	if wasRunning {
		if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			log.Error("[Controller] failed to restart original container", "container", name, "id", id, "error", err)
		}
	}
}

// networkingFrom keeps the user-controlled parts of existing endpoints. The
// alias the engine derived from the old container ID is dropped.
func networkingFrom(endpoints map[string]*network.EndpointSettings, shortID string) *network.NetworkingConfig {
	if len(endpoints) == 0 {
		return nil
	}
	cfg := &network.NetworkingConfig{EndpointsConfig: make(map[string]*network.EndpointSettings, len(endpoints))}
	for name, ep := range endpoints {
		if ep == nil {
			continue
		}
		aliases := make([]string, 0, len(ep.Aliases))
		for _, a := range ep.Aliases {
			if a != shortID {
				aliases = append(aliases, a)
			}
		}
		cfg.EndpointsConfig[name] = &network.EndpointSettings{
			IPAMConfig: ep.IPAMConfig,
			Links:      ep.Links,
			Aliases:    aliases,
			DriverOpts: ep.DriverOpts,
		}
	}
	return cfg
}
