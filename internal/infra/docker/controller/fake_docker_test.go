package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeContainer struct {
	id      string
	name    string
	state   string
	service string
	image   string
}

// fakeDocker keeps containers in memory and records the calls it receives.
type fakeDocker struct {
	client.APIClient

	containers map[string]*fakeContainer // by id
	stopErr    map[string]error
	createErr  error
	nextID     int
	calls      []string
}

func newFakeDocker(states map[string]string) *fakeDocker {
	f := &fakeDocker{containers: map[string]*fakeContainer{}, stopErr: map[string]error{}}
	for name, state := range states {
		f.add(name, state, "")
	}
	return f
}

func (f *fakeDocker) add(name, state, service string) *fakeContainer {
	f.nextID++
	c := &fakeContainer{id: fmt.Sprintf("c%03d", f.nextID), name: name, state: state, service: service}
	f.containers[c.id] = c
	return c
}

func (f *fakeDocker) lookup(ref string) (*fakeContainer, error) {
	if c, ok := f.containers[ref]; ok {
		return c, nil
	}
	for _, c := range f.containers {
		if c.name == ref {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no such container %s: %w", ref, errdefs.ErrNotFound)
}

// stateOf returns the state of the container currently holding name.
func (f *fakeDocker) stateOf(name string) string {
	c, err := f.lookup(name)
	if err != nil {
		return ""
	}
	return c.state
}

func (f *fakeDocker) ContainerInspect(_ context.Context, ref string) (container.InspectResponse, error) {
	f.calls = append(f.calls, "Inspect "+ref)
	c, err := f.lookup(ref)
	if err != nil {
		return container.InspectResponse{}, err
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    c.id,
			Name:  "/" + c.name,
			State: &container.State{Status: c.state},
		},
		Config: &container.Config{Image: c.image, Hostname: c.id},
	}, nil
}

func (f *fakeDocker) ContainerStop(_ context.Context, ref string, _ container.StopOptions) error {
	f.calls = append(f.calls, "Stop "+ref)
	c, err := f.lookup(ref)
	if err != nil {
		return err
	}
	if err := f.stopErr[c.name]; err != nil {
		return err
	}
	c.state = "exited"
	return nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, ref string, _ container.StartOptions) error {
	f.calls = append(f.calls, "Start "+ref)
	c, err := f.lookup(ref)
	if err != nil {
		return err
	}
	c.state = "running"
	return nil
}

func (f *fakeDocker) ContainerRename(_ context.Context, ref, name string) error {
	f.calls = append(f.calls, "Rename "+ref+" "+name)
	c, err := f.lookup(ref)
	if err != nil {
		return err
	}
	c.name = name
	return nil
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "Create "+name+" "+cfg.Image)
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	c := f.add(name, "created", "")
	c.image = cfg.Image
	return container.CreateResponse{ID: c.id}, nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, ref string, _ container.RemoveOptions) error {
	f.calls = append(f.calls, "Remove "+ref)
	c, err := f.lookup(ref)
	if err != nil {
		return err
	}
	delete(f.containers, c.id)
	return nil
}

func (f *fakeDocker) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	if f.containers == nil {
		return nil, errors.New("daemon unavailable")
	}
	ids := make([]string, 0, len(f.containers))
	for id := range f.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]container.Summary, 0, len(ids))
	for _, id := range ids {
		c := f.containers[id]
		out = append(out, container.Summary{
			ID:     c.id,
			Names:  []string{"/" + c.name},
			State:  c.state,
			Labels: map[string]string{"com.docker.compose.service": c.service},
		})
	}
	return out, nil
}
