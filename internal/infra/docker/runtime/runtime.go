// Package runtime opens the per-host container runtime: docker client,
// controller selection, image repository and database adapters.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/client"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/infra/database"
	"lifecycle-agent/internal/infra/docker"
	"lifecycle-agent/internal/infra/docker/controller"
	"lifecycle-agent/internal/infra/docker/executor"
	"lifecycle-agent/internal/infra/docker/images"
	"lifecycle-agent/pkg/capabilities"
	"lifecycle-agent/pkg/log"
)

// Options configures every runtime opened by a Connector.
type Options struct {
	// ControlMode overrides capability detection when set. A mode declared on
	// the host in the inventory takes precedence.
	ControlMode  model.ControlMode
	StopTimeout  time.Duration
	APIURL       string
	APIToken     model.Secret
	DockerConfig string
	Database     database.Options
}

// modeProber derives a control mode from host capabilities.
type modeProber interface {
	ControlMode(composeUnit bool) string
}

// Connector is the docker-backed repository.Connector.
type Connector struct {
	opts  Options
	dial  func(dockerHost string) (client.APIClient, error)
	probe func(dockerHost, apiURL string) modeProber
}

var _ repository.Connector = (*Connector)(nil)

// NewConnector creates a connector.
func NewConnector(opts Options) *Connector {
	return &Connector{
		opts: opts,
		dial: func(host string) (client.APIClient, error) {
			return docker.NewClient(host)
		},
		probe: func(host, apiURL string) modeProber {
			return capabilities.NewCapabilityFactory(host, apiURL)
		},
	}
}

// Connect opens the runtime of host.
func (c *Connector) Connect(ctx context.Context, host model.Host) (repository.Runtime, error) {
	cli, err := c.dial(host.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("host %s: %w", host.Name, err)
	}
	engines, err := database.NewRegistry(executor.New(cli), c.opts.Database)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("host %s: %w", host.Name, err)
	}
	log.Debug("[Runtime] connected", "host", host.Name, "docker_host", host.DockerHost)
	return &Runtime{
		host:        host,
		opts:        c.opts,
		cli:         cli,
		caps:        c.probe(host.DockerHost, c.opts.APIURL),
		images:      images.New(cli, c.opts.DockerConfig),
		engines:     engines,
		controllers: make(map[model.ControlMode]repository.Controller),
	}, nil
}

// Runtime is the docker-backed repository.Runtime of one host.
type Runtime struct {
	host    model.Host
	opts    Options
	cli     client.APIClient
	caps    modeProber
	images  *images.Repository
	engines *database.Registry

	mu          sync.Mutex
	controllers map[model.ControlMode]repository.Controller
}

// ModeFor returns the control mode used for unit.
func (r *Runtime) ModeFor(unit model.Unit) (model.ControlMode, error) {
	if r.host.Mode != "" {
		return r.host.Mode, nil
	}
	if r.opts.ControlMode != "" {
		return r.opts.ControlMode, nil
	}
	mode := model.ControlMode(r.caps.ControlMode(unit.Kind == model.UnitKindCompose))
	if !mode.Valid() {
		return "", fmt.Errorf("host %s offers no usable control mechanism", r.host.Name)
	}
	return mode, nil
}

func (r *Runtime) Controller(unit model.Unit) (repository.Controller, error) {
	mode, err := r.ModeFor(unit)
	if err != nil {
		return nil, err
	}
	if mode == model.ControlModeCompose && unit.Kind != model.UnitKindCompose {
		mode = model.ControlModeDirect
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctrl, ok := r.controllers[mode]; ok {
		return ctrl, nil
	}
	ctrl, err := controller.New(controller.Options{
		Mode:        mode,
		Client:      r.cli,
		DockerHost:  r.host.DockerHost,
		StopTimeout: r.opts.StopTimeout,
		APIURL:      r.opts.APIURL,
		APIToken:    r.opts.APIToken,
	})
	if err != nil {
		return nil, err
	}
	log.Info("[Runtime] control mode selected", "host", r.host.Name, "unit", unit.Name, "mode", mode)
	r.controllers[mode] = ctrl
	return ctrl, nil
}

func (r *Runtime) Images() repository.ImageRepository { return r.images }

func (r *Runtime) Engines() repository.EngineRegistry { return r.engines }

func (r *Runtime) Close() error { return r.cli.Close() }
