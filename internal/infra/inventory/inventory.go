// Package inventory resolves operation scopes against a YAML inventory file
// listing hosts, their groups and the units deployed on them.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/yaml"
)

type fileDatabase struct {
	Engine         string   `yaml:"engine" validate:"required"`
	Container      string   `yaml:"container" validate:"required"`
	Credentials    string   `yaml:"credentials"`
	Endpoint       string   `yaml:"endpoint" validate:"omitempty,url"`
	Names          []string `yaml:"names" validate:"required,min=1,dive,required"`
	StopDependents []string `yaml:"stop_dependents"`
}

type fileContainer struct {
	Name    string `yaml:"name" validate:"required"`
	Service string `yaml:"service"`
}

type fileUnit struct {
	Name       string          `yaml:"name" validate:"required"`
	Kind       string          `yaml:"kind" validate:"omitempty,oneof=compose container"`
	Dir        string          `yaml:"dir"`
	Containers []fileContainer `yaml:"containers" validate:"dive"`
	Databases  []fileDatabase  `yaml:"databases" validate:"dive"`
}

type fileHost struct {
	Name       string     `yaml:"name" validate:"required"`
	DockerHost string     `yaml:"docker_host"`
	Groups     []string   `yaml:"groups"`
	Mode       string     `yaml:"mode" validate:"omitempty,oneof=direct compose api"`
	Units      []fileUnit `yaml:"units" validate:"dive"`
}

type file struct {
	Hosts []fileHost `yaml:"hosts" validate:"dive"`
}

var validate = validator.New()

// Inventory is the file-backed repository.Inventory. The file is read on
// every Resolve so edits apply to the next operation.
type Inventory struct {
	path     string
	appsPath string
}

var _ repository.Inventory = (*Inventory)(nil)

// New creates an inventory. Compose units without a dir live in
// <appsPath>/<unit>.
func New(path, appsPath string) *Inventory {
	return &Inventory{path: path, appsPath: appsPath}
}

// Load reads and validates the whole inventory.
func (inv *Inventory) Load() ([]model.Host, error) {
	data, err := os.ReadFile(inv.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", inv.path, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid inventory %s: %w", inv.path, err)
	}

	hosts := make([]model.Host, 0, len(f.Hosts))
	seen := map[string]bool{}
	for _, fh := range f.Hosts {
		if seen[fh.Name] {
			return nil, fmt.Errorf("invalid inventory %s: host %s declared twice", inv.path, fh.Name)
		}
		seen[fh.Name] = true
		h, err := inv.convertHost(fh)
		if err != nil {
			return nil, fmt.Errorf("invalid inventory %s: %w", inv.path, err)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func (inv *Inventory) convertHost(fh fileHost) (model.Host, error) {
	h := model.Host{
		Name:       fh.Name,
		DockerHost: fh.DockerHost,
		Groups:     fh.Groups,
		Mode:       model.ControlMode(fh.Mode),
	}
	for _, fu := range fh.Units {
		u := model.Unit{
			Name: fu.Name,
			Kind: model.UnitKind(fu.Kind),
			Host: fh.Name,
			Dir:  fu.Dir,
		}
		if u.Kind == "" {
			u.Kind = model.UnitKindCompose
		}
		if u.Kind == model.UnitKindCompose && u.Dir == "" {
			u.Dir = filepath.Join(inv.appsPath, u.Name)
		}
		for _, c := range fu.Containers {
			u.Containers = append(u.Containers, model.ContainerRef{Name: c.Name, Service: c.Service})
		}
		if u.Kind == model.UnitKindContainer && len(u.Containers) == 0 {
			u.Containers = []model.ContainerRef{{Name: u.Name}}
		}
		for _, fd := range fu.Databases {
			kind, err := model.ParseEngineKind(strings.ToLower(fd.Engine))
			if err != nil {
				return model.Host{}, fmt.Errorf("unit %s: %w", u.Name, err)
			}
			u.Databases = append(u.Databases, model.DatabaseTarget{
				Engine:         kind,
				Container:      fd.Container,
				Credentials:    fd.Credentials,
				Endpoint:       fd.Endpoint,
				Names:          fd.Names,
				StopDependents: fd.StopDependents,
			})
		}
		h.Units = append(h.Units, u)
	}
	return h, nil
}

// Resolve returns the hosts matching scope, each narrowed to the units in
// scope. Host and group filters combine; a unit filter keeps only hosts that
// declare the unit.
func (inv *Inventory) Resolve(_ context.Context, scope model.Scope) ([]model.Host, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	hosts, err := inv.Load()
	if err != nil {
		return nil, err
	}

	var out []model.Host
	for _, h := range hosts {
		if scope.Host != "" && h.Name != scope.Host {
			continue
		}
		if scope.Group != "" && !slices.Contains(h.Groups, scope.Group) {
			continue
		}
		if scope.Unit != "" {
			u, ok := h.Unit(scope.Unit)
			if !ok {
				continue
			}
			h.Units = []model.Unit{u}
		}
		out = append(out, h)
	}

	if len(out) == 0 {
		switch {
		case scope.Unit != "":
			return nil, fmt.Errorf("%w: %s", model.ErrUnitNotFound, scope)
		default:
			return nil, errors.New("no host matches " + scope.String())
		}
	}
	return out, nil
}
