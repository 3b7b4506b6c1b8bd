package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UnitKind tells how the containers of a deployable unit are declared.
type UnitKind string

const (
	// UnitKindCompose is a multi-container stack sharing one compose definition.
	UnitKindCompose UnitKind = "compose"
	// UnitKindContainer is a single container managed directly through the runtime.
	UnitKindContainer UnitKind = "container"
)

// ContainerRef identifies one container on a host. Name is the runtime name
// without the leading slash; Service is the compose service name when known.
type ContainerRef struct {
	Name    string `json:"name" yaml:"name"`
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
}

func (c ContainerRef) String() string {
	return c.Name
}

// Unit is a deployable unit: a named group of co-located containers sharing a
// declarative definition, or a single directly managed container.
type Unit struct {
	Name       string           `json:"name" yaml:"name"`
	Kind       UnitKind         `json:"kind" yaml:"kind"`
	Host       string           `json:"host" yaml:"host"`
	Dir        string           `json:"dir,omitempty" yaml:"dir,omitempty"`
	Containers []ContainerRef   `json:"containers,omitempty" yaml:"containers,omitempty"`
	Databases  []DatabaseTarget `json:"databases,omitempty" yaml:"databases,omitempty"`
}

// DefinitionFile returns the path of the compose definition of the unit.
func (u Unit) DefinitionFile() string {
	if u.Dir == "" {
		return ""
	}
	return filepath.Join(u.Dir, "compose.yml")
}

// DatabaseContainers returns the containers that host a database engine for
// this unit, in declaration order and without duplicates.
func (u Unit) DatabaseContainers() []ContainerRef {
	seen := make(map[string]bool)
	var refs []ContainerRef
	for _, db := range u.Databases {
		if db.Container == "" || seen[db.Container] {
			continue
		}
		seen[db.Container] = true
		refs = append(refs, ContainerRef{Name: db.Container})
	}
	return refs
}

// NonDatabaseContainers returns the unit containers that are not database hosts.
func (u Unit) NonDatabaseContainers() []ContainerRef {
	dbs := make(map[string]bool)
	for _, ref := range u.DatabaseContainers() {
		dbs[ref.Name] = true
	}
	var refs []ContainerRef
	for _, c := range u.Containers {
		if !dbs[c.Name] {
			refs = append(refs, c)
		}
	}
	return refs
}

// DatabaseTarget declares the databases served by one engine container.
type DatabaseTarget struct {
	Engine      EngineKind `json:"engine" yaml:"engine"`
	Container   string     `json:"container" yaml:"container"`
	Credentials string     `json:"credentials" yaml:"credentials"`
	Endpoint    string     `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Names       []string   `json:"names" yaml:"names"`
	// StopDependents lists containers that must be stopped while this
	// engine's data is captured or replaced.
	StopDependents []string `json:"stop_dependents,omitempty" yaml:"stop_dependents,omitempty"`
}

// Target is a selector resolved against one unit.
type Target struct {
	Unit       Unit
	Containers []ContainerRef
}

// Members returns the targeted containers: the explicit list, or every
// container of the unit when none was given. A non-nil empty list selects
// nothing.
func (t Target) Members() []ContainerRef {
	if t.Containers != nil {
		return t.Containers
	}
	return t.Unit.Containers
}

// Names returns the member container names.
func (t Target) Names() []string {
	members := t.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Services returns the compose service names of the members, falling back to
// the container name when no service is recorded.
func (t Target) Services() []string {
	members := t.Members()
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.Service != "" {
			out = append(out, m.Service)
		} else {
			out = append(out, m.Name)
		}
	}
	return out
}

// Resolve narrows the selector to one unit. Explicit containers are kept only
// when they belong to the unit.
func (s Selector) Resolve(u Unit) Target {
	if len(s.Containers) == 0 {
		return Target{Unit: u}
	}
	members := make(map[string]ContainerRef, len(u.Containers))
	for _, c := range u.Containers {
		members[c.Name] = c
	}
	var refs []ContainerRef
	for _, c := range s.Containers {
		if m, ok := members[c.Name]; ok {
			refs = append(refs, m)
		} else if len(u.Containers) == 0 {
			refs = append(refs, c)
		}
	}
	if refs == nil {
		refs = []ContainerRef{}
	}
	return Target{Unit: u, Containers: refs}
}

// Host is one machine of the fleet as resolved by the inventory.
type Host struct {
	Name       string      `json:"name" yaml:"name"`
	DockerHost string      `json:"docker_host,omitempty" yaml:"docker_host,omitempty"`
	Groups     []string    `json:"groups,omitempty" yaml:"groups,omitempty"`
	Mode       ControlMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Units      []Unit      `json:"units,omitempty" yaml:"units,omitempty"`
}

// IsLocal reports whether the host is the machine this process runs on, so
// unit directories are reachable on the local filesystem.
func (h Host) IsLocal() bool {
	return h.DockerHost == "" || strings.HasPrefix(h.DockerHost, "unix://")
}

// Unit returns the unit with the given name, if the host declares it.
func (h Host) Unit(name string) (Unit, bool) {
	for _, u := range h.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// Selector describes which containers an operation targets. It is a pure
// value computed per invocation.
type Selector struct {
	Unit       string
	Group      string
	Containers []ContainerRef
	AllOnHost  bool
}

// SelectUnit targets every container of the named unit.
func SelectUnit(name string) Selector {
	return Selector{Unit: name}
}

// SelectContainers targets an explicit container list.
func SelectContainers(refs ...ContainerRef) Selector {
	return Selector{Containers: refs}
}

// SelectNames targets an explicit list of container names.
func SelectNames(names ...string) Selector {
	refs := make([]ContainerRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, ContainerRef{Name: n})
	}
	return Selector{Containers: refs}
}

// IsEmpty reports whether the selector matches nothing by construction.
func (s Selector) IsEmpty() bool {
	return s.Unit == "" && s.Group == "" && len(s.Containers) == 0 && !s.AllOnHost
}

func (s Selector) String() string {
	switch {
	case len(s.Containers) > 0:
		names := make([]string, 0, len(s.Containers))
		for _, c := range s.Containers {
			names = append(names, c.Name)
		}
		return "containers:" + strings.Join(names, ",")
	case s.Unit != "":
		return "unit:" + s.Unit
	case s.Group != "":
		return "group:" + s.Group
	case s.AllOnHost:
		return "all"
	default:
		return "none"
	}
}

// Scope is what a top-level operation is invoked for: one unit, one host or
// one role/group. The inventory resolves it into concrete hosts and units.
type Scope struct {
	Unit  string
	Host  string
	Group string
}

func (s Scope) String() string {
	var parts []string
	if s.Unit != "" {
		parts = append(parts, "unit="+s.Unit)
	}
	if s.Host != "" {
		parts = append(parts, "host="+s.Host)
	}
	if s.Group != "" {
		parts = append(parts, "group="+s.Group)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}

// Validate rejects scopes that name nothing.
func (s Scope) Validate() error {
	if s.Unit == "" && s.Host == "" && s.Group == "" {
		return fmt.Errorf("scope must name a unit, a host or a group")
	}
	return nil
}
