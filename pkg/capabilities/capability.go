package capabilities

import (
	"context"
	"os/exec"
	"time"
)

// Capability names
const (
	CapabilityDocker        = "docker"
	CapabilityDockerCompose = "docker-compose"
	CapabilityManagementAPI = "management-api"
)

// Control modes derived from the detected capabilities.
const (
	ModeDirect  = "direct"
	ModeCompose = "compose"
	ModeAPI     = "api"
)

// Capability represents a system capability that can be detected
type Capability interface {
	// Name returns the name of the capability
	Name() string
	// Version returns the version of the capability
	Version() string
	// IsAvailable returns whether the capability is available
	IsAvailable() bool
}

// commandOutput runs a probe command. Replaced in tests.
var commandOutput = func(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

// CapabilityFactory creates and returns all available capabilities
type CapabilityFactory struct {
	capabilities []Capability
}

// NewCapabilityFactory creates a capability factory. dockerHost is passed to
// the docker CLI probes; apiURL enables the management API probe when set.
func NewCapabilityFactory(dockerHost, apiURL string) *CapabilityFactory {
	caps := []Capability{
		NewDockerCapability(dockerHost),
		NewDockerComposeCapability(dockerHost),
	}
	if apiURL != "" {
		caps = append(caps, NewManagementAPICapability(apiURL))
	}
	return &CapabilityFactory{capabilities: caps}
}

// GetCapabilityByName returns a capability by its name
func (f *CapabilityFactory) GetCapabilityByName(name string) Capability {
	for _, c := range f.capabilities {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// ControlMode derives the control mechanism for a host from what is
// available: the management API when it answers, compose group commands for
// compose units when the plugin is present, and direct runtime calls
// otherwise. An empty string means no mechanism is usable.
func (f *CapabilityFactory) ControlMode(composeUnit bool) string {
	available := func(name string) bool {
		c := f.GetCapabilityByName(name)
		return c != nil && c.IsAvailable()
	}
	switch {
	case available(CapabilityManagementAPI):
		return ModeAPI
	case composeUnit && available(CapabilityDockerCompose):
		return ModeCompose
	case available(CapabilityDocker):
		return ModeDirect
	}
	return ""
}
