package capabilities

import (
	"strings"
	"sync"
)

// DockerComposeCapability represents the Docker Compose plugin capability
type DockerComposeCapability struct {
	host      string
	version   string
	once      sync.Once
	available bool
}

// NewDockerComposeCapability creates a new Docker Compose capability
func NewDockerComposeCapability(host string) *DockerComposeCapability {
	return &DockerComposeCapability{
		host:    host,
		version: "unknown",
	}
}

// Name returns the name of the capability
func (c *DockerComposeCapability) Name() string {
	return CapabilityDockerCompose
}

// Version returns the version of the capability
func (c *DockerComposeCapability) Version() string {
	c.IsAvailable()
	return c.version
}

// IsAvailable checks if the compose plugin is available on the system
func (c *DockerComposeCapability) IsAvailable() bool {
	c.once.Do(func() {
		args := hostArgs(c.host, "compose", "version", "--short")
		output, err := commandOutput("docker", args...)
		if err != nil {
			return
		}
		v := strings.TrimPrefix(strings.TrimSpace(string(output)), "v")
		if v == "" {
			return
		}
		c.version = v
		c.available = true
	})
	return c.available
}
