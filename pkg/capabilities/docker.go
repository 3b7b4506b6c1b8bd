package capabilities

import (
	"strings"
	"sync"
)

// DockerCapability represents the Docker capability
type DockerCapability struct {
	host      string
	version   string
	once      sync.Once
	available bool
}

// NewDockerCapability creates a new Docker capability
func NewDockerCapability(host string) *DockerCapability {
	return &DockerCapability{
		host:    host,
		version: "unknown",
	}
}

// Name returns the name of the capability
func (c *DockerCapability) Name() string {
	return CapabilityDocker
}

// Version returns the server version once IsAvailable has succeeded.
func (c *DockerCapability) Version() string {
	c.IsAvailable()
	return c.version
}

// IsAvailable checks that the docker daemon answers. The probe runs once.
func (c *DockerCapability) IsAvailable() bool {
	c.once.Do(func() {
		args := hostArgs(c.host, "version", "--format", "{{.Server.Version}}")
		output, err := commandOutput("docker", args...)
		if err != nil {
			return
		}
		if v := strings.TrimSpace(string(output)); v != "" {
			c.version = v
			c.available = true
		}
	})
	return c.available
}

func hostArgs(host string, args ...string) []string {
	if host == "" {
		return args
	}
	return append([]string{"--host", host}, args...)
}
