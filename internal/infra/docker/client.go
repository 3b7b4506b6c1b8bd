// Package docker holds helpers shared by the docker-backed infrastructure:
// client construction, compose project lookups and container state mapping.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// ComposeProjectLabel is set by compose on every container of a project.
const ComposeProjectLabel = "com.docker.compose.project"

// ComposeServiceLabel carries the compose service name of a container.
const ComposeServiceLabel = "com.docker.compose.service"

// NewClient connects to the docker daemon at host, or to the one described by
// the environment when host is empty.
func NewClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// ContainerName returns the primary name of a listed container without the
// leading slash.
func ContainerName(c container.Summary) string {
	if len(c.Names) == 0 {
		return c.ID
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// ListProject lists every container, running or not, of a compose project.
func ListProject(ctx context.Context, cli client.APIClient, project string) ([]container.Summary, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("%s=%s", ComposeProjectLabel, project))

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers of project %s: %w", project, err)
	}
	return containers, nil
}

// ListNamed lists the containers with the given names.
func ListNamed(ctx context.Context, cli client.APIClient, names []string) ([]container.Summary, error) {
	if len(names) == 0 {
		return nil, nil
	}
	filterArgs := filters.NewArgs()
	for _, n := range names {
		filterArgs.Add("name", "^/"+n+"$")
	}
	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers %v: %w", names, err)
	}
	return containers, nil
}
