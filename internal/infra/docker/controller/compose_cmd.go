package controller

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"lifecycle-agent/pkg/log"
)

// commandRunner executes docker with args in dir and returns its combined output.
type commandRunner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func execDocker(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// fileExists returns true if the provided path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// detectComposeFiles decides which compose files make up the unit definition.
// A plain compose.yml is detected by compose itself, so no file is returned.
func detectComposeFiles(unitDir string) ([]string, error) {
	custom := filepath.Join(unitDir, "compose.custom.yml")
	override := filepath.Join(unitDir, "compose.override.yml")
	compose := filepath.Join(unitDir, "compose.yml")
	legacy := filepath.Join(unitDir, "docker-compose.yml")

	customExists := fileExists(custom)
	overrideExists := fileExists(override)

	switch {
	case customExists && overrideExists:
		return []string{custom, override}, nil
	case customExists:
		return []string{custom}, nil
	case fileExists(compose) && overrideExists:
		return []string{compose, override}, nil
	case fileExists(compose), fileExists(legacy):
		return nil, nil
	default:
		return nil, fmt.Errorf("no compose file found in %s", unitDir)
	}
}

// buildComposeFileArgs converts file list into `-f file` CLI arguments.
func buildComposeFileArgs(files []string) []string {
	var args []string
	for _, f := range files {
		args = append(args, "-f", filepath.Base(f))
	}
	return args
}

// runCompose executes `docker compose <sub> ...` in the unit directory.
func (c *Compose) runCompose(ctx context.Context, unitDir string, sub ...string) error {
	files, err := detectComposeFiles(unitDir)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(sub)+6)
	if c.host != "" {
		args = append(args, "--host", c.host)
	}
	args = append(args, "compose")
	args = append(args, buildComposeFileArgs(files)...)
	args = append(args, sub...)

	output, err := c.run(ctx, unitDir, args...)
	if err != nil {
		log.Error("[Controller] docker compose command failed", "dir", unitDir, "args", args, "output", string(output), "error", err)
		return fmt.Errorf("docker compose %v failed: %w", sub, err)
	}
	log.Debug("[Controller] docker compose executed", "dir", unitDir, "args", args, "output", string(output))
	return nil
}

func (c *Compose) composeStop(ctx context.Context, unitDir string, services []string) error {
	args := append([]string{"stop", "--timeout", strconv.Itoa(int(c.stopTimeout.Seconds()))}, services...)
	return c.runCompose(ctx, unitDir, args...)
}

func (c *Compose) composeStart(ctx context.Context, unitDir string, services []string) error {
	return c.runCompose(ctx, unitDir, append([]string{"start"}, services...)...)
}

func (c *Compose) composeRecreate(ctx context.Context, unitDir string, services []string) error {
	args := []string{"up", "--detach", "--force-recreate", "--pull", "never"}
	if len(services) > 0 {
		args = append(args, "--no-deps")
	}
	return c.runCompose(ctx, unitDir, append(args, services...)...)
}
