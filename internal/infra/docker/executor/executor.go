// Package executor runs commands inside containers through the docker exec API.
package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// Executor is the docker-backed repository.Executor.
type Executor struct {
	cli client.APIClient
}

var _ repository.Executor = (*Executor)(nil)

// New creates an executor.
func New(cli client.APIClient) *Executor {
	return &Executor{cli: cli}
}

// Exec runs req.Cmd in name. Stdout and stderr are demultiplexed into the
// request writers; a nil writer discards the stream. Stdin, when set, is
// streamed and then half-closed so the command sees EOF.
func (e *Executor) Exec(ctx context.Context, name string, req repository.ExecRequest) (int, error) {
	if len(req.Cmd) == 0 {
		return -1, fmt.Errorf("empty command")
	}
	opts := container.ExecOptions{
		Cmd:          req.Cmd,
		Env:          req.Env,
		AttachStdin:  req.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := e.cli.ContainerExecCreate(ctx, name, opts)
	if err != nil {
		return -1, fmt.Errorf("create exec %s: %w", req.Cmd[0], err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("attach exec %s: %w", req.Cmd[0], err)
	}
	defer attach.Close()

	stdinErr := make(chan error, 1)
	if req.Stdin != nil {
		go func() {
			_, err := io.Copy(attach.Conn, req.Stdin)
			if cerr := attach.CloseWrite(); err == nil {
				err = cerr
			}
			stdinErr <- err
		}()
	} else {
		stdinErr <- nil
	}

	stdout, stderr := req.Stdout, req.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		copyDone <- err
	}()

	select {
	case <-ctx.Done():
		attach.Close()
		return -1, ctx.Err()
	case err := <-copyDone:
		if err != nil {
			return -1, fmt.Errorf("read exec output %s: %w", req.Cmd[0], err)
		}
	}
	select {
	case err := <-stdinErr:
		if err != nil {
			log.Warn("[Exec] failed to stream stdin", "container", name, "cmd", req.Cmd[0], "error", err)
		}
	default:
		log.Warn("[Exec] command exited before consuming stdin", "container", name, "cmd", req.Cmd[0])
	}

	info, err := e.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return -1, fmt.Errorf("inspect exec %s: %w", req.Cmd[0], err)
	}
	log.Debug("[Exec] command finished", "container", name, "cmd", req.Cmd[0], "exit_code", info.ExitCode)
	return info.ExitCode, nil
}
