package database

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/compress"
	"lifecycle-agent/pkg/log"
)

// maxStderr bounds the command stderr kept in results.
const maxStderr = 4 << 10

// namePattern restricts dataset names so they can be embedded in SQL, Flux
// and shell arguments without quoting issues.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-$.]*$`)

func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	return nil
}

// runner holds what every adapter needs to run engine commands.
type runner struct {
	exec  repository.Executor
	codec compress.Codec
	poll  time.Duration
	tmp   string
}

// tempPath returns the scratch path for one dataset inside the engine
// container. It depends only on the engine and the dataset name.
func (r runner) tempPath(engine model.EngineKind, name string) string {
	return fmt.Sprintf("%s/lifecycle-%s-%s", strings.TrimRight(r.tmp, "/"), engine, name)
}

// limitedBuffer keeps the first maxStderr bytes written to it.
type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := maxStderr - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return strings.TrimSpace(b.Buffer.String())
}

// dump runs cmd and writes its stdout, compressed, to dest. The file is
// written under a temporary name and only renamed once the command succeeded.
func (r runner) dump(ctx context.Context, h model.DatabaseHandle, dest string, cmd, env []string) model.DumpResult {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return model.DumpFailure(fmt.Errorf("failed to create dump directory: %w", err))
	}
	partial := dest + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return model.DumpFailure(fmt.Errorf("failed to create dump file: %w", err))
	}
	defer os.Remove(partial)

	cw, err := r.codec.NewWriter(f)
	if err != nil {
		f.Close()
		return model.DumpFailure(err)
	}

	var stderr limitedBuffer
	code, err := r.exec.Exec(ctx, h.Container, repository.ExecRequest{Cmd: cmd, Env: env, Stdout: cw, Stderr: &stderr})
	closeErr := cw.Close()
	if cerr := f.Close(); closeErr == nil {
		closeErr = cerr
	}
	if err != nil {
		return model.DumpFailure(err)
	}
	if code != 0 {
		log.Warn("[Database] dump command failed", "db", h.String(), "exit_code", code, "stderr", stderr.String())
		return model.DumpResult{ExitCode: code, Stderr: stderr.String()}
	}
	if closeErr != nil {
		return model.DumpFailure(fmt.Errorf("failed to finish dump file: %w", closeErr))
	}
	if err := os.Rename(partial, dest); err != nil {
		return model.DumpFailure(fmt.Errorf("failed to move dump into place: %w", err))
	}
	info, err := os.Stat(dest)
	if err != nil {
		return model.DumpFailure(err)
	}
	return model.DumpResult{ExitCode: 0, BytesWritten: info.Size(), Stderr: stderr.String()}
}

// restore streams the decompressed content of src into cmd's stdin.
func (r runner) restore(ctx context.Context, h model.DatabaseHandle, src, target string, cmd, env []string) model.RestoreResult {
	f, err := os.Open(src)
	if err != nil {
		return model.RestoreFailure(target, fmt.Errorf("failed to open dump: %w", err))
	}
	defer f.Close()

	codec, ok := compress.ForPath(src)
	if !ok {
		codec = r.codec
	}
	dec, err := codec.NewReader(f)
	if err != nil {
		return model.RestoreFailure(target, fmt.Errorf("failed to read dump: %w", err))
	}
	defer dec.Close()

	var stderr limitedBuffer
	code, err := r.exec.Exec(ctx, h.Container, repository.ExecRequest{Cmd: cmd, Env: env, Stdin: dec, Stderr: &stderr})
	if err != nil {
		return model.RestoreFailure(target, err)
	}
	if code != 0 {
		log.Warn("[Database] restore command failed", "db", h.String(), "target", target, "exit_code", code, "stderr", stderr.String())
	}
	return model.RestoreResult{ExitCode: code, Target: target, Stderr: stderr.String()}
}

// run executes cmd and returns its trimmed stdout. A non-zero exit is an
// error carrying stderr.
func (r runner) run(ctx context.Context, container string, cmd, env []string) (string, error) {
	var stdout bytes.Buffer
	var stderr limitedBuffer
	code, err := r.exec.Exec(ctx, container, repository.ExecRequest{Cmd: cmd, Env: env, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("%s exited with %d: %s", cmd[0], code, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// count runs cmd and parses its output as one integer.
func (r runner) count(ctx context.Context, container string, cmd, env []string) (int, error) {
	out, err := r.run(ctx, container, cmd, env)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected count output %q", out)
	}
	return n, nil
}

// waitReady calls probe every poll interval until it succeeds or timeout
// elapses.
func (r runner) waitReady(ctx context.Context, h model.DatabaseHandle, timeout time.Duration, probe func(ctx context.Context) bool) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		if probe(ctx) {
			log.Debug("[Database] engine ready", "db", h.String())
			return true
		}
		select {
		case <-ctx.Done():
			log.Warn("[Database] engine not ready before timeout", "db", h.String(), "timeout", timeout)
			return false
		case <-ticker.C:
		}
	}
}

// fallback builds a shell command running primary when installed and alt
// otherwise, passing args through unchanged.
func fallback(primary, alt string, args ...string) []string {
	script := fmt.Sprintf(`if command -v %s >/dev/null 2>&1; then exec %s "$@"; else exec %s "$@"; fi`, primary, primary, alt)
	return append([]string{"sh", "-c", script, "sh"}, args...)
}
