// Package lifecycle pairs every stop of a workload with exactly one start
// under the same guard, on the main path and on every recovery path.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// HoldFile in a unit directory marks the unit as held by an operator. Held
// units are never stopped or started by lifecycle operations.
const HoldFile = ".lifecycle-hold"

const defaultRecoverTimeout = 5 * time.Minute

// ComputeGuard decides, once per operation, whether the members of target may
// be stopped and started. The guard denies when the unit is held or when none
// of its members is running, so a workload stopped on purpose stays stopped.
func ComputeGuard(ctx context.Context, ctrl repository.Controller, target model.Target) (model.Guard, error) {
	if dir := target.Unit.Dir; dir != "" {
		if _, err := os.Stat(filepath.Join(dir, HoldFile)); err == nil {
			return model.Denying("unit is held"), nil
		}
	}
	running, err := ctrl.Running(ctx, target)
	if err != nil {
		return model.Guard{}, fmt.Errorf("failed to read running state of %s: %w", target.Unit.Name, err)
	}
	if len(running) == 0 {
		return model.Denying("no member was running"), nil
	}
	return model.Allowing(fmt.Sprintf("%d of %d members running", len(running), len(target.Members()))), nil
}

// RequireQuiet refuses to go on when guard forbids stopping target and some
// of its members are running: data must not be replaced under them.
func RequireQuiet(ctx context.Context, ctrl repository.Controller, target model.Target, guard model.Guard) error {
	if guard.Allow {
		return nil
	}
	running, err := ctrl.Running(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to read running state of %s: %w", target.Unit.Name, err)
	}
	if len(running) == 0 {
		return nil
	}
	names := make([]string, 0, len(running))
	for _, ref := range running {
		names = append(names, ref.Name)
	}
	return model.Classify(model.ClassSafetyCritical, fmt.Errorf("%s may not be stopped (%s) but %s still running",
		target.Unit.Name, guard.Reason, strings.Join(names, ", ")))
}

// Session is one stop of a target together with its pending start. Resume
// runs at most once and only restarts containers this session stopped.
type Session struct {
	ctrl           repository.Controller
	target         model.Target
	guard          model.Guard
	recoverTimeout time.Duration

	stopped model.StopResult

	mu      sync.Mutex
	pending []model.ContainerRef

	once     sync.Once
	started  model.StartResult
	startErr error
}

// Pause stops target under guard. The returned session is non-nil even when
// the stop failed part way, so the caller can always defer Resume.
func Pause(ctx context.Context, ctrl repository.Controller, target model.Target, guard model.Guard, recoverTimeout time.Duration) (*Session, error) {
	if recoverTimeout <= 0 {
		recoverTimeout = defaultRecoverTimeout
	}
	s := &Session{ctrl: ctrl, target: target, guard: guard, recoverTimeout: recoverTimeout}
	res, err := ctrl.Stop(ctx, target, guard)
	s.stopped = res
	s.pending = res.Stopped
	if err != nil {
		return s, fmt.Errorf("failed to stop %s: %w", target.Unit.Name, err)
	}
	return s, nil
}

// Guard returns the guard the session was stopped under.
func (s *Session) Guard() model.Guard { return s.guard }

// Stopped returns the result of the stop.
func (s *Session) Stopped() model.StopResult { return s.stopped }

// Resume starts what Pause stopped. It runs once; later calls return the
// first outcome. The start is detached from ctx cancellation and bounded by
// the recover timeout, so a cancelled operation still restarts its workload.
func (s *Session) Resume(ctx context.Context) (model.StartResult, error) {
	s.once.Do(func() {
		s.started, s.startErr = s.resume(ctx)
	})
	return s.started, s.startErr
}

// ResumePart starts the members of refs this session stopped ahead of the
// others; Resume later starts only what is still pending. A guard different
// from the one the stop ran under is refused.
func (s *Session) ResumePart(ctx context.Context, guard model.Guard, refs []model.ContainerRef) (model.StartResult, error) {
	if guard != s.guard {
		return model.StartResult{Mode: s.ctrl.Mode(), Skipped: true}, fmt.Errorf("%w: unit %s", model.ErrGuardMismatch, s.target.Unit.Name)
	}
	if !s.guard.Allow {
		return model.StartResult{Mode: s.ctrl.Mode(), Skipped: true}, nil
	}

	want := make(map[string]bool, len(refs))
	for _, ref := range refs {
		want[ref.Name] = true
	}
	var part []model.ContainerRef
	s.mu.Lock()
	rest := s.pending[:0:0]
	for _, ref := range s.pending {
		if want[ref.Name] {
			part = append(part, ref)
		} else {
			rest = append(rest, ref)
		}
	}
	s.pending = rest
	s.mu.Unlock()
	if len(part) == 0 {
		return model.StartResult{Mode: s.ctrl.Mode()}, nil
	}

	res, err := s.ctrl.Start(ctx, model.Target{Unit: s.target.Unit, Containers: part}, s.guard)
	if err == nil && res.OK() {
		return res, nil
	}
	// Whatever did not start stays pending for Resume.
	s.mu.Lock()
	for _, ref := range part {
		if err != nil || res.Failed[ref.Name] != nil {
			s.pending = append(s.pending, ref)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return res, fmt.Errorf("failed to start %s: %w", s.target.Unit.Name, err)
	}
	return res, fmt.Errorf("failed to start %d container(s) of %s", len(res.Failed), s.target.Unit.Name)
}

func (s *Session) resume(ctx context.Context) (model.StartResult, error) {
	if !s.guard.Allow {
		return model.StartResult{Mode: s.ctrl.Mode(), Skipped: true}, nil
	}
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return model.StartResult{Mode: s.ctrl.Mode()}, nil
	}

	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.recoverTimeout)
	defer cancel()

	target := model.Target{Unit: s.target.Unit, Containers: pending}
	res, err := s.ctrl.Start(startCtx, target, s.guard)
	if err != nil {
		return res, fmt.Errorf("failed to start %s: %w", s.target.Unit.Name, err)
	}
	if !res.OK() {
		return res, fmt.Errorf("failed to start %d container(s) of %s", len(res.Failed), s.target.Unit.Name)
	}
	return res, nil
}

// Run stops target, runs fn and restarts what was stopped, whatever fn
// returned or however it panicked. A panic in fn is returned as an error. A
// partial stop aborts before fn runs; the containers that did stop are still
// restarted.
func Run(ctx context.Context, ctrl repository.Controller, target model.Target, guard model.Guard, recoverTimeout time.Duration, fn func(ctx context.Context) error) (err error) {
	session, stopErr := Pause(ctx, ctrl, target, guard, recoverTimeout)
	defer func() {
		if _, startErr := session.Resume(ctx); startErr != nil {
			log.Error("[Lifecycle] Restart after operation failed", "unit", target.Unit.Name, "error", startErr)
			if err == nil {
				err = startErr
			}
		}
	}()
	if stopErr != nil {
		return stopErr
	}
	if session.Stopped().Partial() {
		return fmt.Errorf("failed to stop %d container(s) of %s", len(session.Stopped().Failed), target.Unit.Name)
	}
	return Protect(ctx, fn)
}

// Protect runs fn and converts a panic into an error.
func Protect(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("[Lifecycle] Recovered from panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return fn(ctx)
}
