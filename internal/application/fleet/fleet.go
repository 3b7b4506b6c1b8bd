// Package fleet fans an operation out over hosts. Hosts run in parallel; the
// work for one host runs sequentially in its own goroutine.
package fleet

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/log"
)

// DefaultParallelism bounds concurrent hosts when none is configured.
const DefaultParallelism = 4

// ForEachHost runs fn once per host with at most limit hosts in flight. A
// failing host does not stop the others, except for a safety-critical error,
// which cancels hosts that have not started yet. All host errors are joined.
func ForEachHost(ctx context.Context, hosts []model.Host, limit int, fn func(ctx context.Context, host model.Host) error) error {
	if limit <= 0 {
		limit = DefaultParallelism
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(limit)
	errs := make([]error, len(hosts))
	for i, host := range hosts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("host %s: %w", host.Name, err)
				return nil
			}
			err := fn(ctx, host)
			if err == nil {
				return nil
			}
			errs[i] = fmt.Errorf("host %s: %w", host.Name, err)
			if model.ClassOf(err) == model.ClassSafetyCritical {
				log.Error("[Fleet] Safety-critical failure, cancelling remaining hosts", "host", host.Name, "error", err)
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
