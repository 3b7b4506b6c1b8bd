// Package pull fetches image references with bounded retry.
package pull

import (
	"context"
	"fmt"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/backoff"
	"lifecycle-agent/pkg/log"
)

// Policy bounds the retries of one pull.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout limits each attempt.
	Timeout time.Duration
}

// Image pulls reference, retrying failed attempts with exponential backoff.
// The returned error is classified transient.
func Image(ctx context.Context, images repository.ImageRepository, reference string, p Policy) error {
	attempt := 0
	err := backoff.Retry(ctx, p.Attempts, backoff.New(p.BaseDelay, p.MaxDelay), func(ctx context.Context) error {
		attempt++
		pullCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			pullCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := images.Pull(pullCtx, reference)
		if err != nil {
			log.Warn("[Pull] Attempt failed", "reference", reference, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return model.Classify(model.ClassTransient, fmt.Errorf("pull %s after %d attempt(s): %w", reference, attempt, err))
	}
	log.Info("[Pull] Image pulled", "reference", reference, "attempts", attempt)
	return nil
}
