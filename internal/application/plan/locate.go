package plan

import (
	"context"
	"fmt"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// Locate returns the newest successful artifact of identifier under prefix.
// A non-zero date restricts the search to artifacts taken that day.
func Locate(ctx context.Context, store repository.ArtifactStore, prefix, identifier string, date time.Time) (model.Artifact, error) {
	artifacts, err := store.List(ctx, prefix)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("list %s: %w", prefix, err)
	}

	var (
		best     model.Artifact
		bestInfo model.ArtifactInfo
		found    bool
	)
	for _, a := range artifacts {
		info, ok := model.ParseArtifactName(a.Name)
		if !ok || info.Failed || info.Identifier != identifier {
			continue
		}
		if !date.IsZero() && info.Date.Format(model.ArtifactDateLayout) != date.UTC().Format(model.ArtifactDateLayout) {
			continue
		}
		if !found || info.Date.After(bestInfo.Date) || (info.Date.Equal(bestInfo.Date) && a.Modified.After(best.Modified)) {
			best, bestInfo, found = a, info, true
		}
	}
	if !found {
		if date.IsZero() {
			return model.Artifact{}, fmt.Errorf("%w: %s in %s", model.ErrArtifactNotFound, identifier, prefix)
		}
		return model.Artifact{}, fmt.Errorf("%w: %s in %s on %s", model.ErrArtifactNotFound, identifier, prefix, date.Format(model.ArtifactDateLayout))
	}
	return best, nil
}
