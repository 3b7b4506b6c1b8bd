package storage

import (
	"context"
	"fmt"
	"sort"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// Prune deletes the artifacts of identifier under prefix beyond the newest
// keep, ordered by the date in their name. Failed markers and successful
// artifacts are counted separately so a run of failures never evicts the
// last good backup. keep <= 0 keeps everything.
func Prune(ctx context.Context, store repository.ArtifactStore, prefix, identifier string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	artifacts, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	type dated struct {
		model.Artifact
		info model.ArtifactInfo
	}
	var good, failed []dated
	for _, a := range artifacts {
		info, ok := model.ParseArtifactName(a.Name)
		if !ok || info.Identifier != identifier {
			continue
		}
		if info.Failed {
			failed = append(failed, dated{a, info})
		} else {
			good = append(good, dated{a, info})
		}
	}

	var deleted []string
	for _, group := range [][]dated{good, failed} {
		sort.Slice(group, func(i, j int) bool {
			if !group[i].info.Date.Equal(group[j].info.Date) {
				return group[i].info.Date.After(group[j].info.Date)
			}
			return group[i].Modified.After(group[j].Modified)
		})
		if len(group) <= keep {
			continue
		}
		for _, a := range group[keep:] {
			if err := store.Delete(ctx, a.Location); err != nil {
				return deleted, fmt.Errorf("failed to prune %s: %w", a.Location, err)
			}
			deleted = append(deleted, a.Location)
		}
	}
	if len(deleted) > 0 {
		log.Info("[Storage] pruned old artifacts", "identifier", identifier, "deleted", len(deleted), "keep", keep)
	}
	return deleted, nil
}
