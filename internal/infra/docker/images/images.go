// Package images implements the image repository over the docker engine API:
// describing what a container runs, re-tagging cached images and pulling.
package images

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
	"lifecycle-agent/pkg/semver"
)

// Repository is the docker-backed repository.ImageRepository.
type Repository struct {
	cli  client.APIClient
	auth *authStore
}

var _ repository.ImageRepository = (*Repository)(nil)

// New creates an image repository. dockerConfig points at a docker CLI
// config.json holding registry credentials; empty uses the default location.
func New(cli client.APIClient, dockerConfig string) *Repository {
	return &Repository{cli: cli, auth: newAuthStore(dockerConfig)}
}

// Describe records the reference, image ID, digest and version label of the
// image a container was created from.
func (r *Repository) Describe(ctx context.Context, ref model.ContainerRef) (model.ImageSnapshot, error) {
	info, err := r.cli.ContainerInspect(ctx, ref.Name)
	if err != nil {
		return model.ImageSnapshot{}, fmt.Errorf("failed to inspect container %s: %w", ref.Name, err)
	}
	if info.ContainerJSONBase == nil || info.Config == nil {
		return model.ImageSnapshot{}, fmt.Errorf("container %s has no configuration", ref.Name)
	}

	snap := model.ImageSnapshot{
		Container: ref.Name,
		Service:   ref.Service,
		Reference: info.Config.Image,
		ImageID:   info.Image,
	}

	img, err := r.cli.ImageInspect(ctx, info.Image)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return model.ImageSnapshot{}, fmt.Errorf("failed to inspect image %s: %w", info.Image, err)
		}
		log.Warn("[Images] image of container no longer cached", "container", ref.Name, "image_id", info.Image)
		snap.VersionLabel = semver.Label(info.Config.Labels, snap.Reference)
		return snap, nil
	}

	snap.RepoDigest = repoDigest(img.RepoDigests, snap.Reference)
	var labels map[string]string
	if img.Config != nil {
		labels = img.Config.Labels
	}
	snap.VersionLabel = semver.Label(labels, snap.Reference)
	return snap, nil
}

// repoDigest picks the digest entry matching the repository of reference.
func repoDigest(digests []string, reference string) string {
	repo := reference
	if i := strings.LastIndex(repo, ":"); i > strings.LastIndex(repo, "/") {
		repo = repo[:i]
	}
	for _, d := range digests {
		if strings.HasPrefix(d, repo+"@") {
			return d
		}
	}
	if len(digests) > 0 {
		return digests[0]
	}
	return ""
}

// Present reports whether imageID is still in the local cache.
func (r *Repository) Present(ctx context.Context, imageID string) (bool, error) {
	if imageID == "" {
		return false, nil
	}
	if _, err := r.cli.ImageInspect(ctx, imageID); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", imageID, err)
	}
	return true, nil
}

// Tag points reference at the cached image imageID.
func (r *Repository) Tag(ctx context.Context, imageID, reference string) error {
	if err := r.cli.ImageTag(ctx, imageID, reference); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", imageID, reference, err)
	}
	log.Info("[Images] image re-tagged", "image_id", imageID, "reference", reference)
	return nil
}

// Pull fetches reference, authenticating with the docker CLI credentials of
// its registry when present.
func (r *Repository) Pull(ctx context.Context, reference string) error {
	auth, err := r.auth.encoded(reference)
	if err != nil {
		return fmt.Errorf("failed to encode registry credentials: %w", err)
	}
	pull, err := r.cli.ImagePull(ctx, reference, image.PullOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", reference, err)
	}
	defer pull.Close()
	if _, err := io.Copy(io.Discard, pull); err != nil {
		return fmt.Errorf("pull image %q: %w", reference, err)
	}
	log.Info("[Images] image pulled", "reference", reference)
	return nil
}
