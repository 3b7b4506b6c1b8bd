package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

// GCS keeps artifacts in a Google Cloud Storage bucket under an optional
// object prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ repository.ArtifactStore = (*GCS)(nil)

// NewGCS creates the bucket client. Without a credentials file the
// application default credentials are used.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCS{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (g *GCS) object(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(g.prefix, clean), nil
}

func (g *GCS) key(object string) string {
	if g.prefix == "" {
		return object
	}
	return strings.TrimPrefix(object, g.prefix+"/")
}

func (g *GCS) Put(ctx context.Context, localPath, key string) (model.Artifact, error) {
	name, err := g.object(key)
	if err != nil {
		return model.Artifact{}, err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to open the local file %s: %w", localPath, err)
	}
	defer in.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := copyWithContext(ctx, w, in); err != nil {
		cancel()
		_ = w.Close()
		return model.Artifact{}, fmt.Errorf("failed to copy %s to gs://%s/%s: %w", localPath, g.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	attrs := w.Attrs()
	log.Debug("[Storage] artifact uploaded", "backend", "gcs", "bucket", g.bucket, "object", name, "bytes", attrs.Size)
	return newArtifact(key, attrs.Size, attrs.Updated), nil
}

func (g *GCS) Fetch(ctx context.Context, key, localPath string) error {
	name, err := g.object(key)
	if err != nil {
		return err
	}
	r, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", model.ErrArtifactNotFound, key)
		}
		return fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, name, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return err
	}
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := copyWithContext(ctx, out, r); err != nil {
		out.Close()
		os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Close()
}

func (g *GCS) List(ctx context.Context, prefix string) ([]model.Artifact, error) {
	query := &storage.Query{Prefix: path.Join(g.prefix, prefix)}
	if strings.HasSuffix(prefix, "/") {
		query.Prefix += "/"
	}
	var out []model.Artifact
	it := g.client.Bucket(g.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, query.Prefix, err)
		}
		out = append(out, newArtifact(g.key(attrs.Name), attrs.Size, attrs.Updated))
	}
	return out, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	name, err := g.object(key)
	if err != nil {
		return err
	}
	if err := g.client.Bucket(g.bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error { return g.client.Close() }
