package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// Local keeps artifacts in a directory tree, typically a mounted backup
// volume.
type Local struct {
	root string
}

var _ repository.ArtifactStore = (*Local)(nil)

// NewLocal creates a store rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// copyFile copies src to dst through a temporary file in dst's directory.
func copyFile(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := copyWithContext(ctx, tmp, in)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), dst)
}

func (l *Local) Put(ctx context.Context, localPath, key string) (model.Artifact, error) {
	dst, err := l.path(key)
	if err != nil {
		return model.Artifact{}, err
	}
	if _, err := copyFile(ctx, localPath, dst); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to store %s: %w", key, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return model.Artifact{}, err
	}
	return newArtifact(key, info.Size(), info.ModTime()), nil
}

func (l *Local) Fetch(ctx context.Context, key, localPath string) error {
	src, err := l.path(key)
	if err != nil {
		return err
	}
	if _, err := copyFile(ctx, src, localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrArtifactNotFound, key)
		}
		return fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	return nil
}

// List returns the artifacts whose key starts with prefix. Hidden temporary
// files are skipped.
func (l *Local) List(_ context.Context, prefix string) ([]model.Artifact, error) {
	dir := l.root
	namePrefix := ""
	if prefix != "" {
		clean, err := cleanKey(strings.TrimSuffix(prefix, "/"))
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(prefix, "/") {
			dir = filepath.Join(l.root, filepath.FromSlash(clean))
		} else {
			dir = filepath.Join(l.root, filepath.FromSlash(filepath.Dir(clean)))
			namePrefix = filepath.Base(clean)
		}
	}

	var out []model.Artifact
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if namePrefix != "" && !strings.HasPrefix(strings.TrimPrefix(p, dir+string(filepath.Separator)), namePrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, newArtifact(key, info.Size(), info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return out, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
