// Package storage implements the durable artifact stores: a local directory,
// an SFTP server and a Google Cloud Storage bucket. Keys are slash separated
// and laid out as <host>/<unit>/<artifact name>.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
)

// Key builds the storage key of an artifact.
func Key(host, unit, name string) string {
	return path.Join(host, unit, name)
}

// Prefix returns the key prefix of every artifact of a unit on a host.
func Prefix(host, unit string) string {
	return path.Join(host, unit) + "/"
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "../") || clean != strings.TrimSuffix(key, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return clean, nil
}

// New opens the backend selected by cfg.Storage.
func New(ctx context.Context, cfg *config.Config) (repository.ArtifactStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal, "":
		return NewLocal(cfg.Storage.Path), nil
	case config.StorageSFTP:
		return NewSFTP(cfg.Storage.SFTP)
	case config.StorageGCS:
		return NewGCS(ctx, cfg.Storage.GCS)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// copyWithContext copies src to dst and stops between chunks once ctx is done.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func newArtifact(key string, size int64, modified time.Time) model.Artifact {
	return model.Artifact{Name: path.Base(key), Location: key, Size: size, Modified: modified}
}
