// Package archive captures and replaces unit directories as compressed tar
// streams.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/compress"
	"lifecycle-agent/pkg/log"
)

const (
	stagingSuffix  = ".lifecycle-restore"
	previousSuffix = ".lifecycle-previous"
)

// Archiver is the tar-based repository.Archiver.
type Archiver struct {
	codec compress.Codec
}

var _ repository.Archiver = (*Archiver)(nil)

// New creates an archiver writing with the named compressor.
func New(compressor string) (*Archiver, error) {
	codec, err := compress.ByName(compressor)
	if err != nil {
		return nil, err
	}
	return &Archiver{codec: codec}, nil
}

// Extension returns "tar.<codec extension>".
func (a *Archiver) Extension() string {
	return "tar." + a.codec.Extension()
}

// Archive writes dir as a compressed tar stream to destPath and returns the
// artifact size. Entries are stored relative to dir.
func (a *Archiver) Archive(ctx context.Context, dir, destPath string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create artifact directory: %w", err)
	}

	partial := destPath + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partial, err)
	}
	defer os.Remove(partial)

	if err := a.write(ctx, dir, f); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(partial, destPath); err != nil {
		return 0, fmt.Errorf("move archive into place: %w", err)
	}

	st, err := os.Stat(destPath)
	if err != nil {
		return 0, err
	}
	log.Debug("[Archive] Archived directory", "dir", dir, "artifact", destPath, "size", st.Size())
	return st.Size(), nil
}

func (a *Archiver) write(ctx context.Context, dir string, w io.Writer) error {
	zw, err := a.codec.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			log.Debug("[Archive] Skipping special file", "path", path)
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		_ = src.Close()
		return err
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = zw.Close()
		return fmt.Errorf("archive %s: %w", dir, walkErr)
	}
	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return fmt.Errorf("finish tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish %s stream: %w", a.codec.Name(), err)
	}
	return nil
}

// Extract replaces dir with the content of the archive at sourcePath. The
// archive is unpacked into a sibling staging directory first; dir is only
// swapped once extraction completed, so a corrupt archive leaves it intact.
func (a *Archiver) Extract(ctx context.Context, sourcePath, dir string) error {
	codec, ok := compress.ForPath(sourcePath)
	if !ok {
		codec = a.codec
	}

	dir = filepath.Clean(dir)
	staging := dir + stagingSuffix
	previous := dir + previousSuffix
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("open archive: %w", err)
	}
	err = unpack(ctx, codec, f, staging)
	_ = f.Close()
	if err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("extract %s: %w", filepath.Base(sourcePath), err)
	}

	if err := os.RemoveAll(previous); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("clear previous directory: %w", err)
	}
	hadDir := true
	if err := os.Rename(dir, previous); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			_ = os.RemoveAll(staging)
			return fmt.Errorf("move live directory aside: %w", err)
		}
		hadDir = false
	}
	if err := os.Rename(staging, dir); err != nil {
		if hadDir {
			if rbErr := os.Rename(previous, dir); rbErr != nil {
				log.Error("[Archive] Failed to put live directory back", "dir", dir, "error", rbErr)
			}
		}
		_ = os.RemoveAll(staging)
		return fmt.Errorf("swap restored directory into place: %w", err)
	}
	if hadDir {
		if err := os.RemoveAll(previous); err != nil {
			log.Warn("[Archive] Failed to remove previous directory", "path", previous, "error", err)
		}
	}
	log.Debug("[Archive] Extracted archive", "artifact", sourcePath, "dir", dir)
	return nil
}

func unpack(ctx context.Context, codec compress.Codec, r io.Reader, target string) error {
	zr, err := codec.NewReader(r)
	if err != nil {
		return fmt.Errorf("open %s stream: %w", codec.Name(), err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		path, err := entryPath(target, hdr.Name)
		if err != nil {
			return err
		}
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				return err
			}
		default:
			log.Debug("[Archive] Skipping unsupported entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

// entryPath resolves an archive entry below target, rejecting entries that
// would escape it.
func entryPath(target, name string) (string, error) {
	path := filepath.Join(target, filepath.FromSlash(name))
	if path != target && !strings.HasPrefix(path, target+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid entry path %q", name)
	}
	return path, nil
}

// Verify reads the archive at sourcePath completely, checking both the
// compressed stream and the tar structure.
func (a *Archiver) Verify(ctx context.Context, sourcePath string) error {
	codec, ok := compress.ForPath(sourcePath)
	if !ok {
		codec = a.codec
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if !strings.Contains(filepath.Base(sourcePath), ".tar.") {
		if _, err := codec.Verify(f); err != nil {
			return fmt.Errorf("verify %s: %w", filepath.Base(sourcePath), err)
		}
		return nil
	}

	zr, err := codec.NewReader(f)
	if err != nil {
		return fmt.Errorf("verify %s: %w", filepath.Base(sourcePath), err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("verify %s: %w", filepath.Base(sourcePath), err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return fmt.Errorf("verify %s: %w", filepath.Base(sourcePath), err)
		}
		entries++
	}
	if entries == 0 {
		return fmt.Errorf("verify %s: archive is empty", filepath.Base(sourcePath))
	}
	return nil
}
