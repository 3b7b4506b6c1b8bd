package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
)

const sftpDialTimeout = 30 * time.Second

// SFTP keeps artifacts on a remote host reachable over SSH. A connection is
// opened per call; artifact transfers are few and large.
type SFTP struct {
	address string
	root    string
	config  *ssh.ClientConfig
}

var _ repository.ArtifactStore = (*SFTP)(nil)

// NewSFTP prepares the SSH client configuration. Host keys are checked
// against the known_hosts file, which is required.
func NewSFTP(cfg config.SFTPConfig) (*SFTP, error) {
	keyBytes, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if cfg.KnownHostsFile == "" {
		return nil, fmt.Errorf("sftp storage requires a known_hosts file")
	}
	hostKeyCallback, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &SFTP{
		address: cfg.Address,
		root:    root,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         sftpDialTimeout,
		},
	}, nil
}

// connect opens an SSH connection and an SFTP session on it. The returned
// closer releases both.
func (s *SFTP) connect(ctx context.Context) (*sftp.Client, func(), error) {
	dialer := net.Dialer{Timeout: sftpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", s.address, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.address, s.config)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s failed: %w", s.address, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	// unblock transfers when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	return client, func() {
		stop()
		client.Close()
		sshClient.Close()
	}, nil
}

func (s *SFTP) remote(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return path.Join(s.root, clean), nil
}

func (s *SFTP) Put(ctx context.Context, localPath, key string) (model.Artifact, error) {
	remotePath, err := s.remote(key)
	if err != nil {
		return model.Artifact{}, err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to open local file: %w", err)
	}
	defer in.Close()

	client, closeFn, err := s.connect(ctx)
	if err != nil {
		return model.Artifact{}, err
	}
	defer closeFn()

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return model.Artifact{}, fmt.Errorf("failed to create remote directory: %w", err)
	}
	partial := remotePath + ".partial"
	out, err := client.Create(partial)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("failed to create remote file: %w", err)
	}
	n, err := copyWithContext(ctx, out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = client.Remove(partial)
		return model.Artifact{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := client.PosixRename(partial, remotePath); err != nil {
		_ = client.Remove(partial)
		return model.Artifact{}, fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	log.Debug("[Storage] artifact uploaded", "backend", "sftp", "key", key, "bytes", n)
	return newArtifact(key, n, time.Now()), nil
}

func (s *SFTP) Fetch(ctx context.Context, key, localPath string) error {
	remotePath, err := s.remote(key)
	if err != nil {
		return err
	}
	client, closeFn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	in, err := client.Open(remotePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrArtifactNotFound, key)
		}
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return err
	}
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := copyWithContext(ctx, out, in); err != nil {
		out.Close()
		os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Close()
}

func (s *SFTP) List(ctx context.Context, prefix string) ([]model.Artifact, error) {
	client, closeFn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	dirKey, namePrefix := prefix, ""
	if !strings.HasSuffix(prefix, "/") {
		dirKey, namePrefix = path.Dir(prefix), path.Base(prefix)
	}
	dir := path.Join(s.root, dirKey)

	var out []model.Artifact
	walker := client.Walk(dir)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		info := walker.Stat()
		if info.IsDir() || strings.HasSuffix(info.Name(), ".partial") {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), s.root), "/")
		if namePrefix != "" && !strings.HasPrefix(info.Name(), namePrefix) {
			continue
		}
		out = append(out, newArtifact(rel, info.Size(), info.ModTime()))
	}
	return out, nil
}

func (s *SFTP) Delete(ctx context.Context, key string) error {
	remotePath, err := s.remote(key)
	if err != nil {
		return err
	}
	client, closeFn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := client.Remove(remotePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
