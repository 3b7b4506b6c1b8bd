package images

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/registry"

	"lifecycle-agent/pkg/log"
)

const dockerHubIndex = "https://index.docker.io/v1/"

// authStore resolves registry credentials from the docker CLI configuration
// (~/.docker/config.json) so pulls through the engine API authenticate the
// same way `docker pull` does.
type authStore struct {
	path string

	once  sync.Once
	auths map[string]registry.AuthConfig
}

func newAuthStore(path string) *authStore {
	if path == "" {
		p, err := dockerConfigPath()
		if err != nil {
			log.Warn("[Images] cannot locate docker config", "error", err)
		}
		path = p
	}
	return &authStore{path: path}
}

// dockerConfigPath resolves the path to the docker configuration file while
// taking the DOCKER_CONFIG environment variable into account.
func dockerConfigPath() (string, error) {
	dir := os.Getenv("DOCKER_CONFIG")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("unable to determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".docker")
	}
	return filepath.Join(dir, "config.json"), nil
}

func (s *authStore) load() {
	s.auths = map[string]registry.AuthConfig{}
	if s.path == "" {
		return
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("[Images] failed to read docker config", "path", s.path, "error", err)
		}
		return
	}

	var cfg struct {
		Auths map[string]struct {
			Auth          string `json:"auth"`
			Username      string `json:"username"`
			Password      string `json:"password"`
			IdentityToken string `json:"identitytoken"`
		} `json:"auths"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Warn("[Images] failed to parse docker config", "path", s.path, "error", err)
		return
	}

	for addr, entry := range cfg.Auths {
		ac := registry.AuthConfig{
			Username:      entry.Username,
			Password:      entry.Password,
			IdentityToken: entry.IdentityToken,
			ServerAddress: addr,
		}
		if entry.Auth != "" {
			decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
			if err != nil {
				log.Warn("[Images] ignoring malformed auth entry", "registry", addr)
				continue
			}
			user, pass, ok := strings.Cut(string(decoded), ":")
			if !ok {
				continue
			}
			ac.Username, ac.Password = user, pass
		}
		s.auths[normalizeRegistry(addr)] = ac
	}
}

// encoded returns the X-Registry-Auth value for reference, or "" when no
// credentials are configured for its registry.
func (s *authStore) encoded(reference string) (string, error) {
	s.once.Do(s.load)
	ac, ok := s.auths[registryHost(reference)]
	if !ok {
		return "", nil
	}
	return registry.EncodeAuthConfig(ac)
}

// registryHost returns the registry part of an image reference, using the
// docker hub index for references without one.
func registryHost(reference string) string {
	first, _, ok := strings.Cut(reference, "/")
	if !ok {
		return normalizeRegistry(dockerHubIndex)
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return normalizeRegistry(first)
	}
	return normalizeRegistry(dockerHubIndex)
}

func normalizeRegistry(addr string) string {
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimPrefix(addr, "http://")
	addr, _, _ = strings.Cut(addr, "/")
	switch addr {
	case "index.docker.io", "registry-1.docker.io", "docker.io":
		return "docker.io"
	}
	return addr
}
