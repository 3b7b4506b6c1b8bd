// Package secrets resolves named credentials from a YAML secrets file, with
// environment variables taking precedence. Values stay opaque: they are
// returned as redacting Value strings and never logged.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/log"
	"lifecycle-agent/pkg/yaml"
)

// Value is a credential value that redacts itself when printed or logged.
type Value = model.Secret

// EnvPrefix starts every credential environment variable:
// LIFECYCLE_<NAME>_USER, _PASSWORD, _TOKEN and _ORG.
const EnvPrefix = "LIFECYCLE_"

type entry struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	Org      string `yaml:"org"`
}

// Source is the file and environment backed repository.CredentialSource.
type Source struct {
	path      string
	lookupEnv func(string) (string, bool)

	once    sync.Once
	entries map[string]entry
	loadErr error
}

var _ repository.CredentialSource = (*Source)(nil)

// NewSource creates a source reading path lazily. A missing file is not an
// error; credentials may come from the environment alone.
func NewSource(path string) *Source {
	return &Source{path: path, lookupEnv: os.LookupEnv}
}

func (s *Source) load() {
	s.entries = map[string]entry{}
	if s.path == "" {
		return
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("[Secrets] secrets file not found, using environment only", "path", s.path)
		return
	}
	if err != nil {
		s.loadErr = fmt.Errorf("failed to stat secrets file: %w", err)
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		log.Warn("[Secrets] secrets file is readable by other users", "path", s.path, "mode", info.Mode().Perm().String())
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.loadErr = fmt.Errorf("failed to read secrets file: %w", err)
		return
	}
	if err := yaml.UnmarshalStrict(data, &s.entries); err != nil {
		s.loadErr = fmt.Errorf("failed to parse secrets file %s: %w", s.path, err)
	}
}

// EnvName returns the environment variable carrying field of credential name.
func EnvName(name, field string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	b.WriteString(field)
	return b.String()
}

// Credentials resolves name. An empty name yields empty credentials so
// engines fall back to their default user.
func (s *Source) Credentials(_ context.Context, name string) (model.Credentials, error) {
	if name == "" {
		return model.Credentials{}, nil
	}
	s.once.Do(s.load)
	if s.loadErr != nil {
		return model.Credentials{}, s.loadErr
	}

	e, found := s.entries[name]
	override := func(field string, dst *string) {
		if v, ok := s.lookupEnv(EnvName(name, field)); ok {
			*dst = v
			found = true
		}
	}
	override("USER", &e.User)
	override("PASSWORD", &e.Password)
	override("TOKEN", &e.Token)
	override("ORG", &e.Org)
	if !found {
		return model.Credentials{}, fmt.Errorf("credential %q not found", name)
	}
	return model.Credentials{
		User:     e.User,
		Password: Value(e.Password),
		Token:    Value(e.Token),
		Org:      e.Org,
	}, nil
}

// Token resolves the token of credential name.
func (s *Source) Token(ctx context.Context, name string) (Value, error) {
	creds, err := s.Credentials(ctx, name)
	if err != nil {
		return "", err
	}
	return creds.Token, nil
}
