package capabilities

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func stubCommands(t *testing.T, outputs map[string]string) {
	t.Helper()
	prev := commandOutput
	commandOutput = func(name string, args ...string) ([]byte, error) {
		key := name + " " + strings.Join(args, " ")
		for prefix, out := range outputs {
			if strings.HasPrefix(key, prefix) {
				return []byte(out), nil
			}
		}
		return nil, errors.New("not found")
	}
	t.Cleanup(func() { commandOutput = prev })
}

func TestControlMode(t *testing.T) {
	tests := []struct {
		name    string
		outputs map[string]string
		compose bool
		want    string
	}{
		{"compose unit with plugin", map[string]string{"docker version": "28.1.1\n", "docker compose": "v2.29.1\n"}, true, ModeCompose},
		{"single container", map[string]string{"docker version": "28.1.1\n", "docker compose": "2.29.1\n"}, false, ModeDirect},
		{"compose unit without plugin", map[string]string{"docker version": "28.1.1\n"}, true, ModeDirect},
		{"nothing", map[string]string{}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubCommands(t, tt.outputs)
			f := NewCapabilityFactory("", "")
			if got := f.ControlMode(tt.compose); got != tt.want {
				t.Errorf("ControlMode(%v) = %q, want %q", tt.compose, got, tt.want)
			}
		})
	}
}

func TestComposeVersion(t *testing.T) {
	stubCommands(t, map[string]string{"docker compose version": "v2.29.1\n"})
	c := NewDockerComposeCapability("")
	if !c.IsAvailable() || c.Version() != "2.29.1" {
		t.Errorf("compose available=%v version=%q", c.IsAvailable(), c.Version())
	}
}

func TestHostArgs(t *testing.T) {
	got := strings.Join(hostArgs("ssh://deploy@db1", "version"), " ")
	if got != "--host ssh://deploy@db1 version" {
		t.Errorf("hostArgs = %q", got)
	}
}

func TestManagementAPIPreferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-API-Version", "2.21")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stubCommands(t, map[string]string{"docker version": "28.1.1"})
	f := NewCapabilityFactory("", srv.URL)
	if got := f.ControlMode(true); got != ModeAPI {
		t.Errorf("ControlMode = %q, want %q", got, ModeAPI)
	}
	if v := f.GetCapabilityByName(CapabilityManagementAPI).Version(); v != "2.21" {
		t.Errorf("api version = %q", v)
	}
}
