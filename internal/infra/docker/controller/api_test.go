package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"lifecycle-agent/internal/domain/model"
)

type fakeManagementAPI struct {
	mu     sync.Mutex
	states map[string]string
	auth   []string
	posts  []string
}

func (f *fakeManagementAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/containers/"), "/")
	name := parts[0]
	state, ok := f.states[name]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(containerStatus{Name: name, State: state})
		return
	}
	f.posts = append(f.posts, r.URL.RequestURI())
	switch parts[1] {
	case "stop":
		if name == "stuck" {
			http.Error(w, "stop timed out", http.StatusInternalServerError)
			return
		}
		f.states[name] = "exited"
	case "start", "recreate":
		f.states[name] = "running"
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestAPIStopStart(t *testing.T) {
	api := &fakeManagementAPI{states: map[string]string{"web": "running", "cache": "exited", "stuck": "running"}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctrl := NewAPI(srv.URL+"/", model.Secret("s3cret"), 5*time.Second)
	target := model.Target{Unit: model.Unit{Name: "shop"}, Containers: []model.ContainerRef{{Name: "web"}, {Name: "cache"}, {Name: "gone"}, {Name: "stuck"}}}

	stop, err := ctrl.Stop(context.Background(), target, model.Allowing("backup"))
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := names(stop.Stopped); !reflect.DeepEqual(got, []string{"web"}) {
		t.Errorf("Stopped = %v", got)
	}
	if got := names(stop.AlreadyStopped); !reflect.DeepEqual(got, []string{"cache", "gone"}) {
		t.Errorf("AlreadyStopped = %v", got)
	}
	if _, ok := stop.Failed["stuck"]; !ok {
		t.Errorf("Failed = %v", stop.Failed)
	}
	if api.posts[0] != "/api/containers/web/stop?t=5" {
		t.Errorf("stop request = %s", api.posts[0])
	}
	for _, a := range api.auth {
		if a != "Bearer s3cret" {
			t.Fatalf("Authorization = %q", a)
		}
	}

	start, err := ctrl.Start(context.Background(), model.Target{Unit: target.Unit, Containers: stop.Stopped}, model.Allowing("backup"))
	if err != nil || !start.OK() {
		t.Fatalf("Start = %+v, %v", start, err)
	}
	if api.states["web"] != "running" {
		t.Errorf("web state = %s", api.states["web"])
	}
}

func TestAPIRunning(t *testing.T) {
	api := &fakeManagementAPI{states: map[string]string{"web": "running", "cache": "exited"}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctrl := NewAPI(srv.URL, "", time.Second)
	target := model.Target{Unit: model.Unit{Name: "shop"}, Containers: []model.ContainerRef{{Name: "web"}, {Name: "cache"}, {Name: "gone"}}}
	running, err := ctrl.Running(context.Background(), target)
	if err != nil || !reflect.DeepEqual(names(running), []string{"web"}) {
		t.Errorf("Running = %v, %v", running, err)
	}
	if api.auth[0] != "" {
		t.Errorf("unexpected Authorization header %q", api.auth[0])
	}
}

func TestNewSelectsMode(t *testing.T) {
	fake := newFakeDocker(nil)
	tests := []struct {
		opts    Options
		want    model.ControlMode
		wantErr bool
	}{
		{opts: Options{Mode: model.ControlModeDirect, Client: fake}, want: model.ControlModeDirect},
		{opts: Options{Mode: model.ControlModeCompose, Client: fake}, want: model.ControlModeCompose},
		{opts: Options{Mode: model.ControlModeAPI, APIURL: "http://127.0.0.1:9000"}, want: model.ControlModeAPI},
		{opts: Options{Mode: model.ControlModeDirect}, wantErr: true},
		{opts: Options{Mode: model.ControlModeAPI}, wantErr: true},
		{opts: Options{Mode: "ssh"}, wantErr: true},
	}
	for _, tt := range tests {
		ctrl, err := New(tt.opts)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%s) err = %v, wantErr %v", tt.opts.Mode, err, tt.wantErr)
			continue
		}
		if err == nil && ctrl.Mode() != tt.want {
			t.Errorf("New(%s).Mode() = %s", tt.opts.Mode, ctrl.Mode())
		}
	}
}
