package controller

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"lifecycle-agent/internal/domain/model"
)

func names(refs []model.ContainerRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name)
	}
	return out
}

func TestDirectStopCollectsFailures(t *testing.T) {
	fake := newFakeDocker(map[string]string{"a": "running", "b": "exited", "d": "running"})
	fake.stopErr["d"] = errors.New("timeout")
	ctrl := NewDirect(fake, time.Second)

	target := model.Target{Unit: model.Unit{Name: "shop"}, Containers: []model.ContainerRef{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}}
	res, err := ctrl.Stop(context.Background(), target, model.Allowing("backup"))
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := names(res.Stopped); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Stopped = %v", got)
	}
	if got := names(res.AlreadyStopped); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("AlreadyStopped = %v", got)
	}
	if _, ok := res.Failed["d"]; !ok || !res.Partial() {
		t.Errorf("Failed = %v, want d", res.Failed)
	}
}

func TestDirectGuardDenied(t *testing.T) {
	fake := newFakeDocker(map[string]string{"a": "running"})
	ctrl := NewDirect(fake, time.Second)
	target := model.Target{Unit: model.Unit{Name: "shop", Containers: []model.ContainerRef{{Name: "a"}}}}
	guard := model.Denying("maintenance window")

	stop, _ := ctrl.Stop(context.Background(), target, guard)
	start, _ := ctrl.Start(context.Background(), target, guard)
	if len(fake.calls) != 0 {
		t.Fatalf("docker was called under a denying guard: %v", fake.calls)
	}
	if stop.Guard != guard || !start.Skipped {
		t.Errorf("stop=%+v start=%+v", stop, start)
	}
}

func TestDirectStartAndRunning(t *testing.T) {
	fake := newFakeDocker(map[string]string{"a": "exited", "b": "exited"})
	ctrl := NewDirect(fake, time.Second)
	target := model.Target{Unit: model.Unit{Name: "shop"}, Containers: []model.ContainerRef{{Name: "a"}, {Name: "missing"}}}

	res, err := ctrl.Start(context.Background(), target, model.Allowing("backup"))
	if err != nil {
		t.Fatal(err)
	}
	if res.OK() || !reflect.DeepEqual(names(res.Started), []string{"a"}) {
		t.Errorf("Start = %+v", res)
	}
	running, err := ctrl.Running(context.Background(), target)
	if err != nil || !reflect.DeepEqual(names(running), []string{"a"}) {
		t.Errorf("Running = %v, %v", running, err)
	}
}

func TestDirectRecreate(t *testing.T) {
	fake := newFakeDocker(nil)
	old := fake.add("auth", "running", "")
	old.image = "registry.local/auth:latest"
	ctrl := NewDirect(fake, time.Second)

	target := model.Target{Unit: model.Unit{Name: "auth"}, Containers: []model.ContainerRef{{Name: "auth"}}}
	if err := ctrl.Recreate(context.Background(), target); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	want := []string{
		"Inspect auth",
		"Stop c001",
		"Rename c001 auth-lifecycle-replaced",
		"Create auth registry.local/auth:latest",
		"Start c002",
		"Remove c001",
	}
	if !reflect.DeepEqual(fake.calls, want) {
		t.Errorf("calls = %v\nwant %v", fake.calls, want)
	}
	if len(fake.containers) != 1 || fake.stateOf("auth") != "running" {
		t.Errorf("unexpected containers after recreate: %+v", fake.containers)
	}
}

func TestDirectRecreateRestoresOnCreateFailure(t *testing.T) {
	fake := newFakeDocker(map[string]string{"auth": "running"})
	fake.createErr = errors.New("no such image")
	ctrl := NewDirect(fake, time.Second)

	target := model.Target{Unit: model.Unit{Name: "auth"}, Containers: []model.ContainerRef{{Name: "auth"}}}
	if err := ctrl.Recreate(context.Background(), target); err == nil {
		t.Fatal("Recreate succeeded despite create failure")
	}
	if fake.stateOf("auth") != "running" {
		t.Errorf("original container not restored: %v", fake.calls)
	}
	if _, ok := fake.containers["c001"]; !ok {
		t.Error("original container was removed")
	}
}
