package inventory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lifecycle-agent/internal/domain/model"
)

const sample = `
hosts:
  - name: web-1
    groups: [web, eu]
    mode: compose
    units:
      - name: shop
        containers:
          - {name: shop-web-1, service: web}
          - {name: shop-db-1, service: db}
        databases:
          - engine: mysql
            container: shop-db-1
            credentials: shop-db
            names: [orders, customers]
            stop_dependents: [shop-web-1]
      - name: auth
        kind: container
  - name: metrics-1
    docker_host: tcp://10.0.0.5:2376
    groups: [eu]
    units:
      - name: tsdb
        dir: /srv/tsdb
        databases:
          - engine: influx
            container: tsdb-influx-1
            endpoint: http://10.0.0.5:8086
            names: [metrics]
`

func newInventory(t *testing.T, content string) *Inventory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return New(path, "/opt/lifecycle/apps")
}

func TestLoadAppliesDefaults(t *testing.T) {
	hosts, err := newInventory(t, sample).Load()
	if err != nil {
		t.Fatal(err)
	}
	shop, _ := hosts[0].Unit("shop")
	if shop.Kind != model.UnitKindCompose || shop.Dir != "/opt/lifecycle/apps/shop" || shop.Host != "web-1" {
		t.Errorf("shop = %+v", shop)
	}
	if shop.Databases[0].Engine != model.EngineMariaDB {
		t.Errorf("engine alias not normalised: %s", shop.Databases[0].Engine)
	}
	auth, _ := hosts[0].Unit("auth")
	if auth.Dir != "" || len(auth.Containers) != 1 || auth.Containers[0].Name != "auth" {
		t.Errorf("auth = %+v", auth)
	}
	if hosts[0].Mode != model.ControlModeCompose || hosts[1].IsLocal() {
		t.Errorf("hosts = %+v", hosts)
	}
}

func TestResolve(t *testing.T) {
	inv := newInventory(t, sample)
	tests := []struct {
		name      string
		scope     model.Scope
		wantHosts []string
		wantUnits int
		wantErr   error
	}{
		{name: "unit", scope: model.Scope{Unit: "tsdb"}, wantHosts: []string{"metrics-1"}, wantUnits: 1},
		{name: "host", scope: model.Scope{Host: "web-1"}, wantHosts: []string{"web-1"}, wantUnits: 2},
		{name: "group", scope: model.Scope{Group: "eu"}, wantHosts: []string{"web-1", "metrics-1"}, wantUnits: 3},
		{name: "group and unit", scope: model.Scope{Group: "web", Unit: "auth"}, wantHosts: []string{"web-1"}, wantUnits: 1},
		{name: "unknown unit", scope: model.Scope{Unit: "billing"}, wantErr: model.ErrUnitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts, err := inv.Resolve(context.Background(), tt.scope)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			units := 0
			for _, h := range hosts {
				names = append(names, h.Name)
				units += len(h.Units)
			}
			if len(names) != len(tt.wantHosts) || units != tt.wantUnits {
				t.Errorf("hosts = %v (%d units), want %v (%d units)", names, units, tt.wantHosts, tt.wantUnits)
			}
		})
	}

	if _, err := inv.Resolve(context.Background(), model.Scope{}); err == nil {
		t.Error("empty scope accepted")
	}
}

func TestInvalidInventory(t *testing.T) {
	tests := map[string]string{
		"missing names":    "hosts:\n  - name: a\n    units:\n      - name: u\n        databases:\n          - {engine: postgres, container: db}\n",
		"bad engine":       "hosts:\n  - name: a\n    units:\n      - name: u\n        databases:\n          - {engine: oracle, container: db, names: [x]}\n",
		"duplicate host":   "hosts:\n  - name: a\n  - name: a\n",
		"unknown field":    "hosts:\n  - name: a\n    role: web\n",
		"bad control mode": "hosts:\n  - name: a\n    mode: ssh\n",
	}
	for name, content := range tests {
		if _, err := newInventory(t, content).Load(); err == nil {
			t.Errorf("%s: inventory accepted", name)
		}
	}
}
