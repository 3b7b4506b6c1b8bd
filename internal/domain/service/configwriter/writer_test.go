package configwriter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"lifecycle-agent/internal/domain/model"
)

const liveCompose = `services:
  web:
    image: registry.local/web:1.0
`

func setupUnit(t *testing.T) model.Unit {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "compose.yml"), []byte(liveCompose), 0o640); err != nil {
		t.Fatal(err)
	}
	return model.Unit{Name: "shop", Kind: model.UnitKindCompose, Dir: dir}
}

func onlyLiveFile(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "compose.yml" {
		t.Errorf("unexpected files in %s: %v", dir, entries)
	}
}

func TestWriteRejectsInvalidDefinition(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken yaml", "services:\n  web: [\n"},
		{"empty document", ""},
		{"no services", "name: shop\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := setupUnit(t)
			err := New(nil).Write(context.Background(), unit, []byte(tt.content))
			if !errors.Is(err, model.ErrValidationFailed) {
				t.Fatalf("Write error = %v, want ErrValidationFailed", err)
			}
			got, _ := os.ReadFile(unit.DefinitionFile())
			if string(got) != liveCompose {
				t.Errorf("live file changed to %q", got)
			}
			onlyLiveFile(t, unit.Dir)
		})
	}
}

func TestWriteReplacesValidDefinition(t *testing.T) {
	unit := setupUnit(t)
	next := "services:\n  web:\n    image: registry.local/web:1.1\n"
	if err := New(nil).Write(context.Background(), unit, []byte(next)); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(unit.DefinitionFile())
	if string(got) != next {
		t.Errorf("live file = %q", got)
	}
	info, _ := os.Stat(unit.DefinitionFile())
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}
	onlyLiveFile(t, unit.Dir)
}

type stagedPathValidator struct{ seen string }

func (v *stagedPathValidator) Validate(_ context.Context, _ model.Unit, stagedPath string) error {
	v.seen = stagedPath
	return errors.New("rejected")
}

func TestValidatorSeesStagedFileInTargetDir(t *testing.T) {
	unit := setupUnit(t)
	v := &stagedPathValidator{}
	_ = New(v).Write(context.Background(), unit, []byte(liveCompose))
	if filepath.Dir(v.seen) != unit.Dir || v.seen == unit.DefinitionFile() {
		t.Errorf("validator ran on %q", v.seen)
	}
}

func TestCommandValidator(t *testing.T) {
	unit := setupUnit(t)
	ok := CommandValidator{Args: []string{"test", "-s", "{file}"}}
	if err := New(ok).Write(context.Background(), unit, []byte(liveCompose)); err != nil {
		t.Errorf("valid content rejected: %v", err)
	}
	if err := New(ok).Write(context.Background(), unit, nil); !errors.Is(err, model.ErrValidationFailed) {
		t.Errorf("empty content accepted: %v", err)
	}
}

func TestServiceImages(t *testing.T) {
	dir := t.TempDir()
	unit := model.Unit{Name: "shop", Dir: dir}
	content := []byte("services:\n  web:\n    image: registry.local/shop/web:latest\n  db:\n    image: mariadb:11\n")

	got, err := ServiceImages(context.Background(), unit, content)
	if err != nil {
		t.Fatalf("ServiceImages: %v", err)
	}
	want := []ServiceImage{
		{Service: "db", Image: "mariadb:11"},
		{Service: "web", Image: "registry.local/shop/web:latest"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ServiceImages = %+v, want %+v", got, want)
	}
}
