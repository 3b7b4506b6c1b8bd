package configwriter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/yaml"
)

// ComposeValidator loads a staged file as a compose project.
type ComposeValidator struct{}

var _ repository.DefinitionValidator = ComposeValidator{}

func (ComposeValidator) Validate(ctx context.Context, unit model.Unit, stagedPath string) error {
	data, err := os.ReadFile(stagedPath)
	if err != nil {
		return err
	}
	if err := yaml.Validate(data); err != nil {
		return err
	}

	project, err := loadProject(ctx, unit, stagedPath, data)
	if err != nil {
		return err
	}
	if len(project.Services) == 0 {
		return fmt.Errorf("compose definition has no services")
	}
	return nil
}

func loadProject(ctx context.Context, unit model.Unit, filename string, data []byte) (*compose.Project, error) {
	workingDir := unit.Dir
	if workingDir == "" {
		workingDir = filepath.Dir(filename)
	}
	details := compose.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []compose.ConfigFile{
			{Filename: filename, Content: data},
		},
		Environment: compose.Mapping{},
	}
	project, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(projectName(unit), true)
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose definition: %w", err)
	}
	return project, nil
}

// ServiceImage is the image reference a compose service is declared with.
type ServiceImage struct {
	Service string
	Image   string
}

// ServiceImages returns the image of every service of a compose definition
// that declares one, sorted by service name.
func ServiceImages(ctx context.Context, unit model.Unit, content []byte) ([]ServiceImage, error) {
	project, err := loadProject(ctx, unit, unit.DefinitionFile(), content)
	if err != nil {
		return nil, err
	}
	var out []ServiceImage
	for name, svc := range project.Services {
		if svc.Image != "" {
			out = append(out, ServiceImage{Service: name, Image: svc.Image})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func projectName(unit model.Unit) string {
	name := strings.ToLower(model.Identifier(unit.Name))
	name = strings.ReplaceAll(name, ".", "-")
	if name == "" {
		return "unit"
	}
	return name
}

// CommandValidator runs an external check command. Arguments equal to
// "{file}" are replaced with the staged path, e.g.
// ["docker", "compose", "-f", "{file}", "config", "--quiet"].
type CommandValidator struct {
	Args []string
}

var _ repository.DefinitionValidator = CommandValidator{}

func (v CommandValidator) Validate(ctx context.Context, unit model.Unit, stagedPath string) error {
	if len(v.Args) == 0 {
		return fmt.Errorf("no validation command configured")
	}
	args := make([]string, len(v.Args))
	for i, a := range v.Args {
		args[i] = strings.ReplaceAll(a, "{file}", stagedPath)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = unit.Dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
