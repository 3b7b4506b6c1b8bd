// Package args holds the selection fields shared by commands and queries and
// validates incoming messages.
package args

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"lifecycle-agent/internal/application/plan"
	"lifecycle-agent/internal/domain/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Selection names the units a message applies to.
type Selection struct {
	Unit  string `validate:"required_without_all=Host Group"`
	Host  string
	Group string
}

// Scope converts the selection to a model.Scope.
func (s Selection) Scope() model.Scope {
	return model.Scope{Unit: s.Unit, Host: s.Host, Group: s.Group}
}

// Items narrows a message to the files or the databases of a unit.
type Items struct {
	Files     bool
	Databases bool
	Database  string `validate:"omitempty,excludesall=/\\"`
}

// Filter converts the item selection to a plan.Filter.
func (i Items) Filter() plan.Filter {
	return plan.Filter{Files: i.Files, Databases: i.Databases, Database: i.Database}
}

// Validate checks the struct tags of msg.
func Validate(msg any) error {
	if err := validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// ParseDate parses an artifact date. An empty string is the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.ArtifactDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
