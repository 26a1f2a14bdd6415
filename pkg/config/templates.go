package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Meridian-Labs/poolrun/pkg/run"
)

// RunTemplate is a named preset of run parameters. Operators keep one YAML
// file per template and create runs from them instead of hand-typing bounds.
type RunTemplate struct {
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	MinDeposit      uint64 `yaml:"min_deposit" json:"min_deposit"`
	MaxDeposit      uint64 `yaml:"max_deposit" json:"max_deposit"`
	MaxParticipants uint16 `yaml:"max_participants" json:"max_participants"`
}

// Validate applies the same parameter rules run creation will.
func (t RunTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template has no name")
	}
	if t.MinDeposit == 0 || t.MaxDeposit < t.MinDeposit {
		return run.ErrInvalidDepositBounds
	}
	if t.MaxParticipants == 0 {
		return run.ErrInvalidParticipantLimit
	}
	return nil
}

// LoadTemplate loads one template YAML by name. It searches the templates
// directory for template_<name>.yaml.
func LoadTemplate(dir, name string) (*RunTemplate, error) {
	name = strings.ToLower(name)
	path := filepath.Join(dir, fmt.Sprintf("template_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", name, err)
	}

	var tpl RunTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	return &tpl, nil
}

// ListTemplates loads every template in the directory. A missing directory
// is not an error; it just means no templates are configured.
func ListTemplates(dir string) ([]RunTemplate, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "template_*.yaml"))
	if err != nil {
		return nil, err
	}
	templates := make([]RunTemplate, 0, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".yaml")
		name := strings.TrimPrefix(base, "template_")
		tpl, err := LoadTemplate(dir, name)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, nil
}
