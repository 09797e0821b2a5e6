package core

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed team.yaml
var defaultTeamYAML []byte

// DefaultProjectName names a project added without a name.
const DefaultProjectName = "Новый проект"

type (
	// TeamTemplate describes the members and project names a fresh
	// document starts with.
	TeamTemplate struct {
		Defaults TemplateDefaults `yaml:"defaults"`
		Members  []MemberTemplate `yaml:"members"`
	}

	TemplateDefaults struct {
		Goal      float64 `yaml:"goal"`
		Budget    float64 `yaml:"budget"`
		TargetCPA float64 `yaml:"targetCpa"`
	}

	MemberTemplate struct {
		Name     string   `yaml:"name"`
		Projects []string `yaml:"projects"`
	}
)

// DefaultTeam returns the built-in roster.
func DefaultTeam() TeamTemplate {
	t, err := ParseTeam(defaultTeamYAML)
	if err != nil {
		panic(fmt.Sprintf("core: built-in team template: %v", err))
	}
	return t
}

// LoadTeam reads a roster from a YAML file. An empty path yields the
// built-in roster.
func LoadTeam(path string) (TeamTemplate, error) {
	if path == "" {
		return DefaultTeam(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TeamTemplate{}, fmt.Errorf("read team file: %w", err)
	}
	return ParseTeam(data)
}

// ParseTeam decodes a YAML roster, filling missing defaults.
func ParseTeam(data []byte) (TeamTemplate, error) {
	var t TeamTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return TeamTemplate{}, fmt.Errorf("parse team template: %w", err)
	}
	if t.Defaults.Goal == 0 {
		t.Defaults.Goal = DefaultGoal
	}
	if t.Defaults.Budget == 0 {
		t.Defaults.Budget = DefaultBudget
	}
	if t.Defaults.TargetCPA == 0 {
		t.Defaults.TargetCPA = DefaultTargetCPA
	}
	seen := make(map[string]bool, len(t.Members))
	for _, m := range t.Members {
		if m.Name == "" {
			return TeamTemplate{}, fmt.Errorf("parse team template: member without name")
		}
		if seen[m.Name] {
			return TeamTemplate{}, fmt.Errorf("parse team template: duplicate member %q", m.Name)
		}
		seen[m.Name] = true
	}
	return t, nil
}

// NewSeedDocument builds the initial document: one member per template
// member, each with a fresh project per template name.
func (t TeamTemplate) NewSeedDocument() Document {
	d := Document{Members: make([]Member, 0, len(t.Members))}
	for _, mt := range t.Members {
		m := Member{Name: mt.Name, Projects: make([]Project, 0, len(mt.Projects))}
		for _, name := range mt.Projects {
			m.Projects = append(m.Projects, t.NewProject(name))
		}
		d.Members = append(d.Members, m)
	}
	return d
}

// NewProject creates a project with a random id and the template defaults.
func (t TeamTemplate) NewProject(name string) Project {
	if strings.TrimSpace(name) == "" {
		name = DefaultProjectName
	}
	p := NewProject(uuid.NewString(), name)
	p.DefaultGoal = t.Defaults.Goal
	p.DefaultBudget = t.Defaults.Budget
	p.DefaultTargetCPA = t.Defaults.TargetCPA
	return p
}
