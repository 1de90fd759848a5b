// Package skillfile loads skill.SkillDefinition values from markdown
// files with a YAML front-matter block, the on-disk shape skills take
// when authored by hand rather than constructed in code.
package skillfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"orchestrator-core/pkg/skill"
)

var frontMatterRegex = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// frontMatter is the YAML shape of a skill file's header block.
type frontMatter struct {
	Model        string       `yaml:"model"`
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description"`
	Mode         string       `yaml:"mode"`
	Source       string       `yaml:"source"`
	AllowedTools []string     `yaml:"allowed_tools"`
	Workflow     *workflowYAML `yaml:"workflow"`
}

type workflowYAML struct {
	MaxRetries        int          `yaml:"max_retries"`
	ContinueOnFailure bool         `yaml:"continue_on_failure"`
	Steps             []stepYAML   `yaml:"steps"`
}

type stepYAML struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Prompt         string   `yaml:"prompt"`
	InputVariable  string   `yaml:"input_variable"`
	OutputVariable string   `yaml:"output_variable"`
	DependsOn      []string `yaml:"depends_on"`
}

// Load reads path and parses it into a skill.SkillDefinition.
func Load(path string) (skill.SkillDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return skill.SkillDefinition{}, fmt.Errorf("read skill file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses raw markdown+front-matter content into a SkillDefinition.
func Parse(content string) (skill.SkillDefinition, error) {
	matches := frontMatterRegex.FindStringSubmatch(content)
	if len(matches) < 2 {
		return skill.SkillDefinition{}, fmt.Errorf("no front-matter found")
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(matches[1]), &fm); err != nil {
		return skill.SkillDefinition{}, fmt.Errorf("parse front-matter: %w", err)
	}
	if fm.Name == "" {
		return skill.SkillDefinition{}, fmt.Errorf("missing required field: name")
	}

	body := strings.TrimPrefix(content, matches[0])
	body = strings.TrimSpace(body)

	def := skill.SkillDefinition{
		Name:         fm.Name,
		Description:  fm.Description,
		Body:         body,
		AllowedTools: fm.AllowedTools,
		Mode:         parseMode(fm.Mode),
		Source:       parseSource(fm.Source),
	}
	if fm.Model != "" {
		model := fm.Model
		def.PreferredModel = &model
	}
	if fm.Workflow != nil {
		def.Workflow = &skill.WorkflowDefinition{
			MaxRetries:        fm.Workflow.MaxRetries,
			ContinueOnFailure: fm.Workflow.ContinueOnFailure,
		}
		for _, st := range fm.Workflow.Steps {
			def.Workflow.Steps = append(def.Workflow.Steps, skill.WorkflowStep{
				ID:             st.ID,
				Name:           st.Name,
				PromptTemplate: st.Prompt,
				InputVariable:  st.InputVariable,
				OutputVariable: st.OutputVariable,
				DependsOn:      st.DependsOn,
			})
		}
	}

	return def, nil
}

func parseMode(s string) skill.ExecutionMode {
	switch strings.ToLower(s) {
	case "workflow":
		return skill.ModeWorkflow
	case "agent":
		return skill.ModeAgent
	default:
		return skill.ModePrompt
	}
}

func parseSource(s string) skill.SourceTier {
	switch strings.ToLower(s) {
	case "project":
		return skill.SourceProject
	case "plugin":
		return skill.SourcePlugin
	default:
		return skill.SourceUser
	}
}
