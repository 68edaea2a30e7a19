package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlDefinition is the on-disk shape of a workflow definition. Timeouts
// are duration strings ("30s", "2m") rather than nanosecond integers.
type yamlDefinition struct {
	Name           string     `yaml:"name"`
	Version        string     `yaml:"version"`
	Description    string     `yaml:"description"`
	DefaultTimeout string     `yaml:"default_timeout"`
	Nodes          []yamlNode `yaml:"nodes"`
	Edges          []EdgeSpec `yaml:"edges"`
}

type yamlNode struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	AgentID        string   `yaml:"agent_id"`
	ParallelAgents []string `yaml:"parallel_agents"`
	Condition      string   `yaml:"condition"`
	ApprovalType   string   `yaml:"approval_type"`
	Timeout        string   `yaml:"timeout"`
}

// ParseDefinition converts YAML content into a validated workflow
// definition
func ParseDefinition(content []byte) (*WorkflowDefinition, error) {
	var raw yamlDefinition
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("invalid workflow YAML: %w", err)
	}

	def := &WorkflowDefinition{
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		Edges:       raw.Edges,
	}

	var err error
	if def.DefaultTimeout, err = parseTimeout(raw.DefaultTimeout); err != nil {
		return nil, fmt.Errorf("workflow %q: invalid default_timeout: %w", raw.Name, err)
	}

	def.Nodes = make([]NodeSpec, 0, len(raw.Nodes))
	for _, n := range raw.Nodes {
		node := NodeSpec{
			ID:             n.ID,
			Type:           NodeType(n.Type),
			AgentID:        n.AgentID,
			ParallelAgents: n.ParallelAgents,
			Condition:      n.Condition,
			ApprovalType:   n.ApprovalType,
		}
		if node.Timeout, err = parseTimeout(n.Timeout); err != nil {
			return nil, fmt.Errorf("workflow %q node %q: invalid timeout: %w", raw.Name, n.ID, err)
		}
		def.Nodes = append(def.Nodes, node)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDirectory parses every .yaml/.yml file in dir and registers the
// resulting definitions with the engine
func LoadDirectory(engine *Engine, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read workflow directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		def, err := ParseDefinition(content)
		if err != nil {
			return loaded, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		if err := engine.Register(def); err != nil {
			return loaded, fmt.Errorf("failed to register %s: %w", entry.Name(), err)
		}
		loaded++
	}

	return loaded, nil
}

func parseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
