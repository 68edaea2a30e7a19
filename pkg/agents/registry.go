package agents

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryRegistry is an in-memory agent registry, typically seeded from a
// YAML catalog at startup
type MemoryRegistry struct {
	agents map[string]*Agent
	mu     sync.RWMutex
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		agents: make(map[string]*Agent),
	}
}

// Register adds or replaces an agent
func (r *MemoryRegistry) Register(agent *Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
	return nil
}

// GetAgent returns the agent with the given id
func (r *MemoryRegistry) GetAgent(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	return agent, ok
}

// ListAgents returns all registered agents
func (r *MemoryRegistry) ListAgents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		list = append(list, agent)
	}
	return list
}

// agentCatalog is the on-disk shape of the agent catalog file
type agentCatalog struct {
	Agents []Agent `yaml:"agents"`
}

// LoadCatalog reads a YAML agent catalog and registers every agent in it
func LoadCatalog(registry *MemoryRegistry, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read agent catalog: %w", err)
	}

	var catalog agentCatalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return 0, fmt.Errorf("invalid agent catalog: %w", err)
	}

	for i := range catalog.Agents {
		agent := catalog.Agents[i]
		if err := registry.Register(&agent); err != nil {
			return i, fmt.Errorf("failed to register agent %q: %w", agent.ID, err)
		}
	}

	return len(catalog.Agents), nil
}
