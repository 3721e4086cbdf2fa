package profiles

import (
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/figaro/pkg/pipeline"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrEmptyAgentID  = errors.New("agent id is empty")
)

// AgentRegistry holds named agent presets (system prompt, default model,
// parameter overrides) and serves them to the context pipeline. It is safe
// for concurrent use.
type AgentRegistry struct {
	mu sync.RWMutex

	agents         map[string]pipeline.AgentMetadata
	defaultAgentID string
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: map[string]pipeline.AgentMetadata{},
	}
}

// registryFile is the on-disk YAML shape.
type registryFile struct {
	DefaultAgent string                            `yaml:"default_agent,omitempty"`
	Agents       map[string]pipeline.AgentMetadata `yaml:"agents"`
}

// LoadAgentRegistry reads a YAML agent file.
func LoadAgentRegistry(path string) (*AgentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read agent registry %s", path)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "could not parse agent registry %s", path)
	}

	ret := NewAgentRegistry()
	for id, agent := range file.Agents {
		agent.ID = id
		ret.agents[id] = agent
	}
	ret.defaultAgentID = file.DefaultAgent
	return ret, nil
}

// SaveToFile writes the registry as YAML.
func (r *AgentRegistry) SaveToFile(path string) error {
	r.mu.RLock()
	file := registryFile{
		DefaultAgent: r.defaultAgentID,
		Agents:       make(map[string]pipeline.AgentMetadata, len(r.agents)),
	}
	for id, agent := range r.agents {
		file.Agents[id] = agent
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return errors.Wrap(err, "could not marshal agent registry")
	}
	return os.WriteFile(path, data, 0644)
}

// Set adds or replaces an agent preset.
func (r *AgentRegistry) Set(agent pipeline.AgentMetadata) error {
	if agent.ID == "" {
		return ErrEmptyAgentID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
	return nil
}

// Delete removes an agent preset.
func (r *AgentRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return errors.Wrapf(ErrAgentNotFound, "agent %s", id)
	}
	delete(r.agents, id)
	if r.defaultAgentID == id {
		r.defaultAgentID = ""
	}
	return nil
}

// Agent implements pipeline.AgentProvider.
func (r *AgentRegistry) Agent(id string) (pipeline.AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, exists := r.agents[id]
	return agent, exists
}

// DefaultAgent returns the registry's default preset, if one is set.
func (r *AgentRegistry) DefaultAgent() (pipeline.AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultAgentID == "" {
		return pipeline.AgentMetadata{}, false
	}
	agent, exists := r.agents[r.defaultAgentID]
	return agent, exists
}

// SetDefault marks an existing agent as the default.
func (r *AgentRegistry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return errors.Wrapf(ErrAgentNotFound, "agent %s", id)
	}
	r.defaultAgentID = id
	return nil
}

// IDs returns the agent ids in sorted order.
func (r *AgentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ pipeline.AgentProvider = (*AgentRegistry)(nil)
