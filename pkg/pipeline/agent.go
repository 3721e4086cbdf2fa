package pipeline

// AgentMetadata is the slice of agent/profile configuration this core
// consumes: the system prompt, default model/profile ids and parameter
// overrides used when building a pipeline context. Agent storage and
// editing live outside this core.
type AgentMetadata struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name,omitempty" yaml:"name,omitempty"`
	SystemPrompt     string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	DefaultModel     string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	DefaultProfile   string   `json:"default_profile,omitempty" yaml:"default_profile,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxContextTokens int      `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
}

// AgentProvider supplies agent metadata by id.
type AgentProvider interface {
	Agent(id string) (AgentMetadata, bool)
}

// ApplyAgent folds agent metadata into the context. Session-level overrides
// win over agent defaults.
func (pctx *Context) ApplyAgent(agent AgentMetadata) {
	pctx.AgentID = agent.ID
	if pctx.Model == "" {
		pctx.Model = agent.DefaultModel
	}
	if pctx.ProfileID == "" {
		pctx.ProfileID = agent.DefaultProfile
	}
	if pctx.SystemPrompt == "" {
		pctx.SystemPrompt = agent.SystemPrompt
	}
	if pctx.Temperature == nil {
		pctx.Temperature = agent.Temperature
	}
	if pctx.TokenBudget == 0 {
		pctx.TokenBudget = agent.MaxContextTokens
	}
}
