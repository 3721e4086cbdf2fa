package profiles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/helpers"
	"github.com/go-go-golems/figaro/pkg/pipeline"
)

func TestRegistrySetAndLookup(t *testing.T) {
	registry := NewAgentRegistry()
	err := registry.Set(pipeline.AgentMetadata{
		ID:           "assistant",
		Name:         "Assistant",
		SystemPrompt: "You are a helpful assistant.",
		DefaultModel: "gpt-4o",
		Temperature:  helpers.Float64Pointer(0.7),
	})
	require.NoError(t, err)

	agent, exists := registry.Agent("assistant")
	require.True(t, exists)
	require.Equal(t, "gpt-4o", agent.DefaultModel)
	require.InDelta(t, 0.7, *agent.Temperature, 1e-9)

	_, exists = registry.Agent("missing")
	require.False(t, exists)
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	registry := NewAgentRegistry()
	err := registry.Set(pipeline.AgentMetadata{Name: "nameless"})
	require.ErrorIs(t, err, ErrEmptyAgentID)
}

func TestRegistryDefaultAgent(t *testing.T) {
	registry := NewAgentRegistry()
	require.NoError(t, registry.Set(pipeline.AgentMetadata{ID: "writer"}))

	_, exists := registry.DefaultAgent()
	require.False(t, exists)

	require.ErrorIs(t, registry.SetDefault("missing"), ErrAgentNotFound)
	require.NoError(t, registry.SetDefault("writer"))

	agent, exists := registry.DefaultAgent()
	require.True(t, exists)
	require.Equal(t, "writer", agent.ID)

	require.NoError(t, registry.Delete("writer"))
	_, exists = registry.DefaultAgent()
	require.False(t, exists)
}

func TestRegistryFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")

	registry := NewAgentRegistry()
	require.NoError(t, registry.Set(pipeline.AgentMetadata{
		ID:               "coder",
		SystemPrompt:     "Write code.",
		DefaultModel:     "gpt-4o-mini",
		MaxContextTokens: 8192,
	}))
	require.NoError(t, registry.Set(pipeline.AgentMetadata{ID: "writer"}))
	require.NoError(t, registry.SetDefault("coder"))
	require.NoError(t, registry.SaveToFile(path))

	loaded, err := LoadAgentRegistry(path)
	require.NoError(t, err)
	require.Equal(t, []string{"coder", "writer"}, loaded.IDs())

	agent, exists := loaded.Agent("coder")
	require.True(t, exists)
	require.Equal(t, 8192, agent.MaxContextTokens)

	def, exists := loaded.DefaultAgent()
	require.True(t, exists)
	require.Equal(t, "coder", def.ID)
}

func TestLoadAgentRegistryMissingFile(t *testing.T) {
	_, err := LoadAgentRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
