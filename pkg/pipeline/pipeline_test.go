package pipeline

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

func recordingProcessor(id string, priority int, order *[]string) Processor {
	return Processor{
		ID:             id,
		Name:           id,
		Priority:       priority,
		DefaultEnabled: true,
		Execute: func(context.Context, *Context) error {
			*order = append(*order, id)
			return nil
		},
	}
}

func TestExecuteRunsInAscendingPriorityOrder(t *testing.T) {
	registry := NewRegistry()
	var order []string

	// Registered out of order on purpose.
	require.NoError(t, registry.Register(recordingProcessor("late", 300, &order)))
	require.NoError(t, registry.Register(recordingProcessor("early", 100, &order)))
	require.NoError(t, registry.Register(recordingProcessor("middle", 200, &order)))

	stepErrors := registry.Execute(context.Background(), NewContext(conversation.NewSession()))
	require.Empty(t, stepErrors)
	require.Equal(t, []string{"early", "middle", "late"}, order)
}

func TestExecuteSkipsDisabledProcessors(t *testing.T) {
	registry := NewRegistry()
	var order []string

	require.NoError(t, registry.Register(recordingProcessor("a", 100, &order)))
	require.NoError(t, registry.Register(recordingProcessor("b", 200, &order)))
	registry.SetEnabled("a", false)

	registry.Execute(context.Background(), NewContext(conversation.NewSession()))
	require.Equal(t, []string{"b"}, order)
}

func TestExecuteIsolatesFailingStep(t *testing.T) {
	registry := NewRegistry()
	var order []string

	require.NoError(t, registry.Register(recordingProcessor("first", 100, &order)))
	require.NoError(t, registry.Register(Processor{
		ID: "broken", Name: "broken step", Priority: 200, DefaultEnabled: true,
		Execute: func(context.Context, *Context) error {
			return errors.New("boom")
		},
	}))
	require.NoError(t, registry.Register(Processor{
		ID: "panicking", Name: "panicking step", Priority: 300, DefaultEnabled: true,
		Execute: func(context.Context, *Context) error {
			panic("kaboom")
		},
	}))
	require.NoError(t, registry.Register(recordingProcessor("last", 400, &order)))

	pctx := NewContext(conversation.NewSession())
	stepErrors := registry.Execute(context.Background(), pctx)

	require.Len(t, stepErrors, 2)
	require.Contains(t, stepErrors[0].Error(), "processing step [broken step] failed")
	require.Contains(t, stepErrors[1].Error(), "processing step [panicking step] failed")
	require.Equal(t, []string{"first", "last"}, order)
	require.Len(t, pctx.StepErrors, 2)
}

func TestRegisterRejectsDuplicateIDs(t *testing.T) {
	registry := NewRegistry()
	var order []string
	require.NoError(t, registry.Register(recordingProcessor("a", 100, &order)))
	require.Error(t, registry.Register(recordingProcessor("a", 200, &order)))
}

func TestReorderRenumbersAndAppendsOmitted(t *testing.T) {
	registry := NewRegistry()
	var order []string

	require.NoError(t, registry.Register(recordingProcessor("a", 100, &order)))
	require.NoError(t, registry.Register(recordingProcessor("b", 200, &order)))
	require.NoError(t, registry.Register(recordingProcessor("c", 300, &order)))
	require.NoError(t, registry.Register(recordingProcessor("d", 400, &order)))

	registry.Reorder([]string{"c", "a", "unknown-id"})

	sorted := registry.Processors()
	ids := make([]string, len(sorted))
	priorities := make([]int, len(sorted))
	for i, p := range sorted {
		ids[i] = p.ID
		priorities[i] = p.Priority
	}
	// Mentioned first in the given order, omitted appended in stable
	// relative order.
	require.Equal(t, []string{"c", "a", "b", "d"}, ids)
	require.Equal(t, []int{100, 200, 300, 400}, priorities)
}

func TestPathLoaderExcludesDisabledNodes(t *testing.T) {
	s := conversation.NewSession()
	tm := conversation.NewTreeManager()

	hidden := conversation.NewMessageNode(conversation.RoleUser, "hidden", conversation.WithDisabled())
	hiddenID, err := tm.CreateNode(s, hidden, s.RootID)
	require.NoError(t, err)
	visibleID, err := tm.CreateNode(s, conversation.NewMessageNode(conversation.RoleAssistant, "visible"), hiddenID)
	require.NoError(t, err)
	s.ActiveLeafID = visibleID

	registry := NewRegistry()
	require.NoError(t, registry.Register(NewPathLoaderProcessor()))
	require.NoError(t, registry.Register(NewFormatterProcessor()))

	pctx := NewContext(s)
	require.Empty(t, registry.Execute(context.Background(), pctx))

	require.Len(t, pctx.Path, 2)
	require.Len(t, pctx.Messages, 1)
	require.Equal(t, visibleID, pctx.Messages[0].NodeID)
	for _, msg := range pctx.Output {
		require.NotContains(t, msg.Content, "hidden")
	}
}

func TestSubstitutionAppliesRulesAndReportsBadPatterns(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	pctx.Messages = []Message{
		{Role: conversation.RoleUser, Content: "hello {{user}} and {{char}}"},
	}

	p := NewSubstitutionProcessor([]SubstitutionRule{
		{Pattern: "{{user}}", Replacement: "Alice", Literal: true},
		{Pattern: "[invalid", Replacement: "x"},
		{Pattern: `\{\{char\}\}`, Replacement: "Bob"},
	})
	err := p.Execute(context.Background(), pctx)

	require.Error(t, err)
	require.Contains(t, err.Error(), "[invalid")
	require.Equal(t, "hello Alice and Bob", pctx.Messages[0].Content)
}

type staticWorldbook struct {
	entries []WorldEntry
}

func (sw staticWorldbook) Entries(context.Context, *Context) ([]WorldEntry, error) {
	return sw.entries, nil
}

func TestInjectionMergesEntriesByRank(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	p := NewInjectionProcessor(staticWorldbook{entries: []WorldEntry{
		{ID: "w2", Text: "second", Rank: 20},
		{ID: "w1", Text: "first", Rank: 10},
		{ID: "w3", Text: "", Rank: 5},
	}})

	require.NoError(t, p.Execute(context.Background(), pctx))
	require.Equal(t, []string{"first", "second"}, pctx.Injected)
}

type mapAttachmentResolver map[string]string

func (m mapAttachmentResolver) Transcribe(_ context.Context, id string) (string, error) {
	transcription, ok := m[id]
	if !ok {
		return "", errors.New("unknown attachment")
	}
	return transcription, nil
}

func TestAttachmentResolution(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	pctx.Messages = []Message{
		{Role: conversation.RoleUser, Content: "see attachment://doc1 and attachment://missing"},
	}

	p := NewAttachmentProcessor(mapAttachmentResolver{"doc1": "the transcript"})
	err := p.Execute(context.Background(), pctx)

	require.Error(t, err)
	require.Equal(t, "see the transcript and attachment://missing", pctx.Messages[0].Content)
}

func TestTokenBudgetTrimsOldestKeepsNewest(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	// 10 messages of 10 estimated tokens each against a 50-token budget.
	for i := 0; i < 10; i++ {
		pctx.Messages = append(pctx.Messages, Message{
			Role:    conversation.RoleUser,
			Content: repeatText("word ", 8) + intToWord(i),
		})
	}
	counter := fixedCounter(10)
	p := NewTokenBudgetProcessor(counter, 50)

	require.NoError(t, p.Execute(context.Background(), pctx))

	require.Len(t, pctx.Messages, 5)
	require.Equal(t, 5, pctx.TruncatedCount)
	// Newest messages retained.
	require.Contains(t, pctx.Messages[len(pctx.Messages)-1].Content, intToWord(9))
	require.Contains(t, pctx.Messages[0].Content, intToWord(5))
}

func TestTokenBudgetAlwaysKeepsNewestMessage(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	pctx.Messages = []Message{
		{Role: conversation.RoleUser, Content: "old"},
		{Role: conversation.RoleUser, Content: "huge newest message"},
	}
	p := NewTokenBudgetProcessor(fixedCounter(100), 50)

	require.NoError(t, p.Execute(context.Background(), pctx))
	require.Len(t, pctx.Messages, 1)
	require.Equal(t, "huge newest message", pctx.Messages[0].Content)
}

func TestFormatterFoldsSystemPromptAndInjection(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	pctx.SystemPrompt = "you are a helpful assistant"
	pctx.Injected = []string{"world fact"}
	pctx.Messages = []Message{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}

	require.NoError(t, NewFormatterProcessor().Execute(context.Background(), pctx))

	require.Len(t, pctx.Output, 3)
	require.Equal(t, "system", pctx.Output[0].Role)
	require.Contains(t, pctx.Output[0].Content, "you are a helpful assistant")
	require.Contains(t, pctx.Output[0].Content, "world fact")
	require.Equal(t, "user", pctx.Output[1].Role)
	require.Equal(t, "assistant", pctx.Output[2].Role)
}

type mapAssetResolver map[string]string

func (m mapAssetResolver) Resolve(_ context.Context, id string) (string, error) {
	resolved, ok := m[id]
	if !ok {
		return "", errors.New("unknown asset")
	}
	return resolved, nil
}

func TestAssetResolutionCachesLookups(t *testing.T) {
	pctx := NewContext(conversation.NewSession())
	pctx.Output = append(pctx.Output, providerMessage("user", "img asset://pic asset://pic"))

	p := NewAssetProcessor(mapAssetResolver{"pic": "https://example.com/pic.png"})
	require.NoError(t, p.Execute(context.Background(), pctx))

	require.Equal(t, "img https://example.com/pic.png https://example.com/pic.png", pctx.Output[0].Content)
	require.Equal(t, "https://example.com/pic.png", pctx.ResolvedAssets["pic"])
}

func TestApplyAgentSessionOverridesWin(t *testing.T) {
	s := conversation.NewSession(conversation.WithAgentID("agent-1"))
	s.SystemPromptOverride = "override prompt"
	pctx := NewContext(s)

	temp := 0.7
	pctx.ApplyAgent(AgentMetadata{
		ID:               "agent-1",
		SystemPrompt:     "agent prompt",
		DefaultModel:     "gpt-4",
		Temperature:      &temp,
		MaxContextTokens: 4096,
	})

	require.Equal(t, "override prompt", pctx.SystemPrompt)
	require.Equal(t, "gpt-4", pctx.Model)
	require.Equal(t, 4096, pctx.TokenBudget)
	require.Equal(t, &temp, pctx.Temperature)
}

// test helpers

type fixedCounter int

func (fc fixedCounter) Count(string) int { return int(fc) }

func repeatText(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func intToWord(i int) string {
	words := []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	return words[i%len(words)]
}

func providerMessage(role, content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: role, Content: content}
}
