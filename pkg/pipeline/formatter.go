package pipeline

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// NewFormatterProcessor folds the system prompt and the injected worldbook
// block into a leading system message and maps the working messages into
// the provider shape. The actual wire transport stays outside this core;
// the openai chat message struct is just the payload format handed to the
// model-invocation collaborator.
func NewFormatterProcessor() Processor {
	return Processor{
		ID:             "formatter",
		Name:           "format provider messages",
		Priority:       PriorityFormatter,
		DefaultEnabled: true,
		Execute: func(_ context.Context, pctx *Context) error {
			pctx.Output = pctx.Output[:0]

			systemParts := make([]string, 0, len(pctx.Injected)+1)
			if pctx.SystemPrompt != "" {
				systemParts = append(systemParts, pctx.SystemPrompt)
			}
			systemParts = append(systemParts, pctx.Injected...)
			if len(systemParts) > 0 {
				pctx.Output = append(pctx.Output, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleSystem,
					Content: strings.Join(systemParts, "\n\n"),
				})
			}

			for _, msg := range pctx.Messages {
				pctx.Output = append(pctx.Output, openai.ChatCompletionMessage{
					Role:    providerRole(msg.Role),
					Content: msg.Content,
				})
			}
			return nil
		},
	}
}

func providerRole(role conversation.Role) string {
	switch role {
	case conversation.RoleSystem:
		return openai.ChatMessageRoleSystem
	case conversation.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
