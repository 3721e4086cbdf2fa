package inference

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// Request is the pipeline-produced payload handed to the model-invocation
// collaborator. The message shape is whatever that collaborator's contract
// requires; the wire protocol itself lives outside this core.
type Request struct {
	Model       string
	Temperature *float64
	Messages    []openai.ChatCompletionMessage
}

// Chunk is one streamed piece of model output. Chunks for a single node
// are applied in arrival order.
type Chunk struct {
	Delta string
	Usage *conversation.TokenUsage
}

// Result is the terminal outcome of one generation.
type Result struct {
	Text  string
	Model string
	Usage *conversation.TokenUsage
}

// Engine represents an AI inference engine that can process a request and
// stream back a response. Engines handle provider-specific logic; the
// orchestrator is their sole caller. Cancellation is cooperative through
// the context: the engine stops emitting chunks when the context is done.
type Engine interface {
	RunInference(ctx context.Context, req *Request, emit func(Chunk) error) (*Result, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req *Request, emit func(Chunk) error) (*Result, error)

func (f EngineFunc) RunInference(ctx context.Context, req *Request, emit func(Chunk) error) (*Result, error) {
	return f(ctx, req, emit)
}
