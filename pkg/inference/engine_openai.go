package inference

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine implements the Engine interface against the OpenAI chat
// completion API in streaming mode.
type OpenAIEngine struct {
	client       *go_openai.Client
	defaultModel string
}

type OpenAIEngineOption func(*OpenAIEngine)

func WithDefaultModel(model string) OpenAIEngineOption {
	return func(e *OpenAIEngine) {
		e.defaultModel = model
	}
}

// NewOpenAIEngine creates an engine talking to api.openai.com. baseURL may
// be empty; set it to target a compatible local server.
func NewOpenAIEngine(apiKey string, baseURL string, options ...OpenAIEngineOption) *OpenAIEngine {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	ret := &OpenAIEngine{
		client:       go_openai.NewClientWithConfig(config),
		defaultModel: go_openai.GPT4o,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (e *OpenAIEngine) RunInference(ctx context.Context, req *Request, emit func(Chunk) error) (*Result, error) {
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}

	openaiReq := go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   true,
	}
	if req.Temperature != nil {
		openaiReq.Temperature = float32(*req.Temperature)
	}

	log.Debug().Str("model", model).Int("num_messages", len(req.Messages)).Msg("openai streaming request")
	stream, err := e.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat completion stream")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close stream")
		}
	}()

	text := ""
	responseModel := model
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return &Result{Text: text, Model: responseModel}, nil
			}
			if err != nil {
				return nil, errors.Wrap(err, "stream receive failed")
			}
			if response.Model != "" {
				responseModel = response.Model
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			text += delta
			if err := emit(Chunk{Delta: delta}); err != nil {
				return nil, err
			}
		}
	}
}

var _ Engine = (*OpenAIEngine)(nil)
