package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts the tokens of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a real tiktoken codec.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter resolves a codec for the model, falling back to
// cl100k_base for unknown models.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model != "" {
		if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &TiktokenCounter{codec: codec}, nil
		}
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (tc *TiktokenCounter) Count(text string) int {
	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return estimateTokens(text)
	}
	return len(ids)
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// EstimateCounter approximates token counts from rune length. Used when no
// codec is available for the model.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/4 + 1
}

var _ TokenCounter = EstimateCounter{}

// NewTokenBudgetProcessor trims the oldest eligible messages until the
// remaining ones fit the budget. The newest message is always retained,
// even when it alone exceeds the budget. A budget of zero or less means
// unlimited.
func NewTokenBudgetProcessor(counter TokenCounter, budget int) Processor {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return Processor{
		ID:             "token-budget",
		Name:           "enforce token budget",
		Priority:       PriorityTokenBudget,
		DefaultEnabled: true,
		Execute: func(_ context.Context, pctx *Context) error {
			effective := budget
			if pctx.TokenBudget > 0 {
				effective = pctx.TokenBudget
			}
			pctx.TokenBudget = effective
			if effective <= 0 || len(pctx.Messages) == 0 {
				return nil
			}

			// Walk from the newest message backwards, keeping messages
			// while the budget holds. The newest is kept unconditionally.
			newest := len(pctx.Messages) - 1
			used := counter.Count(pctx.Messages[newest].Content)
			keepFrom := newest
			for i := newest - 1; i >= 0; i-- {
				cost := counter.Count(pctx.Messages[i].Content)
				if used+cost > effective {
					break
				}
				used += cost
				keepFrom = i
			}

			pctx.TruncatedCount = keepFrom
			pctx.TokensUsed = used
			if keepFrom > 0 {
				log.Debug().
					Int("dropped", keepFrom).
					Int("kept", len(pctx.Messages)-keepFrom).
					Int("budget", effective).
					Int("used", used).
					Msg("token budget trimmed oldest messages")
				pctx.Messages = pctx.Messages[keepFrom:]
			}
			return nil
		},
	}
}
