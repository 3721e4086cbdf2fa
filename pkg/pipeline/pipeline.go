package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// Message is the provider-agnostic intermediate shape processors work on
// before the formatter emits the final provider messages.
type Message struct {
	NodeID  conversation.NodeID
	Role    conversation.Role
	Content string
}

// Context accumulates the state of one pipeline run: the session, the
// resolved active path, agent/model identifiers, the message list under
// construction, the final provider-shaped output, and scratch fields
// written by individual processors.
type Context struct {
	Session *conversation.Session

	// Path is the active path with the root excluded, resolved by the
	// path-loader processor.
	Path []*conversation.MessageNode

	AgentID      string
	ProfileID    string
	Model        string
	SystemPrompt string
	Temperature  *float64

	Messages []Message
	Output   []openai.ChatCompletionMessage

	// Scratch fields.
	Injected       []string
	ResolvedAssets map[string]string
	TokenBudget    int
	TokensUsed     int
	TruncatedCount int

	StepErrors []StepError
}

// NewContext builds a pipeline context for a session. Agent metadata and
// overrides are applied by the caller (usually the orchestrator) before
// execution.
func NewContext(s *conversation.Session) *Context {
	return &Context{
		Session:        s,
		AgentID:        s.AgentID,
		SystemPrompt:   s.SystemPromptOverride,
		Temperature:    s.TemperatureOverride,
		ResolvedAssets: map[string]string{},
	}
}

// StepError reports one failed processor. A failed step never aborts the
// rest of the pipeline.
type StepError struct {
	ProcessorID   string
	ProcessorName string
	Err           error
}

func (se StepError) Error() string {
	return fmt.Sprintf("processing step [%s] failed: %v", se.ProcessorName, se.Err)
}

func (se StepError) Unwrap() error {
	return se.Err
}

// Processor is one stage of the context-assembly chain: an id, a priority
// (ascending runs earlier), an enabled-by-default flag and a pure function.
// Dispatch is a plain sorted-filter-iterate over descriptors.
type Processor struct {
	ID             string
	Name           string
	Priority       int
	DefaultEnabled bool
	Execute        func(ctx context.Context, pctx *Context) error
}

// Canonical priorities, spaced so user-defined processors can slot between
// stages.
const (
	PriorityPathLoader   = 100
	PrioritySubstitution = 200
	PriorityInjection    = 300
	PriorityAttachments  = 400
	PriorityTokenBudget  = 500
	PriorityFormatter    = 600
	PriorityAssets       = 700
)

// Registry holds processors in registration order and tracks per-processor
// enablement.
type Registry struct {
	logger     zerolog.Logger
	processors []*Processor
	enabled    map[string]bool
}

type RegistryOption func(*Registry)

func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	ret := &Registry{
		logger:  log.Logger,
		enabled: map[string]bool{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (r *Registry) Register(p Processor) error {
	if p.ID == "" {
		return errors.New("processor id is empty")
	}
	if p.Execute == nil {
		return errors.Errorf("processor %s has no execute function", p.ID)
	}
	for _, existing := range r.processors {
		if existing.ID == p.ID {
			return errors.Errorf("processor %s already registered", p.ID)
		}
	}
	cp := p
	r.processors = append(r.processors, &cp)
	r.enabled[p.ID] = p.DefaultEnabled
	return nil
}

func (r *Registry) SetEnabled(id string, enabled bool) {
	if _, exists := r.enabled[id]; exists {
		r.enabled[id] = enabled
	}
}

func (r *Registry) IsEnabled(id string) bool {
	return r.enabled[id]
}

// Processors returns the registered descriptors sorted by ascending
// priority, registration order breaking ties.
func (r *Registry) Processors() []*Processor {
	sorted := make([]*Processor, len(r.processors))
	copy(sorted, r.processors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// Reorder reassigns priorities by renumbering in steps of 100 in the given
// order. Processors not mentioned keep their relative order and are
// appended after the mentioned ones.
func (r *Registry) Reorder(orderedIDs []string) {
	byID := map[string]*Processor{}
	for _, p := range r.processors {
		byID[p.ID] = p
	}

	priority := 100
	mentioned := map[string]bool{}
	for _, id := range orderedIDs {
		p, exists := byID[id]
		if !exists {
			continue
		}
		p.Priority = priority
		priority += 100
		mentioned[id] = true
	}

	remaining := make([]*Processor, 0, len(r.processors))
	for _, p := range r.Processors() {
		if !mentioned[p.ID] {
			remaining = append(remaining, p)
		}
	}
	for _, p := range remaining {
		p.Priority = priority
		priority += 100
	}
}

// Execute runs all enabled processors in ascending-priority order. Each
// call is isolated: an error (or panic) is recorded as a StepError and
// reported, and execution continues with whatever partial context the
// failed step left behind. A broken optional step must not block sending
// the message.
func (r *Registry) Execute(ctx context.Context, pctx *Context) []StepError {
	var stepErrors []StepError

	for _, p := range r.Processors() {
		if !r.enabled[p.ID] {
			continue
		}
		if err := r.runStep(ctx, p, pctx); err != nil {
			se := StepError{ProcessorID: p.ID, ProcessorName: p.Name, Err: err}
			stepErrors = append(stepErrors, se)
			pctx.StepErrors = append(pctx.StepErrors, se)
			r.logger.Warn().
				Str("processor_id", p.ID).
				Str("processor_name", p.Name).
				Err(err).
				Msg("processing step failed, continuing pipeline")
		}
	}

	return stepErrors
}

func (r *Registry) runStep(ctx context.Context, p *Processor, pctx *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v", rec)
		}
	}()
	return p.Execute(ctx, pctx)
}
