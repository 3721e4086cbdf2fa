package inference

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/figaro/pkg/conversation"
	"github.com/go-go-golems/figaro/pkg/events"
	"github.com/go-go-golems/figaro/pkg/history"
	"github.com/go-go-golems/figaro/pkg/pipeline"
)

var (
	ErrNoEngine              = errors.New("no engine configured")
	ErrNodeAlreadyGenerating = errors.New("node already has an active generation")
	ErrNoActiveGeneration    = errors.New("node has no active generation")
	ErrCannotRegenerateRoot  = errors.New("cannot regenerate the root node")
)

// InterruptedMessage is the standard error text for generations that were
// aborted before producing any content.
const InterruptedMessage = "generation interrupted"

// Orchestrator coordinates sending, continuing and regenerating messages
// for one session. It owns one abort handle and one in-flight marker per
// node id; the in-flight table is the single source of truth for "is node X
// currently generating". The persisted status field may lag and is
// reconciled whenever the table shrinks.
type Orchestrator struct {
	logger   zerolog.Logger
	session  *conversation.Session
	tree     *conversation.TreeManager
	history  *history.Manager
	engine   Engine
	registry *pipeline.Registry
	agents   pipeline.AgentProvider
	store    conversation.Store
	sinks    []events.EventSink

	mu       sync.Mutex
	inflight map[conversation.NodeID]*GenerationHandle
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithTreeManager(tree *conversation.TreeManager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tree = tree
	}
}

func WithHistory(manager *history.Manager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.history = manager
	}
}

func WithRegistry(registry *pipeline.Registry) OrchestratorOption {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

func WithAgentProvider(agents pipeline.AgentProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		o.agents = agents
	}
}

func WithStore(store conversation.Store) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
	}
}

func WithSinks(sinks ...events.EventSink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// NewOrchestrator builds an orchestrator for a session. A default registry
// (path loader + formatter) and a fresh history manager are used unless
// overridden.
func NewOrchestrator(session *conversation.Session, engine Engine, options ...OrchestratorOption) *Orchestrator {
	ret := &Orchestrator{
		logger:   log.Logger,
		session:  session,
		engine:   engine,
		tree:     conversation.NewTreeManager(),
		inflight: map[conversation.NodeID]*GenerationHandle{},
	}
	for _, option := range options {
		option(ret)
	}
	if ret.history == nil {
		ret.history = history.NewManager(session)
	}
	if ret.registry == nil {
		registry := pipeline.NewRegistry()
		_ = registry.Register(pipeline.NewPathLoaderProcessor())
		_ = registry.Register(pipeline.NewFormatterProcessor())
		ret.registry = registry
	}
	return ret
}

func (o *Orchestrator) Session() *conversation.Session { return o.session }
func (o *Orchestrator) History() *history.Manager      { return o.history }
func (o *Orchestrator) Registry() *pipeline.Registry   { return o.registry }

// IsGenerating reports whether the node is in the in-flight set.
func (o *Orchestrator) IsGenerating(id conversation.NodeID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, exists := o.inflight[id]
	return exists
}

// InFlightCount returns the number of concurrent generations.
func (o *Orchestrator) InFlightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// SendMessage appends a user node and a generating assistant node under the
// current active leaf, clears the history (breakpoint) and starts streaming
// into the assistant node.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) (*GenerationHandle, error) {
	if o.engine == nil {
		return nil, ErrNoEngine
	}

	// History breakpoint: undo/redo covers edits within a generation
	// epoch, not across model calls.
	o.history.Clear(o.session)

	o.mu.Lock()
	parentID := o.session.ActiveLeafID
	userNode := conversation.NewMessageNode(conversation.RoleUser, content)
	userID, err := o.tree.CreateNode(o.session, userNode, parentID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.session.Selection[parentID] = userID
	o.session.ActiveLeafID = userID

	assistantNode := conversation.NewMessageNode(conversation.RoleAssistant, "", conversation.WithStatus(conversation.StatusGenerating))
	assistantID, err := o.tree.CreateNode(o.session, assistantNode, userID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.session.Selection[userID] = assistantID
	o.session.ActiveLeafID = assistantID
	o.mu.Unlock()

	o.persist(ctx)

	return o.startGeneration(ctx, assistantID)
}

// RegenerateFromNode creates a fresh sibling of nodeID under the same
// parent, keeping the original answer as its own branch, and streams into it.
func (o *Orchestrator) RegenerateFromNode(ctx context.Context, nodeID conversation.NodeID) (*GenerationHandle, error) {
	if o.engine == nil {
		return nil, ErrNoEngine
	}

	o.mu.Lock()
	node, exists := o.session.Node(nodeID)
	if !exists {
		o.mu.Unlock()
		return nil, errors.Wrapf(conversation.ErrNodeNotFound, "node %s", nodeID)
	}
	if nodeID == o.session.RootID {
		o.mu.Unlock()
		return nil, ErrCannotRegenerateRoot
	}
	parentID := node.ParentID
	o.mu.Unlock()

	o.history.Clear(o.session)

	o.mu.Lock()
	sibling := conversation.NewMessageNode(node.Role, "", conversation.WithStatus(conversation.StatusGenerating))
	siblingID, err := o.tree.CreateNode(o.session, sibling, parentID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.session.Selection[parentID] = siblingID
	o.session.ActiveLeafID = siblingID
	o.mu.Unlock()

	o.persist(ctx)

	return o.startGeneration(ctx, siblingID)
}

// ContinueGeneration resumes appending to an existing node's content rather
// than creating a new one.
func (o *Orchestrator) ContinueGeneration(ctx context.Context, nodeID conversation.NodeID) (*GenerationHandle, error) {
	if o.engine == nil {
		return nil, ErrNoEngine
	}

	o.mu.Lock()
	if _, exists := o.session.Node(nodeID); !exists {
		o.mu.Unlock()
		return nil, errors.Wrapf(conversation.ErrNodeNotFound, "node %s", nodeID)
	}
	status := conversation.StatusGenerating
	if err := o.tree.UpdateNodeData(o.session, nodeID, conversation.NodeUpdate{Status: &status}); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.mu.Unlock()

	o.history.Clear(o.session)
	o.persist(ctx)

	return o.startGeneration(ctx, nodeID)
}

// startGeneration runs the context pipeline, registers the abort handle and
// spawns the streaming goroutine. A node id appears in the in-flight set
// for at most one concurrent generation.
func (o *Orchestrator) startGeneration(ctx context.Context, nodeID conversation.NodeID) (*GenerationHandle, error) {
	o.mu.Lock()
	if _, exists := o.inflight[nodeID]; exists {
		o.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeAlreadyGenerating, "node %s", nodeID)
	}
	// Step resolvers can be slow. Run them on a snapshot so they never
	// block chunk appends of concurrent generations.
	snapshot := clone.Clone(o.session).(*conversation.Session)
	o.mu.Unlock()

	pctx := pipeline.NewContext(snapshot)
	if o.agents != nil && snapshot.AgentID != "" {
		if agent, ok := o.agents.Agent(snapshot.AgentID); ok {
			pctx.ApplyAgent(agent)
		}
	}
	stepErrors := o.registry.Execute(ctx, pctx)
	if len(stepErrors) > 0 {
		// Best-effort: degraded context still gets sent.
		o.logger.Warn().
			Int("failed_steps", len(stepErrors)).
			Str("node_id", nodeID.String()).
			Msg("pipeline completed with failed steps")
	}

	req := &Request{
		Model:       pctx.Model,
		Temperature: pctx.Temperature,
		Messages:    pctx.Output,
	}

	o.mu.Lock()
	if _, exists := o.inflight[nodeID]; exists {
		o.mu.Unlock()
		return nil, errors.Wrapf(ErrNodeAlreadyGenerating, "node %s", nodeID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	handle := newGenerationHandle(o.session.ID, nodeID, cancel)
	o.inflight[nodeID] = handle
	o.mu.Unlock()

	meta := o.eventMetadata(nodeID, req.Model)
	o.publish(events.NewStartEvent(meta))

	go o.run(runCtx, handle, req, meta)

	return handle, nil
}

func (o *Orchestrator) run(ctx context.Context, handle *GenerationHandle, req *Request, meta events.EventMetadata) {
	nodeID := handle.NodeID

	result, err := o.engine.RunInference(ctx, req, func(chunk Chunk) error {
		o.mu.Lock()
		appendErr := o.tree.UpdateNodeData(o.session, nodeID, conversation.NodeUpdate{AppendContent: &chunk.Delta})
		completion := ""
		if node, exists := o.session.Node(nodeID); exists {
			completion = node.Content
		}
		o.mu.Unlock()
		if appendErr != nil {
			// Node was deleted mid-stream; tell the engine to stop.
			return appendErr
		}
		o.publish(events.NewPartialCompletionEvent(meta, chunk.Delta, completion))
		return nil
	})

	o.settle(handle, result, err, meta)
}

// settle finalizes the node after the engine returns, removes the node
// from the in-flight set and reconciles orphaned generating-state nodes.
func (o *Orchestrator) settle(handle *GenerationHandle, result *Result, err error, meta events.EventMetadata) {
	nodeID := handle.NodeID
	interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

	o.mu.Lock()
	delete(o.inflight, nodeID)

	finalText := ""
	if node, exists := o.session.Node(nodeID); exists {
		upd := conversation.NodeUpdate{}
		if err == nil && result != nil && node.Content == "" && result.Text != "" {
			// Engines that do not stream still deliver their text.
			upd.Content = &result.Text
		}
		status := conversation.StatusComplete
		metadata := node.Metadata
		if metadata == nil {
			metadata = &conversation.NodeMetadata{}
		}
		switch {
		case err == nil:
			if result != nil {
				metadata.ModelID = result.Model
				metadata.Usage = result.Usage
			}
		case interrupted && node.Content != "":
			// Aborted after partial output: keep what accumulated.
		case interrupted:
			status = conversation.StatusError
			metadata.Error = InterruptedMessage
		default:
			status = conversation.StatusError
			metadata.Error = err.Error()
		}
		upd.Status = &status
		upd.Metadata = metadata
		_ = o.tree.UpdateNodeData(o.session, nodeID, upd)
		if settled, ok := o.session.Node(nodeID); ok {
			finalText = settled.Content
		}
	}
	o.mu.Unlock()

	switch {
	case err == nil:
		o.publish(events.NewFinalEvent(meta, finalText))
	case interrupted:
		o.publish(events.NewInterruptEvent(meta, finalText))
	default:
		o.logger.Error().Err(err).Str("node_id", nodeID.String()).Msg("generation failed")
		o.publish(events.NewErrorEvent(meta, err))
	}

	o.persist(context.Background())
	handle.setResult(result, err)

	// The in-flight set shrank: sweep for orphans.
	o.ReconcileOrphans(context.Background())
}

// AbortNodeGeneration signals the abort handle for one node. The final
// status is settled by the streaming goroutine from whatever content
// accumulated up to the cancellation.
func (o *Orchestrator) AbortNodeGeneration(nodeID conversation.NodeID) error {
	o.mu.Lock()
	handle, exists := o.inflight[nodeID]
	o.mu.Unlock()
	if !exists {
		return errors.Wrapf(ErrNoActiveGeneration, "node %s", nodeID)
	}
	handle.Cancel()
	return nil
}

// AbortAll cancels every currently in-flight generation.
func (o *Orchestrator) AbortAll() {
	o.mu.Lock()
	handles := make([]*GenerationHandle, 0, len(o.inflight))
	for _, handle := range o.inflight {
		handles = append(handles, handle)
	}
	o.mu.Unlock()

	for _, handle := range handles {
		handle.Cancel()
	}
}

// AbortAllAndWait cancels everything and blocks until all generations
// have settled.
func (o *Orchestrator) AbortAllAndWait() error {
	o.mu.Lock()
	handles := make([]*GenerationHandle, 0, len(o.inflight))
	for _, handle := range o.inflight {
		handles = append(handles, handle)
	}
	o.mu.Unlock()

	g := errgroup.Group{}
	for _, handle := range handles {
		handle := handle
		handle.Cancel()
		g.Go(func() error {
			_, err := handle.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// PruneInFlight cancels generations for nodes that were destroyed (e.g. by
// a cascading subtree deletion).
func (o *Orchestrator) PruneInFlight(removed ...conversation.NodeID) {
	o.mu.Lock()
	handles := make([]*GenerationHandle, 0)
	for _, id := range removed {
		if handle, exists := o.inflight[id]; exists {
			handles = append(handles, handle)
		}
	}
	o.mu.Unlock()

	for _, handle := range handles {
		handle.Cancel()
	}
}

// ReconcileOrphans force-settles nodes still marked generating that are not
// in the in-flight set, leftovers of a hard reload or crash. Non-empty
// nodes become complete, empty ones become errors. Never left unresolved.
func (o *Orchestrator) ReconcileOrphans(ctx context.Context) {
	o.mu.Lock()
	var repaired []conversation.NodeID
	for id, node := range o.session.Nodes {
		if node.Status != conversation.StatusGenerating {
			continue
		}
		if _, exists := o.inflight[id]; exists {
			continue
		}
		status := conversation.StatusComplete
		metadata := node.Metadata
		if node.Content == "" {
			status = conversation.StatusError
			if metadata == nil {
				metadata = &conversation.NodeMetadata{}
			}
			metadata.Error = InterruptedMessage
		}
		if err := o.tree.UpdateNodeData(o.session, id, conversation.NodeUpdate{Status: &status, Metadata: metadata}); err != nil {
			continue
		}
		repaired = append(repaired, id)
	}
	o.mu.Unlock()

	if len(repaired) == 0 {
		return
	}
	ids := make([]string, len(repaired))
	for i, id := range repaired {
		ids[i] = id.String()
	}
	o.logger.Warn().
		Strs("node_ids", ids).
		Msg("repaired orphaned generating nodes")
	o.persist(ctx)
}

func (o *Orchestrator) eventMetadata(nodeID conversation.NodeID, model string) events.EventMetadata {
	return events.EventMetadata{
		SessionID: o.session.ID,
		NodeID:    nodeID,
		RunID:     uuid.NewString(),
		Model:     model,
	}
}

func (o *Orchestrator) publish(event events.Event) {
	for _, sink := range o.sinks {
		if err := sink.PublishEvent(event); err != nil {
			o.logger.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
		}
	}
}

// persist hands the session to the store. Failure is reported but never
// rolls back in-memory state.
func (o *Orchestrator) persist(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.Persist(ctx, o.session); err != nil {
		o.logger.Warn().Err(err).Str("session_id", o.session.ID).Msg("persistence failed")
	}
}
