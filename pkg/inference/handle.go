package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

var ErrGenerationHandleNil = errors.New("generation handle is nil")

// GenerationHandle represents a single in-flight generation for one node.
//
// It is cancelable and waitable. The underlying inference is always driven
// by context cancellation; the orchestrator finalizes the node's status
// from whatever content accumulated up to the cancellation.
type GenerationHandle struct {
	SessionID string
	NodeID    conversation.NodeID

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	result *Result
	err    error
}

func newGenerationHandle(sessionID string, nodeID conversation.NodeID, cancel context.CancelFunc) *GenerationHandle {
	return &GenerationHandle{
		SessionID: sessionID,
		NodeID:    nodeID,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *GenerationHandle) setResult(result *Result, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
}

// Cancel signals the abort handle. It is safe to call multiple times and
// does not assume the engine stops immediately.
func (h *GenerationHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the generation settles and returns its result.
func (h *GenerationHandle) Wait() (*Result, error) {
	if h == nil {
		return nil, ErrGenerationHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// IsRunning reports whether the generation appears to still be running.
func (h *GenerationHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
