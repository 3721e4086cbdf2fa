package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

// NewPathLoaderProcessor resolves the session's active path into the
// working message list. The root is excluded by construction; disabled
// nodes are dropped here and therefore never reach the model payload,
// regardless of their position on the path.
func NewPathLoaderProcessor() Processor {
	return Processor{
		ID:             "path-loader",
		Name:           "load active path",
		Priority:       PriorityPathLoader,
		DefaultEnabled: true,
		Execute: func(_ context.Context, pctx *Context) error {
			if pctx.Session == nil {
				return errors.New("pipeline context has no session")
			}
			pctx.Path = pctx.Session.ActivePath()
			pctx.Messages = pctx.Messages[:0]
			for _, node := range pctx.Path {
				if !node.IsEnabled {
					continue
				}
				// A freshly created generation target sits at the end of
				// the path with no content yet; it is not part of the
				// payload it is being generated from.
				if node.Status == conversation.StatusGenerating && node.Content == "" {
					continue
				}
				pctx.Messages = append(pctx.Messages, Message{
					NodeID:  node.ID,
					Role:    node.Role,
					Content: node.Content,
				})
			}
			return nil
		},
	}
}
