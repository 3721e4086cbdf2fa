package conversation

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BranchManager handles everything that concerns which branch of the tree
// is active: sibling enumeration, branch switching with per-parent
// selection memory, and grafting. Structural work is delegated to the
// TreeManager; this layer adds validation and audit logging.
type BranchManager struct {
	tree   *TreeManager
	logger zerolog.Logger
}

type BranchManagerOption func(*BranchManager)

func WithBranchLogger(logger zerolog.Logger) BranchManagerOption {
	return func(bm *BranchManager) {
		bm.logger = logger
	}
}

func NewBranchManager(tree *TreeManager, options ...BranchManagerOption) *BranchManager {
	ret := &BranchManager{
		tree:   tree,
		logger: log.Logger,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Siblings returns all nodes sharing the node's parent, in ChildrenIDs
// order. The node itself is included.
func (bm *BranchManager) Siblings(s *Session, id NodeID) []*MessageNode {
	node, exists := s.Nodes[id]
	if !exists {
		return nil
	}
	parent, exists := s.Nodes[node.ParentID]
	if !exists {
		return nil
	}

	var siblings []*MessageNode
	for _, siblingID := range parent.ChildrenIDs {
		if sibling, exists := s.Nodes[siblingID]; exists {
			siblings = append(siblings, sibling)
		}
	}
	return siblings
}

// SwitchBranch makes the branch through id active. The active leaf becomes
// the deepest descendant of id reached by following each node's remembered
// selection (falling back to the most recently created child), and the
// walked choices are recorded back into the selection memory so switching
// away and back round-trips to the same leaf.
func (bm *BranchManager) SwitchBranch(s *Session, id NodeID) (NodeID, error) {
	if s == nil {
		return NullNode, ErrSessionNil
	}
	node, exists := s.Nodes[id]
	if !exists {
		return NullNode, errors.Wrapf(ErrNodeNotFound, "node %s", id)
	}

	if node.ParentID != NullNode {
		s.Selection[node.ParentID] = id
	}

	current := id
	for {
		currentNode := s.Nodes[current]
		if len(currentNode.ChildrenIDs) == 0 {
			break
		}
		next := currentNode.ChildrenIDs[len(currentNode.ChildrenIDs)-1]
		if remembered, ok := s.Selection[current]; ok && currentNode.HasChild(remembered) {
			next = remembered
		}
		s.Selection[current] = next
		current = next
	}

	s.ActiveLeafID = current
	s.Touch()

	bm.logger.Debug().
		Str("node_id", id.String()).
		Str("active_leaf", current.String()).
		Msg("switched branch")

	return current, nil
}

// GraftBranch moves the subtree rooted at id under newParentID. It is a
// thin wrapper over the TreeManager that adds audit logging. Legality is
// purely structural (no cycles); user/assistant role alternation is not
// enforced.
func (bm *BranchManager) GraftBranch(s *Session, id NodeID, newParentID NodeID) bool {
	ok := bm.tree.ReparentSubtree(s, id, newParentID)
	bm.logger.Info().
		Str("node_id", id.String()).
		Str("new_parent_id", newParentID.String()).
		Bool("applied", ok).
		Msg("graft branch")
	return ok
}

// IsNodeInActivePath reports whether id lies between the root and the
// active leaf, the root itself excluded.
func (bm *BranchManager) IsNodeInActivePath(s *Session, id NodeID) bool {
	if s == nil || id == s.RootID {
		return false
	}
	return s.ActivePathIDs()[id]
}
