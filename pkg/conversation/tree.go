package conversation

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNil     = errors.New("session is nil")
	ErrNodeNotFound   = errors.New("node not found")
	ErrParentNotFound = errors.New("parent node not found")
	ErrRootImmutable  = errors.New("root node cannot be modified")
)

// TreeManager owns every structural mutation of a session's node arena:
// create, cascade-delete, reparent, toggle, field updates. All mutation
// call sites must route through it (or the BranchManager wrapping it) so
// that the bidirectional parent/child invariant holds after every commit.
type TreeManager struct {
	logger zerolog.Logger
}

type TreeManagerOption func(*TreeManager)

func WithTreeLogger(logger zerolog.Logger) TreeManagerOption {
	return func(tm *TreeManager) {
		tm.logger = logger
	}
}

func NewTreeManager(options ...TreeManagerOption) *TreeManager {
	ret := &TreeManager{
		logger: log.Logger,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// CreateNode inserts node under parentID and appends it to the parent's
// ChildrenIDs. The node's ID is generated if unset. Fails if the parent
// does not exist.
func (tm *TreeManager) CreateNode(s *Session, node *MessageNode, parentID NodeID) (NodeID, error) {
	if s == nil {
		return NullNode, ErrSessionNil
	}
	parent, exists := s.Nodes[parentID]
	if !exists {
		return NullNode, errors.Wrapf(ErrParentNotFound, "parent %s", parentID)
	}
	if node.ID == NullNode {
		node.ID = NewNodeID()
	}
	if _, exists := s.Nodes[node.ID]; exists {
		return NullNode, errors.Errorf("node %s already exists", node.ID)
	}

	node.ParentID = parentID
	s.Nodes[node.ID] = node
	parent.ChildrenIDs = append(parent.ChildrenIDs, node.ID)
	s.Touch()

	tm.logger.Trace().
		Str("node_id", node.ID.String()).
		Str("parent_id", parentID.String()).
		Str("role", string(node.Role)).
		Int("sibling_count", len(parent.ChildrenIDs)).
		Msg("created node")

	return node.ID, nil
}

// DescendantIDs returns id and every node below it, depth-first in
// ChildrenIDs order. The first element is always id itself.
func (tm *TreeManager) DescendantIDs(s *Session, id NodeID) []NodeID {
	node, exists := s.Nodes[id]
	if !exists {
		return nil
	}
	ids := []NodeID{id}
	for _, childID := range node.ChildrenIDs {
		ids = append(ids, tm.DescendantIDs(s, childID)...)
	}
	return ids
}

// IsDescendant reports whether id lies strictly below ancestorID.
func (tm *TreeManager) IsDescendant(s *Session, ancestorID NodeID, id NodeID) bool {
	if id == ancestorID {
		return false
	}
	for _, descendantID := range tm.DescendantIDs(s, ancestorID) {
		if descendantID == id {
			return true
		}
	}
	return false
}

// DeleteSubtree removes id and all its descendants and detaches id from its
// former parent. If the active leaf (or any node on the active path) is
// removed, the active leaf is re-anchored to the nearest surviving ancestor
// of the removed subtree, then descended to its nearest leaf.
//
// The removed id list is returned so callers can prune in-flight generation
// markers for destroyed nodes.
func (tm *TreeManager) DeleteSubtree(s *Session, id NodeID) ([]NodeID, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	node, exists := s.Nodes[id]
	if !exists {
		return nil, errors.Wrapf(ErrNodeNotFound, "node %s", id)
	}
	if id == s.RootID {
		return nil, ErrRootImmutable
	}

	removed := tm.DescendantIDs(s, id)
	removedSet := map[NodeID]bool{}
	for _, removedID := range removed {
		removedSet[removedID] = true
	}

	activeLost := removedSet[s.ActiveLeafID]
	if !activeLost {
		for pathID := range s.ActivePathIDs() {
			if removedSet[pathID] {
				activeLost = true
				break
			}
		}
	}

	if parent, exists := s.Nodes[node.ParentID]; exists {
		parent.removeChild(id)
	}
	for _, removedID := range removed {
		delete(s.Nodes, removedID)
		delete(s.Selection, removedID)
	}

	if activeLost {
		// Nearest surviving ancestor of the removed subtree, then down to
		// its nearest leaf. The parent always survives (only the subtree
		// below id was removed), the root as last resort.
		anchor := node.ParentID
		if _, exists := s.Nodes[anchor]; !exists {
			anchor = s.RootID
		}
		s.ActiveLeafID = s.NearestLeaf(anchor)
	}
	s.Touch()

	tm.logger.Debug().
		Str("node_id", id.String()).
		Int("removed_count", len(removed)).
		Bool("active_leaf_repaired", activeLost).
		Str("active_leaf", s.ActiveLeafID.String()).
		Msg("deleted subtree")

	return removed, nil
}

// ReparentSubtree grafts the subtree rooted at id under newParentID.
//
// Validation failures (unknown ids, grafting a node onto itself or onto one
// of its own descendants, moving the root) return false with no mutation.
// This is a reported, non-fatal condition rather than an error: the caller
// surfaces a warning and the tree stays untouched.
func (tm *TreeManager) ReparentSubtree(s *Session, id NodeID, newParentID NodeID) bool {
	if s == nil {
		return false
	}
	node, exists := s.Nodes[id]
	if !exists {
		tm.logger.Warn().Str("node_id", id.String()).Msg("reparent rejected: unknown node")
		return false
	}
	newParent, exists := s.Nodes[newParentID]
	if !exists {
		tm.logger.Warn().Str("parent_id", newParentID.String()).Msg("reparent rejected: unknown parent")
		return false
	}
	if id == s.RootID {
		tm.logger.Warn().Str("node_id", id.String()).Msg("reparent rejected: cannot move root")
		return false
	}
	if newParentID == id || tm.IsDescendant(s, id, newParentID) {
		tm.logger.Warn().
			Str("node_id", id.String()).
			Str("parent_id", newParentID.String()).
			Msg("reparent rejected: would create cycle")
		return false
	}
	if newParentID == node.ParentID {
		return true
	}

	if oldParent, exists := s.Nodes[node.ParentID]; exists {
		oldParent.removeChild(id)
	}
	node.ParentID = newParentID
	newParent.ChildrenIDs = append(newParent.ChildrenIDs, id)
	s.Touch()

	tm.logger.Debug().
		Str("node_id", id.String()).
		Str("new_parent_id", newParentID.String()).
		Msg("reparented subtree")

	return true
}

// ToggleEnabled flips the node's enabled flag and returns the new value.
// Descendants keep their own flags; disabling a node does not cascade.
func (tm *TreeManager) ToggleEnabled(s *Session, id NodeID) (bool, error) {
	if s == nil {
		return false, ErrSessionNil
	}
	node, exists := s.Nodes[id]
	if !exists {
		return false, errors.Wrapf(ErrNodeNotFound, "node %s", id)
	}
	node.IsEnabled = !node.IsEnabled
	s.Touch()
	node.LastUpdate = s.UpdatedAt
	return node.IsEnabled, nil
}

// NodeUpdate shallow-merges the set fields into a node. Nil fields are
// left untouched.
type NodeUpdate struct {
	Role          *Role
	Content       *string
	AppendContent *string
	Status        *NodeStatus
	Metadata      *NodeMetadata
}

// UpdateNodeData merges upd into the node. Content replacement and content
// append are distinct so that streaming chunk application stays cheap.
func (tm *TreeManager) UpdateNodeData(s *Session, id NodeID, upd NodeUpdate) error {
	if s == nil {
		return ErrSessionNil
	}
	node, exists := s.Nodes[id]
	if !exists {
		return errors.Wrapf(ErrNodeNotFound, "node %s", id)
	}

	if upd.Role != nil {
		node.Role = *upd.Role
	}
	if upd.Content != nil {
		node.Content = *upd.Content
	}
	if upd.AppendContent != nil {
		node.Content += *upd.AppendContent
	}
	if upd.Status != nil {
		node.Status = *upd.Status
	}
	if upd.Metadata != nil {
		node.Metadata = upd.Metadata
	}
	s.Touch()
	node.LastUpdate = s.UpdatedAt
	return nil
}

// Validate checks the structural invariants of the arena: bidirectional
// parent/child consistency, no duplicate children, a resolvable active
// leaf, and a parentless root.
func (tm *TreeManager) Validate(s *Session) error {
	if s == nil {
		return ErrSessionNil
	}
	root, exists := s.Nodes[s.RootID]
	if !exists {
		return errors.Errorf("root %s not in arena", s.RootID)
	}
	if root.ParentID != NullNode {
		return errors.Errorf("root %s has parent %s", s.RootID, root.ParentID)
	}
	if _, exists := s.Nodes[s.ActiveLeafID]; !exists {
		return errors.Errorf("active leaf %s not in arena", s.ActiveLeafID)
	}

	for id, node := range s.Nodes {
		if node.ID != id {
			return errors.Errorf("node %s stored under key %s", node.ID, id)
		}
		if id != s.RootID {
			parent, exists := s.Nodes[node.ParentID]
			if !exists {
				return errors.Errorf("node %s has unknown parent %s", id, node.ParentID)
			}
			if !parent.HasChild(id) {
				return errors.Errorf("node %s missing from parent %s children", id, node.ParentID)
			}
		}
		seen := map[NodeID]bool{}
		for _, childID := range node.ChildrenIDs {
			if seen[childID] {
				return errors.Errorf("node %s lists child %s twice", id, childID)
			}
			seen[childID] = true
			child, exists := s.Nodes[childID]
			if !exists {
				return errors.Errorf("node %s lists unknown child %s", id, childID)
			}
			if child.ParentID != id {
				return errors.Errorf("child %s of %s points at parent %s", childID, id, child.ParentID)
			}
		}
	}
	return nil
}
