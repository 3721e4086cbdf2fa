package history

import (
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

type DeltaKind string

const (
	DeltaCreate     DeltaKind = "create"
	DeltaDelete     DeltaKind = "delete"
	DeltaUpdate     DeltaKind = "update"
	DeltaRelation   DeltaKind = "relation"
	DeltaActiveLeaf DeltaKind = "active_leaf_change"
)

// Delta is one invertible change. Old and new values are both carried so
// the inverse is computable without consulting any other state: object
// identity is never relied on for "previous state".
type Delta struct {
	Kind   DeltaKind           `json:"kind"`
	NodeID conversation.NodeID `json:"nodeID"`

	Before *conversation.MessageNode `json:"before,omitempty"`
	After  *conversation.MessageNode `json:"after,omitempty"`

	OldParentID conversation.NodeID `json:"oldParentID,omitempty"`
	NewParentID conversation.NodeID `json:"newParentID,omitempty"`
	OldIndex    int                 `json:"oldIndex,omitempty"`
	NewIndex    int                 `json:"newIndex,omitempty"`

	OldActiveLeaf conversation.NodeID `json:"oldActiveLeaf,omitempty"`
	NewActiveLeaf conversation.NodeID `json:"newActiveLeaf,omitempty"`
}

func cloneNode(node *conversation.MessageNode) *conversation.MessageNode {
	if node == nil {
		return nil
	}
	return clone.Clone(node).(*conversation.MessageNode)
}

// NewCreateDelta records the insertion of node at the given position of its
// parent's child list.
func NewCreateDelta(node *conversation.MessageNode, index int) Delta {
	return Delta{
		Kind:        DeltaCreate,
		NodeID:      node.ID,
		After:       cloneNode(node),
		NewParentID: node.ParentID,
		NewIndex:    index,
	}
}

// NewDeleteDelta records the removal of node from the given position of its
// parent's child list. The node must be a leaf; composite subtree removals
// use snapshot entries instead.
func NewDeleteDelta(node *conversation.MessageNode, index int) Delta {
	return Delta{
		Kind:        DeltaDelete,
		NodeID:      node.ID,
		Before:      cloneNode(node),
		OldParentID: node.ParentID,
		OldIndex:    index,
	}
}

// NewUpdateDelta records an in-place field change (edit, toggle, status).
func NewUpdateDelta(before, after *conversation.MessageNode) Delta {
	return Delta{
		Kind:   DeltaUpdate,
		NodeID: after.ID,
		Before: cloneNode(before),
		After:  cloneNode(after),
	}
}

// NewRelationDelta records a reparenting move.
func NewRelationDelta(id, oldParent, newParent conversation.NodeID, oldIndex, newIndex int) Delta {
	return Delta{
		Kind:        DeltaRelation,
		NodeID:      id,
		OldParentID: oldParent,
		NewParentID: newParent,
		OldIndex:    oldIndex,
		NewIndex:    newIndex,
	}
}

// NewActiveLeafDelta records a change of the active leaf.
func NewActiveLeafDelta(oldLeaf, newLeaf conversation.NodeID) Delta {
	return Delta{
		Kind:          DeltaActiveLeaf,
		OldActiveLeaf: oldLeaf,
		NewActiveLeaf: newLeaf,
	}
}

func insertChild(parent *conversation.MessageNode, id conversation.NodeID, index int) {
	if index < 0 || index > len(parent.ChildrenIDs) {
		index = len(parent.ChildrenIDs)
	}
	parent.ChildrenIDs = append(parent.ChildrenIDs, conversation.NullNode)
	copy(parent.ChildrenIDs[index+1:], parent.ChildrenIDs[index:])
	parent.ChildrenIDs[index] = id
}

func removeChild(parent *conversation.MessageNode, id conversation.NodeID) {
	for i, childID := range parent.ChildrenIDs {
		if childID == id {
			parent.ChildrenIDs = append(parent.ChildrenIDs[:i], parent.ChildrenIDs[i+1:]...)
			return
		}
	}
}

func (d Delta) apply(s *conversation.Session) error {
	switch d.Kind {
	case DeltaCreate:
		return d.insert(s, d.After, d.NewParentID, d.NewIndex)
	case DeltaDelete:
		return d.remove(s, d.OldParentID)
	case DeltaUpdate:
		return d.replace(s, d.After)
	case DeltaRelation:
		return d.move(s, d.OldParentID, d.NewParentID, d.NewIndex)
	case DeltaActiveLeaf:
		s.ActiveLeafID = d.NewActiveLeaf
		return nil
	default:
		return errors.Errorf("unknown delta kind %q", d.Kind)
	}
}

func (d Delta) invert(s *conversation.Session) error {
	switch d.Kind {
	case DeltaCreate:
		return d.remove(s, d.NewParentID)
	case DeltaDelete:
		return d.insert(s, d.Before, d.OldParentID, d.OldIndex)
	case DeltaUpdate:
		return d.replace(s, d.Before)
	case DeltaRelation:
		return d.move(s, d.NewParentID, d.OldParentID, d.OldIndex)
	case DeltaActiveLeaf:
		s.ActiveLeafID = d.OldActiveLeaf
		return nil
	default:
		return errors.Errorf("unknown delta kind %q", d.Kind)
	}
}

func (d Delta) insert(s *conversation.Session, node *conversation.MessageNode, parentID conversation.NodeID, index int) error {
	if node == nil {
		return errors.Errorf("delta %s carries no node for %s", d.Kind, d.NodeID)
	}
	parent, exists := s.Nodes[parentID]
	if !exists {
		return errors.Errorf("delta parent %s not in arena", parentID)
	}
	s.Nodes[node.ID] = cloneNode(node)
	insertChild(parent, node.ID, index)
	return nil
}

func (d Delta) remove(s *conversation.Session, parentID conversation.NodeID) error {
	if parent, exists := s.Nodes[parentID]; exists {
		removeChild(parent, d.NodeID)
	}
	delete(s.Nodes, d.NodeID)
	return nil
}

func (d Delta) replace(s *conversation.Session, node *conversation.MessageNode) error {
	if node == nil {
		return errors.Errorf("delta %s carries no node for %s", d.Kind, d.NodeID)
	}
	if _, exists := s.Nodes[d.NodeID]; !exists {
		return errors.Errorf("delta target %s not in arena", d.NodeID)
	}
	s.Nodes[d.NodeID] = cloneNode(node)
	return nil
}

func (d Delta) move(s *conversation.Session, fromParentID, toParentID conversation.NodeID, index int) error {
	node, exists := s.Nodes[d.NodeID]
	if !exists {
		return errors.Errorf("delta target %s not in arena", d.NodeID)
	}
	toParent, exists := s.Nodes[toParentID]
	if !exists {
		return errors.Errorf("delta parent %s not in arena", toParentID)
	}
	if fromParent, exists := s.Nodes[fromParentID]; exists {
		removeChild(fromParent, d.NodeID)
	}
	node.ParentID = toParentID
	insertChild(toParent, d.NodeID, index)
	return nil
}
