package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Session holds one branching conversation: a flat id->node arena plus the
// root id and the currently active leaf. Multiple leaves may exist at any
// time; the active leaf selects which branch is shown and sent to the model.
//
// ActiveLeafID must always resolve to an existing node. Operations that can
// invalidate it (subtree deletion, undo/redo) repair it before returning.
type Session struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Nodes        map[NodeID]*MessageNode `json:"nodes" yaml:"nodes"`
	RootID       NodeID                  `json:"rootID" yaml:"rootID"`
	ActiveLeafID NodeID                  `json:"activeLeafID" yaml:"activeLeafID"`

	// Selection remembers, per parent, the last child chosen when switching
	// branches, so that switching back and forth round-trips to the same leaf.
	Selection map[NodeID]NodeID `json:"selection,omitempty" yaml:"selection,omitempty"`

	AgentID              string   `json:"agentID,omitempty" yaml:"agentID,omitempty"`
	SystemPromptOverride string   `json:"systemPromptOverride,omitempty" yaml:"systemPromptOverride,omitempty"`
	TemperatureOverride  *float64 `json:"temperatureOverride,omitempty" yaml:"temperatureOverride,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.ID = id
	}
}

func WithName(name string) SessionOption {
	return func(s *Session) {
		s.Name = name
	}
}

func WithAgentID(agentID string) SessionOption {
	return func(s *Session) {
		s.AgentID = agentID
	}
}

// NewSession creates a session seeded with a synthetic root node. The root
// anchors the tree but is excluded from the active path and from any model
// payload.
func NewSession(options ...SessionOption) *Session {
	root := NewMessageNode(RoleSystem, "")
	now := time.Now()

	ret := &Session{
		ID:           uuid.NewString(),
		Nodes:        map[NodeID]*MessageNode{root.ID: root},
		RootID:       root.ID,
		ActiveLeafID: root.ID,
		Selection:    map[NodeID]NodeID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (s *Session) Node(id NodeID) (*MessageNode, bool) {
	node, exists := s.Nodes[id]
	return node, exists
}

// Touch updates the session's UpdatedAt timestamp. Called by the managers
// after every committed mutation.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// ActivePath returns the nodes from root to the active leaf, root excluded.
func (s *Session) ActivePath() []*MessageNode {
	var path []*MessageNode
	id := s.ActiveLeafID
	for id != NullNode && id != s.RootID {
		node, exists := s.Nodes[id]
		if !exists {
			break
		}
		path = append([]*MessageNode{node}, path...)
		id = node.ParentID
	}
	return path
}

// ActivePathIDs returns the id set of the active path, root excluded.
func (s *Session) ActivePathIDs() map[NodeID]bool {
	ids := map[NodeID]bool{}
	for _, node := range s.ActivePath() {
		ids[node.ID] = true
	}
	return ids
}

// RepairActiveLeaf re-anchors ActiveLeafID if it no longer resolves. It
// falls back to the deepest leaf below the root, or the root itself when
// the tree holds nothing else. Historical states restored by undo/redo may
// reference since-deleted nodes, so this runs after every history apply.
func (s *Session) RepairActiveLeaf() {
	if _, exists := s.Nodes[s.ActiveLeafID]; exists {
		return
	}
	s.ActiveLeafID = s.NearestLeaf(s.RootID)
}

// NearestLeaf descends from id, preferring the remembered selection for
// each parent and falling back to the most recently created child.
func (s *Session) NearestLeaf(id NodeID) NodeID {
	current := id
	for {
		node, exists := s.Nodes[current]
		if !exists {
			return s.RootID
		}
		if len(node.ChildrenIDs) == 0 {
			return current
		}
		next := NullNode
		if remembered, ok := s.Selection[current]; ok && node.HasChild(remembered) {
			next = remembered
		} else {
			next = node.ChildrenIDs[len(node.ChildrenIDs)-1]
		}
		current = next
	}
}
