package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var uuid uuid.UUID
	if err := json.Unmarshal(data, &uuid); err != nil {
		return err
	}
	*id = NodeID(uuid)
	return nil
}

// MarshalText makes NodeID usable as a JSON map key (Session.Nodes).
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

func (id *NodeID) UnmarshalText(data []byte) error {
	u, err := uuid.Parse(string(data))
	if err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) MarshalYAML() (interface{}, error) {
	return uuid.UUID(id).String(), nil
}

func (id *NodeID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode NodeID = NodeID(uuid.Nil)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// NodeStatus tracks the generation lifecycle of a node. The in-flight table
// of the orchestrator, not this field, is the source of truth for "currently
// generating"; the field is reconciled against that table.
type NodeStatus string

const (
	StatusGenerating NodeStatus = "generating"
	StatusComplete   NodeStatus = "complete"
	StatusError      NodeStatus = "error"
)

// TokenUsage represents token usage information common across LLM providers.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// NodeMetadata carries optional bookkeeping attached to a node.
type NodeMetadata struct {
	ModelID        string      `json:"modelID,omitempty" yaml:"modelID,omitempty"`
	ProfileID      string      `json:"profileID,omitempty" yaml:"profileID,omitempty"`
	Usage          *TokenUsage `json:"usage,omitempty" yaml:"usage,omitempty"`
	Truncated      bool        `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Error          string      `json:"error,omitempty" yaml:"error,omitempty"`
	Compression    bool        `json:"compression,omitempty" yaml:"compression,omitempty"`
	SummarizedFrom []NodeID    `json:"summarizedFrom,omitempty" yaml:"summarizedFrom,omitempty"`
}

// MessageNode is a single node in the conversation tree.
//
// Parent/child relationships are stored as ids, never as held object
// references: the tree is an arena (Session.Nodes) and all traversal goes
// through id lookup, so grafting and deletion are pointer-field updates.
type MessageNode struct {
	ID       NodeID `json:"id" yaml:"id"`
	ParentID NodeID `json:"parentID" yaml:"parentID"`
	// ChildrenIDs is ordered by creation, no duplicates.
	ChildrenIDs []NodeID `json:"childrenIDs,omitempty" yaml:"childrenIDs,omitempty"`

	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	Status    NodeStatus `json:"status" yaml:"status"`
	IsEnabled bool       `json:"isEnabled" yaml:"isEnabled"`

	Time       time.Time `json:"time" yaml:"time"`
	LastUpdate time.Time `json:"lastUpdate" yaml:"lastUpdate"`

	Metadata *NodeMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type NodeOption func(*MessageNode)

func WithID(id NodeID) NodeOption {
	return func(node *MessageNode) {
		node.ID = id
	}
}

func WithParentID(parentID NodeID) NodeOption {
	return func(node *MessageNode) {
		node.ParentID = parentID
	}
}

func WithTime(t time.Time) NodeOption {
	return func(node *MessageNode) {
		node.Time = t
		node.LastUpdate = t
	}
}

func WithStatus(status NodeStatus) NodeOption {
	return func(node *MessageNode) {
		node.Status = status
	}
}

func WithMetadata(metadata *NodeMetadata) NodeOption {
	return func(node *MessageNode) {
		node.Metadata = metadata
	}
}

func WithDisabled() NodeOption {
	return func(node *MessageNode) {
		node.IsEnabled = false
	}
}

func NewMessageNode(role Role, content string, options ...NodeOption) *MessageNode {
	ret := &MessageNode{
		ID:         NewNodeID(),
		ParentID:   NullNode,
		Role:       role,
		Content:    content,
		Status:     StatusComplete,
		IsEnabled:  true,
		Time:       time.Now(),
		LastUpdate: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// HasChild reports whether id is one of the node's children.
func (mn *MessageNode) HasChild(id NodeID) bool {
	for _, childID := range mn.ChildrenIDs {
		if childID == id {
			return true
		}
	}
	return false
}

// childIndex returns the position of id in ChildrenIDs, or -1.
func (mn *MessageNode) childIndex(id NodeID) int {
	for i, childID := range mn.ChildrenIDs {
		if childID == id {
			return i
		}
	}
	return -1
}

func (mn *MessageNode) removeChild(id NodeID) {
	idx := mn.childIndex(id)
	if idx < 0 {
		return
	}
	mn.ChildrenIDs = append(mn.ChildrenIDs[:idx], mn.ChildrenIDs[idx+1:]...)
}
