package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSession(t *testing.T) (*Session, *TreeManager) {
	t.Helper()
	s := NewSession()
	tm := NewTreeManager()
	return s, tm
}

func mustCreate(t *testing.T, tm *TreeManager, s *Session, role Role, content string, parentID NodeID) NodeID {
	t.Helper()
	id, err := tm.CreateNode(s, NewMessageNode(role, content), parentID)
	require.NoError(t, err)
	return id
}

func TestCreateNodeAppendsToParent(t *testing.T) {
	s, tm := buildSession(t)

	first := mustCreate(t, tm, s, RoleUser, "hi", s.RootID)
	second := mustCreate(t, tm, s, RoleUser, "hi again", s.RootID)

	root := s.Nodes[s.RootID]
	require.Equal(t, []NodeID{first, second}, root.ChildrenIDs)
	require.Equal(t, s.RootID, s.Nodes[first].ParentID)
	require.NoError(t, tm.Validate(s))
}

func TestCreateNodeRejectsUnknownParent(t *testing.T) {
	s, tm := buildSession(t)

	_, err := tm.CreateNode(s, NewMessageNode(RoleUser, "orphan"), NewNodeID())
	require.ErrorIs(t, err, ErrParentNotFound)
	require.NoError(t, tm.Validate(s))
}

func TestDeleteSubtreeRemovesDescendantsAndRepairsLeaf(t *testing.T) {
	s, tm := buildSession(t)

	nodeA := mustCreate(t, tm, s, RoleUser, "hi", s.RootID)
	nodeB := mustCreate(t, tm, s, RoleAssistant, "hello", nodeA)
	s.ActiveLeafID = nodeB

	removed, err := tm.DeleteSubtree(s, nodeA)
	require.NoError(t, err)
	require.ElementsMatch(t, []NodeID{nodeA, nodeB}, removed)

	_, exists := s.Nodes[nodeA]
	require.False(t, exists)
	_, exists = s.Nodes[nodeB]
	require.False(t, exists)

	// Whole active path gone: active leaf falls back to the root itself.
	require.Equal(t, s.RootID, s.ActiveLeafID)
	require.NoError(t, tm.Validate(s))
}

func TestDeleteSubtreeKeepsSiblingBranch(t *testing.T) {
	s, tm := buildSession(t)

	question := mustCreate(t, tm, s, RoleUser, "q", s.RootID)
	answer1 := mustCreate(t, tm, s, RoleAssistant, "a1", question)
	answer2 := mustCreate(t, tm, s, RoleAssistant, "a2", question)
	s.ActiveLeafID = answer1

	_, err := tm.DeleteSubtree(s, answer1)
	require.NoError(t, err)

	// Nearest surviving ancestor is the question; descend to its remaining leaf.
	require.Equal(t, answer2, s.ActiveLeafID)
	require.Equal(t, []NodeID{answer2}, s.Nodes[question].ChildrenIDs)
	require.NoError(t, tm.Validate(s))
}

func TestDeleteSubtreeRejectsRoot(t *testing.T) {
	s, tm := buildSession(t)

	_, err := tm.DeleteSubtree(s, s.RootID)
	require.ErrorIs(t, err, ErrRootImmutable)
}

func TestReparentSubtreeRejectsCycle(t *testing.T) {
	s, tm := buildSession(t)

	nodeX := mustCreate(t, tm, s, RoleUser, "x", s.RootID)
	nodeY := mustCreate(t, tm, s, RoleAssistant, "y", nodeX)

	require.False(t, tm.ReparentSubtree(s, nodeX, nodeY))
	require.False(t, tm.ReparentSubtree(s, nodeX, nodeX))

	// Tree unchanged.
	require.Equal(t, s.RootID, s.Nodes[nodeX].ParentID)
	require.Equal(t, []NodeID{nodeY}, s.Nodes[nodeX].ChildrenIDs)
	require.NoError(t, tm.Validate(s))
}

func TestReparentSubtreeMovesBranch(t *testing.T) {
	s, tm := buildSession(t)

	branchA := mustCreate(t, tm, s, RoleUser, "a", s.RootID)
	branchB := mustCreate(t, tm, s, RoleUser, "b", s.RootID)
	leaf := mustCreate(t, tm, s, RoleAssistant, "leaf", branchA)

	require.True(t, tm.ReparentSubtree(s, leaf, branchB))

	require.Equal(t, branchB, s.Nodes[leaf].ParentID)
	require.Empty(t, s.Nodes[branchA].ChildrenIDs)
	require.Equal(t, []NodeID{leaf}, s.Nodes[branchB].ChildrenIDs)
	require.NoError(t, tm.Validate(s))
}

func TestReparentSubtreeRejectsUnknownIDs(t *testing.T) {
	s, tm := buildSession(t)

	node := mustCreate(t, tm, s, RoleUser, "n", s.RootID)
	require.False(t, tm.ReparentSubtree(s, NewNodeID(), node))
	require.False(t, tm.ReparentSubtree(s, node, NewNodeID()))
	require.NoError(t, tm.Validate(s))
}

func TestToggleEnabledDoesNotCascade(t *testing.T) {
	s, tm := buildSession(t)

	parent := mustCreate(t, tm, s, RoleUser, "p", s.RootID)
	child := mustCreate(t, tm, s, RoleAssistant, "c", parent)

	enabled, err := tm.ToggleEnabled(s, parent)
	require.NoError(t, err)
	require.False(t, enabled)
	require.True(t, s.Nodes[child].IsEnabled)

	enabled, err = tm.ToggleEnabled(s, parent)
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestUpdateNodeDataMergesFields(t *testing.T) {
	s, tm := buildSession(t)

	id := mustCreate(t, tm, s, RoleAssistant, "partial", s.RootID)

	status := StatusGenerating
	appendText := " response"
	err := tm.UpdateNodeData(s, id, NodeUpdate{
		AppendContent: &appendText,
		Status:        &status,
	})
	require.NoError(t, err)

	node := s.Nodes[id]
	require.Equal(t, "partial response", node.Content)
	require.Equal(t, StatusGenerating, node.Status)
	require.Equal(t, RoleAssistant, node.Role)
}

func TestUpdateNodeDataRejectsUnknownNode(t *testing.T) {
	s, tm := buildSession(t)

	err := tm.UpdateNodeData(s, NewNodeID(), NodeUpdate{})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestValidateDetectsBrokenBackReference(t *testing.T) {
	s, tm := buildSession(t)

	id := mustCreate(t, tm, s, RoleUser, "n", s.RootID)

	// Corrupt the arena behind the manager's back.
	s.Nodes[id].ParentID = NewNodeID()
	require.Error(t, tm.Validate(s))
}
