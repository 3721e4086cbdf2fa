// Package conversation implements a branching conversation history for an
// LLM chat client.
//
// A Session is an arena of MessageNodes keyed by id: parent/child links are
// id fields, never held object references, so grafting and cascading
// deletion are O(1) pointer updates. The tree supports multiple concurrent
// branches; the active leaf selects which branch is assembled into model
// context.
//
// The TreeManager is the single entry point for structural mutation
// (create, delete, reparent, toggle, update) and maintains the invariant
// that parent.ChildrenIDs contains node.ID iff node.ParentID == parent.ID.
// The BranchManager layers sibling enumeration, branch switching with
// per-parent selection memory, and audit-logged grafting on top of it.
package conversation
