// Package inference runs model generations against the conversation tree.
//
// The Orchestrator is the only component that starts, cancels or settles
// generations. Each in-flight generation is tracked by node id in a single
// table that doubles as the source of truth for "is this node generating";
// the persisted node status is reconciled against that table whenever it
// shrinks, so crashes and hard reloads never leave a node stuck in the
// generating state.
//
// Engines are pluggable through the Engine interface. The orchestrator
// feeds them a pipeline-assembled request and applies streamed chunks to
// the target node in arrival order.
package inference
