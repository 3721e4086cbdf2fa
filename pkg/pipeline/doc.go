// Package pipeline assembles the model-ready request for the active branch
// of a conversation.
//
// A pipeline is an ordered chain of independently pluggable processors:
// plain descriptors (id, name, priority, enabled flag, function) held in a
// registry and dispatched by a sorted-filter-iterate over the enabled set.
// Each step is isolated: a failing or panicking processor is reported and
// the rest of the chain keeps running on the partial context, because a
// broken optional step must never block sending the message.
//
// The canonical chain: load active path, apply substitution rules, assemble
// injected worldbook content, resolve attachment transcriptions, enforce
// the token budget, format provider messages, resolve asset references.
package pipeline
