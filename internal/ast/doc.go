// Package ast defines the intermediate, enrichable representation of a feed.
//
// A Feed is parsed once from its source format, handed through the
// enhancement pipeline, and serialized at the end. Some fields are
// computable slots (Computable[T]) whose value arrives from a deferred
// computation; reading a slot resolves it exactly once.
//
// Invariant: a Feed handed between pipeline steps is always valid input to
// serialization. Resolve surfaces deferred failures, Validate checks
// structure, and Clone gives each step a private copy to mutate so a failed
// step can be discarded.
package ast
