// Package control implements the per-sequence process controller layer.
//
// A Controller consumes prompt, append and fork events for one logical
// generation sequence and emits exactly one decision per event: stop,
// sample under the current bias vector, splice recent history, fork into
// ranked copies, or wait on shared variables and sibling termination.
//
// The package fixes only the legal shapes of events and decisions and their
// transition rules; the policy of a controller (what bias to compute, when
// to stop, when to fork) is application-specific. Two reference policies
// ship with the package: PhraseController and VoteController.
package control
