// Package mergekit implements an offline-first conflict-resolution engine.
//
// Given a local snapshot of an entity and the remote snapshot observed after a
// sync round-trip, the engine classifies the conflict, diffs the two records
// field by field, applies the per-entity resolution configuration from a
// Registry, and returns a ResolutionResult. Resolve never returns an error:
// internal failures degrade to a remote-wins fallback reported through the
// logger, metrics and hooks, because a failed decision must not abort a sync
// cycle.
//
// The engine performs no I/O and never blocks. Ancestor lookups, transports
// and persistence belong to the surrounding sync orchestration; the engine
// only consumes a fully built ConflictCase.
package mergekit
