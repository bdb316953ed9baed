// Package router decides which backend serves a prediction request and
// dispatches the request to it.
//
// Selection is a pure function of the caller's preference and criteria
// (Selector). Routing wraps it in a single-pass decision graph that yields a
// RoutingResult with an explanation and, for the ensemble, default weights
// (Router). Dispatch invokes the chosen backend or fans out across all of
// them and combines the outputs (Dispatcher, Aggregate). Nothing in this
// package holds mutable state, so every entry point is safe for concurrent
// use.
package router
