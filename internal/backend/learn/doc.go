// Package learn provides the built-in regression backends: a linear model,
// a dense feed-forward network and a k-nearest-neighbour regressor. All three
// share one Model wrapper that owns feature scaling, evaluation, artifact
// persistence and thread-safe swapping of trained state.
package learn
