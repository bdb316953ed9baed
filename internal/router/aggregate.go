package router

import (
	"errors"
	"maps"
	"slices"
)

// ErrNoBackendAvailable is returned when an ensemble has no usable member.
var ErrNoBackendAvailable = errors.New("no trained backend available for ensemble")

// Aggregate combines ensemble member scores into one value.
//
// The current policy is the unweighted arithmetic mean of every available
// score. The router's ensemble weights are reported alongside the result
// but are not applied here.
func Aggregate(predictions map[string]float64) (float64, error) {
	if len(predictions) == 0 {
		return 0, ErrNoBackendAvailable
	}
	// Sum in key order so the result does not depend on map iteration.
	var sum float64
	for _, id := range slices.Sorted(maps.Keys(predictions)) {
		sum += predictions[id]
	}
	return sum / float64(len(predictions)), nil
}
