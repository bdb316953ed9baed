package router

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// node is a state of the routing decision graph:
//
//	analyze -> {backend, ensemble} -> end
//
// The graph is acyclic and evaluated exactly once per request.
type node int

const (
	nodeAnalyze node = iota
	nodeBackend
	nodeEnsemble
	nodeEnd
)

func (n node) String() string {
	switch n {
	case nodeAnalyze:
		return "analyze"
	case nodeBackend:
		return "backend"
	case nodeEnsemble:
		return "ensemble"
	case nodeEnd:
		return "end"
	}
	return fmt.Sprintf("node(%d)", int(n))
}

// routeState is the record threaded through the graph.
type routeState struct {
	features   map[string]float64
	preference string
	criteria   model.SelectionCriteria
	selected   string
	result     model.RoutingResult
}

// DefaultWeights returns the default ensemble weighting for roles: the
// primary backend is trusted more than the others.
func DefaultWeights(r Roles) map[string]float64 {
	return map[string]float64{
		r.Primary:      0.4,
		r.Fastest:      0.3,
		r.Experimental: 0.3,
	}
}

// Router runs the routing decision graph. It holds no per-request state.
type Router struct {
	selector *Selector
	backends map[string]bool
	weights  map[string]float64
	catalog  *backend.Catalog
	logger   *slog.Logger
}

// NewRouter builds a router for the registered backend ids. The ensemble
// weight table must name exactly the registered ids, and every role must
// point at a registered backend.
func NewRouter(roles Roles, registered []string, weights map[string]float64, catalog *backend.Catalog, logger *slog.Logger) (*Router, error) {
	ids := slices.Sorted(slices.Values(registered))
	for _, id := range roles.ids() {
		if _, found := slices.BinarySearch(ids, id); !found {
			return nil, fmt.Errorf("%w: role refers to %q", backend.ErrUnknownBackend, id)
		}
	}
	if got := slices.Sorted(maps.Keys(weights)); !slices.Equal(got, ids) {
		return nil, fmt.Errorf("ensemble weights %v do not match registered backends %v", got, ids)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return &Router{
		selector: NewSelector(roles, ids),
		backends: set,
		weights:  maps.Clone(weights),
		catalog:  catalog,
		logger:   logger,
	}, nil
}

// Selector returns the router's selector.
func (r *Router) Selector() *Selector {
	return r.selector
}

// Route decides which backend serves a request. It performs no prediction.
// An error means the selector produced an id that no terminal node handles,
// which is a configuration fault rather than a request fault.
func (r *Router) Route(features map[string]float64, preference string, criteria model.SelectionCriteria) (model.RoutingResult, error) {
	st := &routeState{
		features:   features,
		preference: preference,
		criteria:   criteria,
	}

	for n := nodeAnalyze; n != nodeEnd; {
		var err error
		n, err = r.step(n, st)
		if err != nil {
			r.logger.Error("routing configuration error",
				"preference", preference,
				"selected", st.selected,
				"error", err,
			)
			return model.RoutingResult{}, err
		}
	}

	routingDecisionsTotal.WithLabelValues(st.result.SelectedBackend).Inc()
	return st.result, nil
}

// step executes node n and returns its successor.
func (r *Router) step(n node, st *routeState) (node, error) {
	switch n {
	case nodeAnalyze:
		r.analyze(st)
		st.selected = r.selector.Select(st.preference, st.criteria)
		switch {
		case st.selected == model.BackendEnsemble:
			return nodeEnsemble, nil
		case r.backends[st.selected]:
			return nodeBackend, nil
		default:
			return nodeEnd, fmt.Errorf("%w: selector chose %q", backend.ErrUnknownBackend, st.selected)
		}

	case nodeBackend:
		st.result.SelectedBackend = st.selected
		st.result.Explanation = r.catalog.Explanation(st.selected)
		st.result.EnsembleWeights = map[string]float64{}
		r.attachCharacteristics(st)
		return nodeEnd, nil

	case nodeEnsemble:
		st.result.SelectedBackend = model.BackendEnsemble
		st.result.Explanation = r.catalog.Explanation(model.BackendEnsemble)
		st.result.EnsembleWeights = maps.Clone(r.weights)
		r.attachCharacteristics(st)
		return nodeEnd, nil
	}
	return nodeEnd, fmt.Errorf("router: unexpected node %s", n)
}

// analyze defaults the criteria and records request metadata.
func (r *Router) analyze(st *routeState) {
	if st.criteria.IsZero() {
		st.criteria = model.SelectionCriteria{Priority: model.PriorityAccuracy}
	}
	st.result.Criteria = st.criteria
	st.result.Explanation = "Request analyzed and ready for routing."
	st.result.Metadata = model.RoutingMetadata{
		FeatureCount:     len(st.features),
		HasPreference:    st.preference != "" && st.preference != model.PreferenceAuto,
		AnalysisComplete: true,
	}
}

func (r *Router) attachCharacteristics(st *routeState) {
	if c, ok := r.catalog.Lookup(st.result.SelectedBackend); ok {
		st.result.Characteristics = &c
	}
}
