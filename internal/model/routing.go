package model

// RoutingMetadata carries diagnostics produced while analyzing a request.
type RoutingMetadata struct {
	FeatureCount     int  `json:"feature_count"`
	HasPreference    bool `json:"has_preference"`
	AnalysisComplete bool `json:"analysis_complete"`
}

// RoutingResult is the outcome of a single routing decision. It is created
// fresh per request and never mutated after it is returned.
type RoutingResult struct {
	SelectedBackend string             `json:"selected_backend"`
	Explanation     string             `json:"explanation"`
	EnsembleWeights map[string]float64 `json:"ensemble_weights"`
	Criteria        SelectionCriteria  `json:"criteria"`
	Metadata        RoutingMetadata    `json:"metadata"`
	Characteristics *Characteristics   `json:"characteristics,omitempty"`
}

// IsEnsemble reports whether the request was routed to the ensemble.
func (r RoutingResult) IsEnsemble() bool {
	return r.SelectedBackend == BackendEnsemble
}
