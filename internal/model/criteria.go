package model

import "strings"

// Priority is the dominant concern of a caller asking for automatic selection.
type Priority string

// Priority values.
const (
	PrioritySpeed        Priority = "speed"
	PriorityAccuracy     Priority = "accuracy"
	PriorityExperimental Priority = "experimental"
	PriorityBalanced     Priority = "balanced"
)

// DatasetSize is a hint about how much data the caller works with.
type DatasetSize string

// DatasetSize values.
const (
	DatasetSmall  DatasetSize = "small"
	DatasetMedium DatasetSize = "medium"
	DatasetLarge  DatasetSize = "large"
)

// UseCase is the context a prediction is made in.
type UseCase string

// UseCase values.
const (
	UseCaseProduction UseCase = "production"
	UseCaseResearch   UseCase = "research"
	UseCaseDemo       UseCase = "demo"
)

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PrioritySpeed, PriorityAccuracy, PriorityExperimental, PriorityBalanced:
		return true
	}
	return false
}

// Valid reports whether d is one of the enumerated dataset sizes.
func (d DatasetSize) Valid() bool {
	switch d {
	case DatasetSmall, DatasetMedium, DatasetLarge:
		return true
	}
	return false
}

// Valid reports whether u is one of the enumerated use cases.
func (u UseCase) Valid() bool {
	switch u {
	case UseCaseProduction, UseCaseResearch, UseCaseDemo:
		return true
	}
	return false
}

// SelectionCriteria are optional hints guiding automatic backend selection.
// An empty field means "absent". Values are only ever set through
// ParseCriteria or NewCriteria, so a non-empty field is always valid.
type SelectionCriteria struct {
	Priority    Priority    `json:"priority,omitempty"`
	DatasetSize DatasetSize `json:"dataset_size,omitempty"`
	UseCase     UseCase     `json:"use_case,omitempty"`
}

// NewCriteria builds criteria from raw strings. Values outside the
// enumerations are dropped.
func NewCriteria(priority, datasetSize, useCase string) SelectionCriteria {
	var c SelectionCriteria
	if p := Priority(normalize(priority)); p.Valid() {
		c.Priority = p
	}
	if d := DatasetSize(normalize(datasetSize)); d.Valid() {
		c.DatasetSize = d
	}
	if u := UseCase(normalize(useCase)); u.Valid() {
		c.UseCase = u
	}
	return c
}

// ParseCriteria converts a loosely typed criteria object (as decoded from
// JSON) into SelectionCriteria. Unknown keys, non-string values and values
// outside the enumerations are treated as absent; parsing never fails.
func ParseCriteria(raw map[string]any) SelectionCriteria {
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	return NewCriteria(str("priority"), str("dataset_size"), str("use_case"))
}

// IsZero reports whether no criterion is set.
func (c SelectionCriteria) IsZero() bool {
	return c.Priority == "" && c.DatasetSize == "" && c.UseCase == ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
