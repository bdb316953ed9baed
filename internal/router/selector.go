package router

import (
	"slices"

	"github.com/seantiz/modelrouter/internal/model"
)

// Roles assigns backend ids to the roles selection rules refer to.
type Roles struct {
	Primary      string // most trusted; accuracy and production
	Fastest      string // fastest inference; speed and demo
	Experimental string // newest; experimental and research
	Default      string // returned when no rule matches
}

// DefaultRoles maps the roles onto the built-in backends.
func DefaultRoles() Roles {
	return Roles{
		Primary:      model.BackendMLP,
		Fastest:      model.BackendLinear,
		Experimental: model.BackendKNN,
		Default:      model.BackendMLP,
	}
}

// ids returns the distinct backend ids the roles refer to, sorted.
func (r Roles) ids() []string {
	ids := []string{r.Primary, r.Fastest, r.Experimental, r.Default}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Selector maps a preference and criteria to a backend id or
// model.BackendEnsemble. It is immutable and safe for concurrent use.
type Selector struct {
	roles Roles
	known map[string]bool
}

// NewSelector builds a selector honouring explicit preferences for the given
// registered ids (plus the ensemble).
func NewSelector(roles Roles, registered []string) *Selector {
	known := map[string]bool{model.BackendEnsemble: true}
	for _, id := range registered {
		known[id] = true
	}
	return &Selector{roles: roles, known: known}
}

// Select returns the backend to use. An explicit, known, non-auto preference
// always wins. Otherwise priority is consulted first, then use case, then
// the default. Select never fails: unmatched criteria fall through.
func (s *Selector) Select(preference string, c model.SelectionCriteria) string {
	if preference != "" && preference != model.PreferenceAuto && s.known[preference] {
		return preference
	}

	if c.IsZero() {
		c.Priority = model.PriorityAccuracy
	}

	switch c.Priority {
	case model.PrioritySpeed:
		return s.roles.Fastest
	case model.PriorityAccuracy:
		return s.roles.Primary
	case model.PriorityExperimental:
		return s.roles.Experimental
	case model.PriorityBalanced:
		return model.BackendEnsemble
	}

	switch c.UseCase {
	case model.UseCaseProduction:
		return s.roles.Primary
	case model.UseCaseResearch:
		return s.roles.Experimental
	case model.UseCaseDemo:
		return s.roles.Fastest
	}

	return s.roles.Default
}
