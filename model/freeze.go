package model

import (
	"fmt"
	"path"

	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/kind"
)

// Freeze validates and locks the model against the model-definition
// contract (spec §6), building the structural graph queries operate
// against. It is idempotent to call twice only in the sense that a second
// call fails with ModelFrozenError rather than silently succeeding --
// mutation after freeze is never allowed (spec §4.1: "attempts to mutate
// after freeze fail with a ModelFrozen error").
func (m *Model) Freeze() error {
	m.frozenMu.Lock()
	defer m.frozenMu.Unlock()
	if m.frozen {
		return ModelFrozenError{}
	}
	if len(m.regions) == 0 {
		return fmt.Errorf("root must declare at least one region")
	}
	g, err := buildGraph(m)
	if err != nil {
		return err
	}
	m.graph = g

	for qualifiedName, e := range m.namespace {
		if kind.IsKind(e.Kind(), kind.Vertex) && !g.Reachable(qualifiedName) {
			return UnreachableStateError{QualifiedName: qualifiedName}
		}
	}

	for qualifiedName, e := range m.namespace {
		r, ok := e.(*region)
		if !ok {
			continue
		}
		if r.initial == "" {
			return MissingInitialError{Region: qualifiedName}
		}
	}

	for qualifiedName, e := range m.namespace {
		if !kind.IsKind(e.Kind(), kind.Choice) {
			continue
		}
		v := e.(*vertex)
		if len(v.transitions) == 0 {
			return IncompleteChoiceError{Choice: qualifiedName}
		}
		last := get[*transition](m, v.transitions[len(v.transitions)-1])
		if last != nil && last.guard != "" {
			return IncompleteChoiceError{Choice: qualifiedName}
		}
	}

	if err := checkAmbiguousTransitions(m); err != nil {
		return err
	}

	m.frozen = true
	return nil
}

// checkAmbiguousTransitions flags a source vertex declaring more than one
// unguarded transition for the same trigger name -- the Selector could
// not deterministically pick between them (spec §7 AmbiguousTransition).
func checkAmbiguousTransitions(m *Model) error {
	bySource := map[string][]*transition{}
	for _, e := range m.namespace {
		t, ok := e.(*transition)
		if !ok {
			continue
		}
		bySource[t.source] = append(bySource[t.source], t)
	}
	for source, transitions := range bySource {
		seen := map[string]bool{}
		for _, t := range transitions {
			if t.guard != "" {
				continue
			}
			for _, evt := range t.Events() {
				if seen[evt.Name()] {
					return AmbiguousTransitionError{Source: source, Event: evt.Name()}
				}
				seen[evt.Name()] = true
			}
		}
	}
	return nil
}

// Frozen reports whether Freeze has already succeeded.
func (m *Model) Frozen() bool {
	m.frozenMu.Lock()
	defer m.frozenMu.Unlock()
	return m.frozen
}

// Parent returns the structural parent of a qualified name, or "" for the
// root.
func (m *Model) Parent(qualifiedName string) string {
	if m.graph == nil {
		return path.Dir(qualifiedName)
	}
	return m.graph.Parent(qualifiedName)
}

// Children returns the direct structural children of a qualified name.
func (m *Model) Children(qualifiedName string) []string {
	if m.graph == nil {
		return nil
	}
	return m.graph.Children(qualifiedName)
}

// Ancestors returns every structural ancestor of qualifiedName, root-first.
func (m *Model) Ancestors(qualifiedName string) []string {
	if m.graph == nil {
		return nil
	}
	return m.graph.Ancestors(qualifiedName)
}

// IsDescendant reports whether target descends from ancestor.
func (m *Model) IsDescendant(ancestor, target string) bool {
	if m.graph == nil {
		return IsAncestor(ancestor, target)
	}
	return m.graph.IsDescendant(ancestor, target)
}

// Get retrieves a namespace element by qualified name, type-asserted to T.
func Get[T embedded.NamedElement](m *Model, name string) T {
	return get[T](m, name)
}
