// Package selector implements C7: given the current Configuration and an
// Event, choose the maximal consistent set of enabled transitions, honoring
// hierarchy conflict resolution and orthogonal-region independence (spec
// §4.3). The teacher's hsm.go has no notion of regions at all -- it walks a
// single active leaf's ancestor chain and fires the first enabled
// transition it finds (see hsm.process). Selector generalizes that walk to
// every active leaf across every region, then resolves conflicts between
// leaves the way spec §4.3 point 2 describes.
package selector

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/stateforward/statechart/configuration"
	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/kind"
	"github.com/stateforward/statechart/model"
)

// NoEnabledTransition is returned by Select when no active state has a
// transition matching the event (spec §4.3: "not an error to the user").
type NoEnabledTransition struct{ Event string }

func (e NoEnabledTransition) Error() string {
	return fmt.Sprintf("no enabled transition for event %s", e.Event)
}

// GuardImpure names the failure mode of a guard behavior that attempts to
// suspend (spec §4.4). The selector can't observe suspension directly and
// no code path returns this type; the behavior executor declares its own
// GuardImpure and does not return that one either.
type GuardImpure struct{ Guard string }

func (e GuardImpure) Error() string { return fmt.Sprintf("guard %s suspended", e.Guard) }

// Selected is one fully expanded transition decision: the real model
// Transition chosen, plus -- after pseudostate expansion -- the concrete
// leaf-level exit and entry sets that transition ultimately produces.
type Selected struct {
	Transition embedded.Transition
	Source     string // the active leaf this decision was chosen for
	Exit       []string
	Entry      []string
}

// GuardEvaluator evaluates a named guard constraint against an event,
// supplied by the behavior executor so the selector stays free of the
// generic Context[T] type parameter.
type GuardEvaluator func(guardQualifiedName string, event embedded.Event) (bool, error)

// pathTransition is the slice of a model transition the selector needs
// beyond the plain embedded.Transition view: its precomputed per-leaf
// exit/enter paths and its declaration ordinal for tiebreaks.
type pathTransition interface {
	embedded.Transition
	Paths(from string) (enter, exit []string, ok bool)
	Ordinal() uint64
}

type Selector struct {
	model *model.Model
}

func New(m *model.Model) *Selector {
	return &Selector{model: m}
}

// Select walks every active leaf's ancestor chain looking for the deepest
// enabled transition (spec §4.3 point 2: inner-first), resolves conflicts
// between leaves in different branches of the same region tree, then
// expands any pseudostate targets to concrete leaf-level exit/entry sets.
//
// Candidates from different orthogonal regions never conflict (spec §4.3
// point 3) and are returned together.
func (s *Selector) Select(cfg *configuration.Configuration, event embedded.Event, evaluate GuardEvaluator) ([]Selected, error) {
	leaves := cfg.ActiveLeaves()
	sort.Strings(leaves)

	type candidate struct {
		transition pathTransition
		leaf       string
		depth      int
	}
	var candidates []candidate
	for _, leaf := range leaves {
		current := leaf
		for current != "" && current != "/" {
			// current climbs past Region ancestors too (a leaf's path
			// alternates vertex/region segments); only a Vertex can own
			// transitions, so a Region here is skipped rather than ending
			// the walk, or a composite's own transitions would become
			// unreachable the moment one of its regions has an active leaf.
			v := model.Get[embedded.Vertex](s.model, current)
			if v == nil {
				current = path.Dir(current)
				continue
			}
			t, err := s.enabled(v, event, evaluate)
			if err != nil {
				return nil, err
			}
			if t != nil {
				candidates = append(candidates, candidate{
					transition: t,
					leaf:       leaf,
					depth:      strings.Count(current, "/"),
				})
				break
			}
			current = path.Dir(current)
		}
	}
	if len(candidates) == 0 {
		return nil, NoEnabledTransition{Event: event.Name()}
	}

	// Resolve conflicts: two candidates conflict when their exit sets (as
	// seen from their respective leaf) intersect. Deeper source wins;
	// ties break by declaration order (spec §4.3 point 2).
	kept := make([]bool, len(candidates))
	for i := range candidates {
		kept[i] = true
	}
	exitSets := make([][]string, len(candidates))
	for i, c := range candidates {
		_, exit, _ := c.transition.Paths(c.leaf)
		exitSets[i] = exit
	}
	for i := range candidates {
		if !kept[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if !kept[j] {
				continue
			}
			if !intersects(exitSets[i], exitSets[j]) {
				continue
			}
			switch {
			case candidates[i].depth == candidates[j].depth:
				if candidates[i].transition.Ordinal() <= candidates[j].transition.Ordinal() {
					kept[j] = false
				} else {
					kept[i] = false
				}
			case candidates[i].depth > candidates[j].depth:
				kept[j] = false
			default:
				kept[i] = false
			}
		}
	}

	var selections []Selected
	for i, c := range candidates {
		if !kept[i] {
			continue
		}
		expanded, err := s.expand(c.transition, c.leaf, event, evaluate)
		if err != nil {
			return nil, err
		}
		selections = append(selections, expanded...)
	}
	if len(selections) == 0 {
		return nil, NoEnabledTransition{Event: event.Name()}
	}
	return selections, nil
}

// intersects reports whether two transitions' exit footprints overlap.
// Equal entries are the obvious case; an ancestor/descendant pair also
// overlaps, since a transition that exits a composite exits every state
// nested beneath it even though its own exit list only ever names the
// states from its source up to the LCA, not every descendant leaf below
// that already-listed ancestor.
func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || model.IsAncestor(x, y) || model.IsAncestor(y, x) {
				return true
			}
		}
	}
	return false
}


func (s *Selector) enabled(source embedded.Vertex, event embedded.Event, evaluate GuardEvaluator) (pathTransition, error) {
	for _, qualifiedName := range source.Transitions() {
		t := model.Get[pathTransition](s.model, qualifiedName)
		if t == nil {
			continue
		}
		matched := false
		for _, evt := range t.Events() {
			triggerName := evt.Name()
			if named, ok := evt.(interface{ QualifiedName() string }); ok {
				triggerName = named.QualifiedName()
			}
			if kind.IsKind(evt.Kind(), kind.TimeEvent) {
				// Time-elapsed events carry the armed state's qualified name
				// as Name() and the armed trigger's qualified name as Data()
				// (see timer.Service.Arm / event.NewTimeElapsed) rather than
				// a glob-matchable Name(), so they need their own match rule.
				if !kind.IsKind(event.Kind(), kind.TimeEvent) || event.Name() != source.QualifiedName() {
					continue
				}
				if armKey, ok := event.Data().(string); !ok || armKey != triggerName {
					continue
				}
				matched = true
				break
			}
			if ok, _ := path.Match(evt.Name(), event.Name()); ok {
				matched = true
				break
			}
			if kind.IsKind(evt.Kind(), kind.CompletionEvent) && kind.IsKind(event.Kind(), kind.CompletionEvent) && triggerName == event.Name() {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if t.Guard() != "" {
			ok, err := evaluate(t.Guard(), event)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		return t, nil
	}
	return nil, nil
}

// expand continues traversal past any pseudostate target until a real
// leaf state is reached (spec §4.3 point 4), producing one Selected per
// concrete path -- more than one only for a Fork. Every hop's own enter
// segment is prepended exactly once here, after the recursive call into
// expandPseudostate returns, so a chain of pseudostates accumulates one
// enter segment per level instead of re-deriving (and duplicating) a
// segment a deeper recursive call already folded in.
func (s *Selector) expand(t pathTransition, leaf string, event embedded.Event, evaluate GuardEvaluator) ([]Selected, error) {
	enter, exit, ok := t.Paths(leaf)
	if !ok {
		return nil, fmt.Errorf("no precomputed path for %s from %s", t.QualifiedName(), leaf)
	}
	target := model.Get[embedded.Vertex](s.model, t.Target())
	if target == nil || !kind.IsKind(target.Kind(), kind.Pseudostate) {
		return []Selected{{Transition: t, Source: leaf, Exit: exit, Entry: enter}}, nil
	}
	branches, err := s.expandPseudostate(target, t, leaf, exit, event, evaluate)
	if err != nil {
		return nil, err
	}
	for i := range branches {
		branches[i].Entry = append(append([]string{}, enter...), branches[i].Entry...)
	}
	return branches, nil
}

func (s *Selector) expandPseudostate(v embedded.Vertex, origin embedded.Transition, leaf string, exit []string, event embedded.Event, evaluate GuardEvaluator) ([]Selected, error) {
	switch {
	case kind.IsKind(v.Kind(), kind.Fork):
		var out []Selected
		for _, qualifiedName := range v.Transitions() {
			next := model.Get[pathTransition](s.model, qualifiedName)
			if next == nil {
				continue
			}
			branch, err := s.expand(next, v.QualifiedName(), event, evaluate)
			if err != nil {
				return nil, err
			}
			for i := range branch {
				branch[i].Exit = exit
			}
			out = append(out, branch...)
		}
		return out, nil
	case kind.IsKind(v.Kind(), kind.Choice), kind.IsKind(v.Kind(), kind.Junction):
		for _, qualifiedName := range v.Transitions() {
			next := model.Get[pathTransition](s.model, qualifiedName)
			if next == nil {
				continue
			}
			if next.Guard() != "" {
				ok, err := evaluate(next.Guard(), event)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			branch, err := s.expand(next, v.QualifiedName(), event, evaluate)
			if err != nil {
				return nil, err
			}
			for i := range branch {
				branch[i].Exit = exit
			}
			return branch, nil
		}
		return nil, fmt.Errorf("choice/junction %s has no matching transition", v.QualifiedName())
	case kind.IsKind(v.Kind(), kind.Terminate):
		return []Selected{{Transition: origin, Source: leaf, Exit: exit, Entry: nil}}, nil
	case kind.IsKind(v.Kind(), kind.ShallowHistory), kind.IsKind(v.Kind(), kind.DeepHistory):
		return []Selected{{Transition: origin, Source: leaf, Exit: exit, Entry: []string{v.QualifiedName()}}}, nil
	case kind.IsKind(v.Kind(), kind.Join):
		// Single-step join: this Selected just records arrival at the
		// join; ResolveJoins merges arrivals across a batch once every
		// declared source has shown up.
		return []Selected{{Transition: origin, Source: leaf, Exit: exit, Entry: []string{v.QualifiedName()}}}, nil
	default:
		return []Selected{{Transition: origin, Source: leaf, Exit: exit, Entry: []string{v.QualifiedName()}}}, nil
	}
}

// ResolveJoins scans a batch of Selected results for ones that landed on a
// Join pseudostate and merges them once every declared join-source has
// arrived within the same batch. Arrivals at a join whose sources have not
// all arrived in the same batch are dropped from the batch, so those
// transitions neither exit nor enter anything in this step; a join does
// not hold arrivals over from one step to the next.
func (s *Selector) ResolveJoins(selections []Selected) []Selected {
	byJoin := map[string][]int{}
	for i, sel := range selections {
		if len(sel.Entry) != 1 {
			continue
		}
		v := model.Get[embedded.Vertex](s.model, sel.Entry[0])
		if v == nil || !kind.IsKind(v.Kind(), kind.Join) {
			continue
		}
		byJoin[sel.Entry[0]] = append(byJoin[sel.Entry[0]], i)
	}
	if len(byJoin) == 0 {
		return selections
	}
	drop := map[int]bool{}
	var additions []Selected
	for joinName, indices := range byJoin {
		v := model.Get[embedded.Vertex](s.model, joinName)
		sources, _ := joinSources(v)
		arrived := map[string]bool{}
		for _, i := range indices {
			arrived[selections[i].Source] = true
		}
		complete := len(sources) > 0
		for _, src := range sources {
			if !arrived[src] {
				complete = false
				break
			}
		}
		for _, i := range indices {
			drop[i] = true
		}
		if !complete {
			continue
		}
		for _, qualifiedName := range v.Transitions() {
			next := model.Get[pathTransition](s.model, qualifiedName)
			if next == nil {
				continue
			}
			enter, _, ok := next.Paths(joinName)
			if !ok {
				enter = []string{next.Target()}
			}
			additions = append(additions, Selected{Transition: next, Source: joinName, Exit: nil, Entry: enter})
		}
	}
	var out []Selected
	for i, sel := range selections {
		if drop[i] {
			continue
		}
		out = append(out, sel)
	}
	out = append(out, additions...)
	return out
}

func joinSources(v embedded.Vertex) ([]string, bool) {
	type metadataHolder interface{ Metadata() map[string]any }
	holder, ok := v.(metadataHolder)
	if !ok {
		return nil, false
	}
	sources, ok := holder.Metadata()["join-sources"].([]string)
	return sources, ok
}
