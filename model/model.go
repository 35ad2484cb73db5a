// Package model implements C1: the immutable model graph (spec §4.1) --
// states, regions, pseudostates and transitions declared through a builder
// DSL modeled directly on the teacher's hsm.go Define/State/Transition
// functions, generalized with a first-class Region vertex so a composite
// state can own more than one (orthogonal regions, spec §3 "Region").
package model

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/kind"
)

/******* Element *******/

type element struct {
	kind          uint64
	qualifiedName string
	id            string
	metadata      map[string]any
}

func (e *element) Kind() uint64 {
	if e == nil {
		return 0
	}
	return e.kind
}

func (e *element) Owner() string {
	if e == nil {
		return ""
	}
	return path.Dir(e.qualifiedName)
}

func (e *element) Id() string {
	if e == nil {
		return ""
	}
	return e.id
}

func (e *element) Name() string {
	if e == nil {
		return ""
	}
	return path.Base(e.qualifiedName)
}

func (e *element) QualifiedName() string {
	if e == nil {
		return ""
	}
	return e.qualifiedName
}

func (e *element) Metadata() map[string]any {
	if e == nil {
		return nil
	}
	return e.metadata
}

/******* Vertex *******/

type vertex struct {
	element
	transitions []string
	region      string
}

func (v *vertex) Transitions() []string { return v.transitions }
func (v *vertex) Region() string        { return v.region }

/******* Region *******/

type region struct {
	element
	states  []string
	initial string
}

func (r *region) States() []string { return r.states }
func (r *region) Initial() string  { return r.initial }

/******* State *******/

type state struct {
	vertex
	entry    string
	exit     string
	activity string
	regions  []string
}

func (s *state) Entry() string      { return s.entry }
func (s *state) Activity() string   { return s.activity }
func (s *state) Exit() string       { return s.exit }
func (s *state) Regions() []string  { return s.regions }

/******* Transition *******/

// paths precomputes, for every vertex the transition's source state's
// subtree could be entered/exited from, the ordered exit and entry lists --
// the same precomputation the teacher's hsm.go does so the interpreter
// never walks the hierarchy at dispatch time.
type paths struct {
	enter []string
	exit  []string
}

type transition struct {
	element
	source  string
	target  string
	guard   string
	effect  string
	events  []embedded.Event
	paths   map[string]paths
	// ordinal is the transition's declaration order within the whole
	// model, used by the selector to break conflict ties deterministically
	// (spec §4.3 point 2: "ties at equal depth are broken by declaration
	// order within the model").
	ordinal uint64
}

// Ordinal exposes the declaration-order tiebreak key to the selector.
func (t *transition) Ordinal() uint64 { return t.ordinal }

func (t *transition) Guard() string            { return t.guard }
func (t *transition) Effect() string           { return t.effect }
func (t *transition) Events() []embedded.Event { return t.events }
func (t *transition) Source() string           { return t.source }
func (t *transition) Target() string           { return t.target }

// Paths exposes the precomputed exit/enter path for the given currently
// active vertex (used by the selector/interpreter, never by the builder).
func (t *transition) Paths(from string) (enter, exit []string, ok bool) {
	p, ok := t.paths[from]
	return p.enter, p.exit, ok
}

/******* Behavior / Constraint *******/

type behavior[T context.Context] struct {
	element
	action func(ctx Context[T], event Event)
}

func (b *behavior[T]) Action() any { return b.action }

type constraint[T context.Context] struct {
	element
	expression func(ctx Context[T], event Event) bool
}

func (c *constraint[T]) Expression() any { return c.expression }

/******* Event reference (declared in the model, not dispatched) *******/

type eventRef struct {
	element
	data any
}

func (e *eventRef) Data() any                         { return e.data }
func (e *eventRef) Seq() uint64                        { return 0 }
func (e *eventRef) Clone(data any) embedded.Event {
	return &eventRef{element: e.element, data: data}
}

/******* Model *******/

type Element = embedded.Element
type Event = embedded.Event

// Model is the namespace every builder function mutates during Define,
// and the frozen graph every downstream component queries afterward.
type Model struct {
	state
	namespace map[string]embedded.NamedElement
	elements  []RedefinableElement
	frozen    bool
	frozenMu  sync.Mutex
	graph     *modelGraph
}

func (m *Model) Namespace() map[string]embedded.NamedElement { return m.namespace }

func (m *Model) Push(partial RedefinableElement) {
	m.elements = append(m.elements, partial)
}

// RedefinableElement is the builder-DSL unit: a function that mutates the
// in-progress Model and returns the element it just declared or modified.
type RedefinableElement = func(model *Model, stack []embedded.NamedElement) embedded.NamedElement

var ordinalSeq atomic.Uint64

func apply(model *Model, stack []embedded.NamedElement, partials ...RedefinableElement) {
	for _, partial := range partials {
		partial(model, stack)
	}
}

// Define builds a Model from a tree of builder calls, the same worklist
// pattern as the teacher's hsm.go Define: partials can enqueue further
// partials onto model.elements (via model.Push) to defer validation until
// every forward reference has had a chance to be declared.
func Define[T interface {
	RedefinableElement | string
}](nameOrElement T, elements ...RedefinableElement) *Model {
	name := "/"
	switch v := any(nameOrElement).(type) {
	case string:
		name = path.Join(name, v)
	case RedefinableElement:
		elements = append([]RedefinableElement{v}, elements...)
	}
	model := &Model{
		state: state{
			vertex: vertex{element: element{kind: kind.State, qualifiedName: "/", id: name}},
		},
		namespace: map[string]embedded.NamedElement{},
		elements:  elements,
	}
	stack := []embedded.NamedElement{model}
	for len(model.elements) > 0 {
		pending := model.elements
		model.elements = nil
		apply(model, stack, pending...)
	}
	return model
}

func find(stack []embedded.NamedElement, kinds ...uint64) embedded.NamedElement {
	for i := len(stack) - 1; i >= 0; i-- {
		if kind.IsKind(stack[i].Kind(), kinds...) {
			return stack[i]
		}
	}
	return nil
}

func get[T embedded.NamedElement](model *Model, name string) T {
	var zero T
	if name == "" {
		return zero
	}
	if element, ok := model.namespace[name]; ok {
		if typed, ok := element.(T); ok {
			return typed
		}
	}
	return zero
}

// ensureRegion returns the Region that owns direct children of composite,
// creating an implicit default region (qualified name composite+"/.region")
// the first time a bare State/pseudostate is declared inside composite
// without an explicit Region() wrapper. Declaring Region() explicitly
// instead gives a composite orthogonal regions, spec §3.
func ensureRegion(model *Model, composite embedded.NamedElement) *region {
	qualifiedName := path.Join(composite.QualifiedName(), ".region")
	if existing := get[*region](model, qualifiedName); existing != nil {
		return existing
	}
	r := &region{element: element{kind: kind.Region, qualifiedName: qualifiedName}}
	model.namespace[qualifiedName] = r
	s, ok := composite.(*state)
	if !ok {
		if mdl, ok := composite.(*Model); ok {
			s = &mdl.state
		}
	}
	if s != nil {
		s.regions = append(s.regions, qualifiedName)
	}
	return r
}

// regionOwner resolves the Region that should own a directly-nested
// vertex/pseudostate declaration: the nearest explicit Region on the
// builder stack, or the implicit default region of the nearest composite.
func regionOwner(model *Model, stack []embedded.NamedElement) *region {
	if r := find(stack, kind.Region); r != nil {
		return r.(*region)
	}
	composite := find(stack, kind.State)
	if composite == nil {
		return nil
	}
	return ensureRegion(model, composite)
}

// Region explicitly declares an orthogonal region of the nearest enclosing
// State (or the root Model). Composites with more than one Region execute
// them concurrently under run-to-completion (spec §3, §4.6 step 4-8).
func Region(name string, elements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.State)
		if owner == nil {
			panic(fmt.Errorf("region must be called within a State or the root Model"))
		}
		qualifiedName := path.Join(owner.QualifiedName(), name)
		r := &region{element: element{kind: kind.Region, qualifiedName: qualifiedName}}
		model.namespace[qualifiedName] = r
		var s *state
		switch o := owner.(type) {
		case *state:
			s = o
		case *Model:
			s = &o.state
		}
		s.regions = append(s.regions, qualifiedName)
		stack = append(stack, r)
		apply(model, stack, elements...)
		return r
	}
}

// State declares a vertex, composite or leaf, within the nearest Region
// (creating the owning composite's implicit default region if none was
// declared explicitly).
func State(name string, elements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		r := regionOwner(model, stack)
		if r == nil {
			slog.Error("state must be called within a State, Region, or the root Model")
			panic(fmt.Errorf("state must be called within a State, Region, or the root Model"))
		}
		s := &state{
			vertex: vertex{element: element{kind: kind.State, qualifiedName: path.Join(r.QualifiedName(), name)}, region: r.QualifiedName()},
		}
		model.namespace[s.QualifiedName()] = s
		r.states = append(r.states, s.QualifiedName())
		stack = append(stack, s)
		apply(model, stack, elements...)
		return s
	}
}

// Final declares a stable terminal vertex of a region (spec §3: "zero or
// more final states"). Once active, Final marks its region complete
// (invariant I4); it carries no entry/exit/activity and has no outgoing
// transitions of its own.
func Final(name string) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		r := regionOwner(model, stack)
		if r == nil {
			panic(fmt.Errorf("final must be called within a State, Region, or the root Model"))
		}
		s := &state{
			vertex: vertex{element: element{kind: kind.Final, qualifiedName: path.Join(r.QualifiedName(), name)}, region: r.QualifiedName()},
		}
		model.namespace[s.QualifiedName()] = s
		r.states = append(r.states, s.QualifiedName())
		return s
	}
}

// LCA finds the lowest common ancestor of two qualified names, the same
// root-first path walk as the teacher's hsm.go LCA (corrected for the
// a==b case, which the teacher's version collapses to path.Dir(a) --
// the LCA of a node and itself is the node, not its parent).
func LCA(a, b string) string {
	if a == b {
		return a
	}
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if path.Dir(a) == path.Dir(b) {
		return path.Dir(a)
	}
	if IsAncestor(a, b) {
		return a
	}
	if IsAncestor(b, a) {
		return b
	}
	return LCA(path.Dir(a), path.Dir(b))
}

// IsAncestor reports whether current is a proper ancestor of target in the
// qualified-name hierarchy.
func IsAncestor(current, target string) bool {
	current = path.Clean(current)
	target = path.Clean(target)
	if current == target || current == "." || target == "." {
		return false
	}
	if current == "/" {
		return true
	}
	parent := path.Dir(target)
	for parent != "/" {
		if parent == current {
			return true
		}
		parent = path.Dir(parent)
	}
	return false
}

func Transition[T interface {
	RedefinableElement | string
}](nameOrElement T, elements ...RedefinableElement) RedefinableElement {
	name := ""
	switch v := any(nameOrElement).(type) {
	case string:
		name = v
	case RedefinableElement:
		elements = append([]RedefinableElement{v}, elements...)
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Vertex)
		if owner == nil {
			panic(fmt.Errorf("transition must be called within a State or pseudostate"))
		}
		if name == "" {
			name = fmt.Sprintf("transition_%d", len(model.namespace))
		}
		t := &transition{
			events: []embedded.Event{},
			element: element{
				kind:          kind.Transition,
				qualifiedName: path.Join(owner.QualifiedName(), name),
			},
			paths:   map[string]paths{},
			ordinal: ordinalSeq.Add(1),
		}
		model.namespace[t.QualifiedName()] = t
		stack = append(stack, t)
		apply(model, stack, elements...)
		if t.source == "" {
			t.source = owner.QualifiedName()
		}
		sourceElement, ok := model.namespace[t.source]
		if !ok {
			panic(fmt.Errorf("missing source %s", t.source))
		}
		if v, ok := sourceElement.(*vertex); ok {
			v.transitions = append(v.transitions, t.QualifiedName())
		} else if s, ok := sourceElement.(*state); ok {
			s.transitions = append(s.transitions, t.QualifiedName())
		}
		if len(t.events) == 0 && !kind.IsKind(sourceElement.Kind(), kind.Pseudostate) {
			qualifiedName := path.Join(t.source, ".completion")
			t.events = append(t.events, &eventRef{
				element: element{kind: kind.CompletionEvent, qualifiedName: qualifiedName},
			})
		}
		if t.target == t.source {
			t.kind = kind.Self
		} else if t.target == "" {
			t.kind = kind.Internal
		} else if IsAncestor(t.source, t.target) {
			t.kind = kind.Local
		} else {
			t.kind = kind.External
		}
		lca := LCA(t.source, t.target)
		enter := []string{}
		entering := t.target
		for entering != lca && entering != "/" && entering != "" {
			enter = append([]string{entering}, enter...)
			entering = path.Dir(entering)
		}
		if kind.IsKind(t.kind, kind.Self) {
			enter = append(enter, sourceElement.QualifiedName())
		}
		if kind.IsKind(sourceElement.Kind(), kind.Initial) {
			t.paths[path.Dir(sourceElement.QualifiedName())] = paths{
				enter: enter,
				exit:  []string{sourceElement.QualifiedName()},
			}
		} else {
			model.Push(func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
				for qualifiedName, e := range model.namespace {
					if strings.HasPrefix(qualifiedName, t.source) && kind.IsKind(e.Kind(), kind.Vertex, kind.StateMachine) {
						exit := []string{}
						if t.kind != kind.Internal {
							exiting := e.QualifiedName()
							for exiting != lca && exiting != "/" && exiting != "" {
								exit = append(exit, exiting)
								exiting = path.Dir(exiting)
							}
						}
						t.paths[e.QualifiedName()] = paths{enter: enter, exit: exit}
					}
				}
				return t
			})
		}
		t.metadata = map[string]any{
			"source": t.source,
			"target": t.target,
			"guard":  t.guard,
			"effect": t.effect,
		}
		return t
	}
}

// siblingRegion resolves the region a relative Source/Target name should be
// joined against: the nearest explicit Region on the stack, or otherwise
// the owning region of the nearest enclosing vertex (the transition's own
// vertex when Source/Target is declared inline inside it, per the vertex's
// own .region field set at its creation) -- never the vertex's own
// qualified name, which would resolve a bare sibling name as if it were
// one of the vertex's own children.
func siblingRegion(stack []embedded.NamedElement) string {
	if r := find(stack, kind.Region); r != nil {
		return r.QualifiedName()
	}
	if v := find(stack, kind.Vertex); v != nil {
		if rv, ok := v.(embedded.Vertex); ok {
			return rv.Region()
		}
	}
	return ""
}

func Source[T interface {
	RedefinableElement | string
}](nameOrElement T) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("source must be called within a Transition"))
		}
		var name string
		switch v := any(nameOrElement).(type) {
		case string:
			name = v
			if !path.IsAbs(name) {
				if region := siblingRegion(stack); region != "" {
					name = path.Join(region, name)
				}
			}
			model.Push(func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
				if _, ok := model.namespace[name]; !ok {
					panic(fmt.Errorf("missing source %s", name))
				}
				return owner
			})
		case RedefinableElement:
			element := v(model, stack)
			if element == nil {
				panic(fmt.Errorf("source is nil"))
			}
			name = element.QualifiedName()
		}
		owner.(*transition).source = name
		return owner
	}
}

func Target[T interface {
	RedefinableElement | string
}](nameOrElement T) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("target must be called within a Transition"))
		}
		t := owner.(*transition)
		if t.target != "" {
			panic(fmt.Errorf("transition %s already has target %s", t.QualifiedName(), t.target))
		}
		var qualifiedName string
		switch v := any(nameOrElement).(type) {
		case string:
			qualifiedName = v
			if !path.IsAbs(qualifiedName) {
				if region := siblingRegion(stack); region != "" {
					qualifiedName = path.Join(region, qualifiedName)
				}
			}
			model.Push(func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
				if _, ok := model.namespace[qualifiedName]; !ok {
					panic(fmt.Errorf("missing target %s for transition %s", qualifiedName, t.QualifiedName()))
				}
				return t
			})
		case RedefinableElement:
			element := v(model, stack)
			if element == nil {
				panic(fmt.Errorf("target is nil"))
			}
			qualifiedName = element.QualifiedName()
		}
		t.target = qualifiedName
		return t
	}
}

func Defer(eventNames ...string) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.State)
		if owner == nil {
			panic(fmt.Errorf("defer must be called within a State"))
		}
		s := owner.(*state)
		if s.metadata == nil {
			s.metadata = map[string]any{}
		}
		patterns, _ := s.metadata["defer"].([]string)
		s.metadata["defer"] = append(patterns, eventNames...)
		return owner
	}
}

// DeferPatterns returns the event-name glob patterns state declares it
// defers while active (spec §4.2 defer, §5 Deferral), or nil if none.
func DeferPatterns(s embedded.State) []string {
	type metadataHolder interface{ Metadata() map[string]any }
	holder, ok := s.(metadataHolder)
	if !ok {
		return nil
	}
	patterns, _ := holder.Metadata()["defer"].([]string)
	return patterns
}

func Effect[T context.Context](fn func(ctx Context[T], event Event), maybeName ...string) RedefinableElement {
	name := ".effect"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("effect must be called within a Transition"))
		}
		b := &behavior[T]{
			element: element{kind: kind.Behavior, qualifiedName: path.Join(owner.QualifiedName(), name)},
			action:  fn,
		}
		model.namespace[b.QualifiedName()] = b
		owner.(*transition).effect = b.QualifiedName()
		return owner
	}
}

func Guard[T context.Context](fn func(ctx Context[T], event Event) bool, maybeName ...string) RedefinableElement {
	name := ".guard"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("guard must be called within a Transition"))
		}
		c := &constraint[T]{
			element:    element{kind: kind.Constraint, qualifiedName: path.Join(owner.QualifiedName(), name)},
			expression: fn,
		}
		model.namespace[c.QualifiedName()] = c
		owner.(*transition).guard = c.QualifiedName()
		return owner
	}
}

// Initial declares the mandatory, single initial pseudostate of a Region
// (spec §3 "Contains exactly one initial pseudostate").
func Initial[T interface {
	string | RedefinableElement
}](nameOrElement T, elements ...RedefinableElement) RedefinableElement {
	name := ".initial"
	switch v := any(nameOrElement).(type) {
	case string:
		name = v
	case RedefinableElement:
		elements = append([]RedefinableElement{v}, elements...)
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		r := regionOwner(model, stack)
		if r == nil {
			panic(fmt.Errorf("initial must be called within a State, Region, or the root Model"))
		}
		if r.initial != "" {
			panic(fmt.Errorf("region %s already has an initial pseudostate", r.QualifiedName()))
		}
		initial := &vertex{
			element: element{kind: kind.Initial, qualifiedName: path.Join(r.QualifiedName(), name)},
			region:  r.QualifiedName(),
		}
		model.namespace[initial.QualifiedName()] = initial
		r.initial = initial.QualifiedName()
		stack = append(stack, initial)
		t := Transition(Source(initial.QualifiedName()), elements...)(model, stack).(*transition)
		if t.guard != "" {
			panic(fmt.Errorf("initial %s cannot have a guard", initial.QualifiedName()))
		}
		if len(t.events) > 0 {
			panic(fmt.Errorf("initial %s cannot have triggers", initial.QualifiedName()))
		}
		return t
	}
}

// pseudostate is shared construction logic for Choice/Junction/Fork/Join/
// Terminate/ShallowHistory/DeepHistory: all are region-scoped vertices
// distinguished only by kind and by how the selector expands them
// (spec §4.3 point 4).
func pseudostate(k uint64, name string, elements []RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		r := regionOwner(model, stack)
		if r == nil {
			panic(fmt.Errorf("pseudostate must be called within a State, Region, or the root Model"))
		}
		v := &vertex{
			element: element{kind: k, qualifiedName: path.Join(r.QualifiedName(), name)},
			region:  r.QualifiedName(),
		}
		model.namespace[v.QualifiedName()] = v
		stack = append(stack, v)
		apply(model, stack, elements...)
		return v
	}
}

// Choice evaluates its outgoing transitions' guards dynamically, at the
// moment of traversal, in declaration order; the last declared transition
// must carry the "else" fallback (no guard) or the model fails to freeze
// with IncompleteChoice (spec §6).
func Choice(name string, elements ...RedefinableElement) RedefinableElement {
	return pseudostate(kind.Choice, name, elements)
}

// Junction evaluates its outgoing transitions' guards as if they belonged
// to the originating transition (static, spec §4.3 point 4): guards may
// only read data stable from the triggering event.
func Junction(name string, elements ...RedefinableElement) RedefinableElement {
	return pseudostate(kind.Junction, name, elements)
}

// Fork splits a single incoming transition into every one of its outgoing
// transitions atomically (spec §4.3 point 4): all targets become active in
// the same step.
func Fork(name string, elements ...RedefinableElement) RedefinableElement {
	return pseudostate(kind.Fork, name, elements)
}

// Join fires only when transitions from every named incoming source reach
// it within the same step; its incoming set is recorded in metadata under
// "join-sources" for the selector.
func Join(name string, sources []string, elements ...RedefinableElement) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		element := pseudostate(kind.Join, name, elements)(model, stack)
		v := element.(*vertex)
		if v.metadata == nil {
			v.metadata = map[string]any{}
		}
		v.metadata["join-sources"] = sources
		return v
	}
}

// Terminate, once reached by a transition, ends the entire state machine
// (spec §3 kind list): the interpreter stops the machine at the end of
// that step. It has no outgoing transitions.
func Terminate(name string) RedefinableElement {
	return pseudostate(kind.Terminate, name, nil)
}

// ShallowHistory re-enters the single direct child active when its region
// was last exited, or the region's plain initial pseudostate if the region
// has never been entered before.
func ShallowHistory(name string) RedefinableElement {
	return pseudostate(kind.ShallowHistory, name, nil)
}

// DeepHistory re-enters every active leaf beneath a region as it stood at
// last exit, or the region's plain initial pseudostate if never entered.
func DeepHistory(name string) RedefinableElement {
	return pseudostate(kind.DeepHistory, name, nil)
}

func Entry[T context.Context](fn func(ctx Context[T], event Event), maybeName ...string) RedefinableElement {
	name := ".entry"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.State)
		if owner == nil {
			panic(fmt.Errorf("entry must be called within a State"))
		}
		b := &behavior[T]{
			element: element{kind: kind.Behavior, qualifiedName: path.Join(owner.QualifiedName(), name)},
			action:  fn,
		}
		model.namespace[b.QualifiedName()] = b
		owner.(*state).entry = b.QualifiedName()
		return b
	}
}

func Activity[T context.Context](fn func(ctx Context[T], event Event), maybeName ...string) RedefinableElement {
	name := ".activity"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.State)
		if owner == nil {
			panic(fmt.Errorf("activity must be called within a State"))
		}
		b := &behavior[T]{
			element: element{kind: kind.Concurrent, qualifiedName: path.Join(owner.QualifiedName(), name)},
			action:  fn,
		}
		model.namespace[b.QualifiedName()] = b
		owner.(*state).activity = b.QualifiedName()
		return b
	}
}

func Exit[T context.Context](fn func(ctx Context[T], event Event), maybeName ...string) RedefinableElement {
	name := ".exit"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.State)
		if owner == nil {
			panic(fmt.Errorf("exit must be called within a State"))
		}
		b := &behavior[T]{
			element: element{kind: kind.Behavior, qualifiedName: path.Join(owner.QualifiedName(), name)},
			action:  fn,
		}
		model.namespace[b.QualifiedName()] = b
		owner.(*state).exit = b.QualifiedName()
		return b
	}
}

func Trigger[T interface {
	string | *eventRef
}](events ...T) RedefinableElement {
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("trigger must be called within a Transition"))
		}
		t := owner.(*transition)
		for _, e := range events {
			switch v := any(e).(type) {
			case string:
				t.events = append(t.events, &eventRef{element: element{kind: kind.Event, qualifiedName: v}})
			case *eventRef:
				t.events = append(t.events, v)
			}
		}
		return owner
	}
}

// After declares a time-elapsed trigger relative to the moment the
// transition's source state was entered (spec §4.5). expr is evaluated by
// the interpreter when the source state is entered, not at declaration
// time, so it may depend on runtime state; the resulting duration is
// handed to the Timer Service.
func After[T context.Context](expr func(ctx Context[T]) time.Duration, maybeName ...string) RedefinableElement {
	name := ".after"
	if len(maybeName) > 0 {
		name = maybeName[0]
	}
	return func(model *Model, stack []embedded.NamedElement) embedded.NamedElement {
		owner := find(stack, kind.Transition)
		if owner == nil {
			panic(fmt.Errorf("after must be called within a Transition"))
		}
		t := owner.(*transition)
		qualifiedName := path.Join(t.QualifiedName(), strconv.Itoa(len(t.events)), name)
		t.events = append(t.events, &eventRef{
			element: element{kind: kind.TimeEvent, qualifiedName: qualifiedName},
			data:    expr,
		})
		return owner
	}
}

// Context is the behavior-facing handle to a running state machine,
// embedding whatever runtime implements embedded.Active (the interpreter's
// Machine[T], or the behavior executor's per-activity wrapper that binds a
// do-activity to its own cancellable context) plus application storage T, the
// same generic shape as the teacher's Context[T] but decoupled from any
// concrete interpreter type so model never imports the interpreter
// package.
type Context[T context.Context] struct {
	embedded.Active
	Storage T
}
