// Package embedded declares the narrow interfaces that let independently
// compiled packages (queue, timer, event) handle model elements and events
// without importing the model package itself, and lets model refer to
// events and the running machine without importing the interpreter,
// avoiding an import cycle back into model from the packages model depends
// on.
package embedded

import "context"

// Element is the minimal identity every model object carries.
type Element interface {
	Kind() uint64
	Id() string
}

// NamedElement is an Element addressable within the model's namespace by a
// slash-delimited qualified name, e.g. "/door/open".
type NamedElement interface {
	Element
	Owner() string
	QualifiedName() string
	Name() string
}

// Model is the root namespace of a frozen state machine graph.
type Model interface {
	NamedElement
	Namespace() map[string]NamedElement
}

// Vertex is any node a configuration can traverse: a state or a pseudostate.
type Vertex interface {
	NamedElement
	Transitions() []string
	Region() string
}

// Region is a concurrent sub-area of a composite state or the root machine.
type Region interface {
	NamedElement
	States() []string
	Initial() string
}

// State is a Vertex that may itself own regions (a composite) and carries
// entry/exit/do-activity behavior references.
type State interface {
	Vertex
	Entry() string
	Activity() string
	Exit() string
	Regions() []string
}

// Transition connects a source Vertex to a target Vertex under a trigger.
type Transition interface {
	NamedElement
	Source() string
	Target() string
	Guard() string
	Effect() string
	Events() []Event
}

// Event is a value dispatched into a running machine.
type Event interface {
	Kind() uint64
	Name() string
	Data() any
	Id() string
	Seq() uint64
	Clone(data any) Event
}

// Constraint is a named guard predicate.
type Constraint interface {
	NamedElement
	Expression() any
}

// Behavior is a named action (entry/exit/effect/activity).
type Behavior interface {
	NamedElement
	Action() any
}

// Active is the runtime handle a behavior receives for nested dispatch.
type Active interface {
	context.Context
	NamedElement
	State() []string
	Terminate()
	Dispatch(event Event)
	DispatchAll(event Event)
}
