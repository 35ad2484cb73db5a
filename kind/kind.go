// Package kind implements the bitmask-based element taxonomy used to tag every
// vertex, behavior, event, and transition in a model graph. Each kind packs its
// own id plus the ids of every ancestor kind into a single uint64 so that
// IsKind can answer "is this a Vertex" and "is this specifically a Choice" with
// the same cheap bitwise check, without a type switch or reflection.
package kind

const (
	length   = 64
	idLength = 8
	depthMax = length / idLength
	idMask   = (1 << idLength) - 1
)

// Bases returns the ancestor ids packed into t, most specific first.
func Bases(t uint64) [depthMax]uint64 {
	var bases [depthMax]uint64
	for i := 1; i < depthMax; i++ {
		bases[i-1] = (t >> (idLength * i)) & idMask
	}
	return bases
}

// Kind allocates a new kind id, packing in the ids of its bases so that
// IsKind can recognize it as any of its ancestors.
func Kind(id uint64, bases ...uint64) uint64 {
	id = id & idMask
	ids := make(map[uint64]struct{})
	for _, base := range bases {
		for j := 0; j < depthMax; j++ {
			baseId := (base >> (idLength * j)) & idMask
			if baseId == 0 {
				break
			}
			if _, ok := ids[baseId]; !ok {
				ids[baseId] = struct{}{}
				id |= baseId << (idLength * len(ids))
			}
		}
	}
	return id
}

// IsKind reports whether kind is, or descends from, any of bases.
func IsKind(k uint64, bases ...uint64) bool {
	for _, base := range bases {
		baseId := base & idMask
		if k == baseId {
			return true
		}
		for i := 0; i < depthMax; i++ {
			if (k>>(idLength*i))&idMask == baseId {
				return true
			}
		}
	}
	return false
}

var (
	Null = Kind(0)

	Element      = Kind(1)
	Vertex       = Kind(2, Element)
	Region       = Kind(3, Element)
	Constraint   = Kind(4, Element)
	Behavior     = Kind(5, Element)
	StateMachine = Kind(6, Behavior)

	State = Kind(7, Vertex)
	// Final is a stable (non-transient) State that, once active, marks its
	// owning Region complete. It is deliberately not a Pseudostate: I3 only
	// excludes transient vertices from the active-leaf snapshot.
	Final = Kind(8, State)

	Transition = Kind(9, Element)
	Internal   = Kind(10, Transition)
	External   = Kind(11, Transition)
	Local      = Kind(12, Transition)
	Self       = Kind(13, Transition)

	Event           = Kind(14, Element)
	TimeEvent       = Kind(15, Event)
	CompletionEvent = Kind(16, Event)
	ChangeEvent     = Kind(17, Event)

	Concurrent = Kind(18, Behavior)

	Pseudostate    = Kind(19, Vertex)
	Initial        = Kind(20, Pseudostate)
	Choice         = Kind(21, Pseudostate)
	Junction       = Kind(22, Pseudostate)
	Fork           = Kind(23, Pseudostate)
	Join           = Kind(24, Pseudostate)
	Terminate      = Kind(25, Pseudostate)
	ShallowHistory = Kind(26, Pseudostate)
	DeepHistory    = Kind(27, Pseudostate)
)
