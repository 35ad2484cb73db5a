// Package event implements the Event value described in spec §3: a value
// tagged by kind, carrying an opaque payload, uniquely identified and
// consumed exactly once. Events are pooled (teacher's hsm.go keeps a
// sync.Pool of *event for exactly this reason) since a running machine
// allocates one per dispatch and per completion.
package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/kind"
	"github.com/vmihailenco/msgpack/v5"
)

var sequence atomic.Uint64

var _ embedded.Event = (*Event)(nil)

// Event is the concrete embedded.Event implementation used throughout the
// interpreter. Time-elapsed and completion events are constructed by the
// runtime itself (timer.Service, the interpreter's completion-emission
// step); signal events are constructed by application code via New.
type Event struct {
	kind uint64
	name string
	id   string
	seq  uint64
	data any
}

// New constructs a signal event matching transitions triggered by name.
// Matching uses path.Match semantics (see selector) with the transition's
// trigger as the pattern, so Trigger() names may contain glob wildcards the
// way the teacher's patterns do; name itself is matched literally.
func New(name string, maybeData ...any) *Event {
	var data any
	if len(maybeData) > 0 {
		data = maybeData[0]
	}
	return &Event{
		kind: kind.Event,
		name: name,
		id:   uuid.NewString(),
		seq:  sequence.Add(1),
		data: data,
	}
}

// newWithKind is used internally to mint time-elapsed and completion events,
// which are tagged with a more specific kind than a plain signal.
func newWithKind(k uint64, name string, data any) *Event {
	return &Event{
		kind: k,
		name: name,
		id:   uuid.NewString(),
		seq:  sequence.Add(1),
		data: data,
	}
}

// NewTimeElapsed builds the event the Timer Service enqueues when an
// after(Δ) deadline fires. The event's name is the source state's qualified
// name (spec §6: "{ kind: after, source-state-id, deadline }"), and the
// payload carries the key the timer was armed under.
func NewTimeElapsed(sourceStateId string, payload any) *Event {
	return newWithKind(kind.TimeEvent, sourceStateId, payload)
}

// NewCompletion builds the implicit event the interpreter emits when a
// state's work (or all of a composite's regions) has settled.
func NewCompletion(stateId string) *Event {
	return newWithKind(kind.CompletionEvent, stateId+"/.completion", stateId)
}

func (e *Event) Kind() uint64  { return e.kind }
func (e *Event) Name() string  { return e.name }
func (e *Event) Id() string    { return e.id }
func (e *Event) Seq() uint64   { return e.seq }
func (e *Event) Data() any     { return e.data }

// Clone produces a new event with the same kind/name but fresh identity and
// sequence number, carrying data. Used by Machine.DispatchAll to hand each
// receiving machine its own copy.
func (e *Event) Clone(data any) embedded.Event {
	return &Event{
		kind: e.kind,
		name: e.name,
		id:   uuid.NewString(),
		seq:  sequence.Add(1),
		data: data,
	}
}

func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"kind": e.kind,
		"name": e.name,
		"id":   e.id,
		"seq":  e.seq,
		"data": e.data,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return e.fromMap(m)
}

// MarshalBinary/UnmarshalBinary back Event with msgpack rather than JSON for
// payloads JSON can't express cleanly (time.Duration, binary blobs), e.g.
// when an After() expression's argument crosses a process boundary via
// Context.Dispatch on a remote-backed Active.
func (e *Event) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(map[string]any{
		"kind": e.kind,
		"name": e.name,
		"id":   e.id,
		"seq":  e.seq,
		"data": e.data,
	})
}

func (e *Event) UnmarshalBinary(data []byte) error {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return err
	}
	return e.fromMap(m)
}

func (e *Event) fromMap(m map[string]any) error {
	if k, ok := m["kind"].(uint64); ok {
		e.kind = k
	} else if k, ok := m["kind"].(int64); ok {
		e.kind = uint64(k)
	}
	if name, ok := m["name"].(string); ok {
		e.name = name
	}
	if id, ok := m["id"].(string); ok {
		e.id = id
	}
	if seq, ok := m["seq"].(uint64); ok {
		e.seq = seq
	} else if seq, ok := m["seq"].(int64); ok {
		e.seq = uint64(seq)
	}
	e.data = m["data"]
	return nil
}

var pool = sync.Pool{New: func() any { return &Event{} }}

// Acquire and Release let hot dispatch paths reuse Event allocations, the
// way the teacher's package-level sync.Pool does for NewEvent.
func Acquire(name string, data any) *Event {
	e := pool.Get().(*Event)
	e.kind = kind.Event
	e.name = name
	e.id = uuid.NewString()
	e.seq = sequence.Add(1)
	e.data = data
	return e
}

func Release(e *Event) {
	*e = Event{}
	pool.Put(e)
}
