package hsm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/statechart"
	"github.com/stateforward/statechart/clock"
	"github.com/stateforward/statechart/event"
	"github.com/stateforward/statechart/model"
)

type storage struct {
	context.Context
	trace []string
}

func (s *storage) log(name string) { s.trace = append(s.trace, name) }

func record(name string) func(model.Context[*storage], model.Event) {
	return func(ctx model.Context[*storage], _ model.Event) { ctx.Storage.log(name) }
}

// TestLightSwitch is end-to-end scenario 1 from the spec's testable
// properties: sending On then Off moves the configuration as expected, and
// sending On twice in a row drops the second send.
func TestLightSwitch(t *testing.T) {
	m := model.Define("light",
		model.Initial(model.Target("Off")),
		model.State("Off",
			model.Entry(record("Off.entry")),
			model.Exit(record("Off.exit")),
			model.Transition(model.Target("On"), model.Trigger("On")),
		),
		model.State("On",
			model.Entry(record("On.entry")),
			model.Exit(record("On.exit")),
			model.Transition(model.Target("Off"), model.Trigger("Off")),
		),
	)
	require.NoError(t, m.Freeze())

	store := &storage{Context: context.Background()}
	machine, err := hsm.New[*storage](store, m)
	require.NoError(t, err)
	require.NoError(t, machine.Start())
	assert.Equal(t, []string{"/.region/Off"}, machine.State())

	require.NoError(t, machine.Send(event.New("On")))
	assert.Equal(t, []string{"/.region/On"}, machine.State())
	assert.Contains(t, store.trace, "Off.exit")
	assert.Contains(t, store.trace, "On.entry")

	require.NoError(t, machine.Send(event.New("Off")))
	assert.Equal(t, []string{"/.region/Off"}, machine.State())

	before := len(store.trace)
	require.NoError(t, machine.Send(event.New("On")))
	require.NoError(t, machine.Send(event.New("On")))
	// the second On has no enabled transition from On and is dropped, not
	// re-entering On a second time.
	entries := 0
	for _, name := range store.trace[before:] {
		if name == "On.entry" {
			entries++
		}
	}
	assert.Equal(t, 1, entries)
}

// TestTimerSelfLoop is scenario 4: a state with after(1s) resets its own
// timer every time it re-enters, driven by a virtual clock so the test
// never sleeps in wall-clock time.
func TestTimerSelfLoop(t *testing.T) {
	m := model.Define("blinker",
		model.Initial(model.Target("On")),
		model.State("On",
			model.Entry(record("On.entry")),
			model.Transition(
				model.Target("On"),
				model.After(func(model.Context[*storage]) time.Duration { return time.Second }),
			),
		),
	)
	require.NoError(t, m.Freeze())

	vclock := clock.NewVirtual(time.Unix(0, 0))
	store := &storage{Context: context.Background()}
	machine, err := hsm.New[*storage](store, m, hsm.WithClock(vclock))
	require.NoError(t, err)
	require.NoError(t, machine.Start())

	before := len(store.trace)
	vclock.Advance(time.Second)
	require.NoError(t, machine.AwaitSettled(context.Background()))
	after := 0
	for _, name := range store.trace[before:] {
		if name == "On.entry" {
			after++
		}
	}
	assert.Equal(t, 1, after)
	assert.Equal(t, []string{"/.region/On"}, machine.State())
}

// TestCompletionCascade is spec §8 scenario 3: a chain of plain states
// linked only by triggerless transitions must run to completion on its own,
// with no external event needed after Start, since a simple
// state's completion event fires as soon as it settles (no do-activity
// outstanding).
func TestCompletionCascade(t *testing.T) {
	m := model.Define("pipeline",
		model.Initial(model.Target("create_db_entry")),
		model.State("create_db_entry",
			model.Entry(record("create_db_entry.entry")),
			model.Transition(model.Target("send_confirmation")),
		),
		model.State("send_confirmation",
			model.Entry(record("send_confirmation.entry")),
			model.Transition(model.Target("done")),
		),
		model.State("done",
			model.Entry(record("done.entry")),
		),
	)
	require.NoError(t, m.Freeze())

	store := &storage{Context: context.Background()}
	machine, err := hsm.New[*storage](store, m)
	require.NoError(t, err)
	require.NoError(t, machine.Start())

	assert.Equal(t, []string{"/.region/done"}, machine.State())
	assert.Equal(t, []string{"create_db_entry.entry", "send_confirmation.entry", "done.entry"}, store.trace)
}

// TestDump exercises the diagnostic text renderer: the rendered snapshot
// names the machine's id, current phase, and active configuration.
func TestDump(t *testing.T) {
	m := model.Define("light",
		model.Initial(model.Target("Off")),
		model.State("Off", model.Transition(model.Target("On"), model.Trigger("On"))),
		model.State("On"),
	)
	require.NoError(t, m.Freeze())

	store := &storage{Context: context.Background()}
	machine, err := hsm.New[*storage](store, m)
	require.NoError(t, err)
	require.NoError(t, machine.Start())

	dump := machine.Dump()
	assert.Contains(t, dump, "phase: running")
	assert.Contains(t, dump, "active: /.region/Off")
}
