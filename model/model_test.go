package model_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/model"
)

type storage struct{ context.Context }

// TestImplicitDefaultRegion documents the qualified-name shape every other
// package's tests assume: a State declared without an explicit Region lands
// in the composite's implicit ".region", and the root Model's own
// QualifiedName is always "/" regardless of the name passed to Define (the
// name is kept separately as Id()).
func TestImplicitDefaultRegion(t *testing.T) {
	m := model.Define("light",
		model.Initial(model.Target("Off")),
		model.State("Off", model.Transition(model.Target("On"), model.Trigger("On"))),
		model.State("On", model.Transition(model.Target("Off"), model.Trigger("Off"))),
	)
	require.NoError(t, m.Freeze())

	off := model.Get[embedded.NamedElement](m, "/.region/Off")
	require.NotNil(t, off)
	assert.Equal(t, "/.region/Off", off.QualifiedName())
	assert.Equal(t, "Off", off.Name())
}

// TestExplicitRegionHasNoImplicitSegment checks the counterpart: wrapping
// states in an explicit Region skips the ".region" segment entirely, the
// convention the microwave example's orthogonal regions rely on.
func TestExplicitRegionHasNoImplicitSegment(t *testing.T) {
	m := model.Define("door",
		model.Region("door",
			model.Initial(model.Target("closed")),
			model.State("closed", model.Transition(model.Target("open"), model.Trigger("Open"))),
			model.State("open", model.Transition(model.Target("closed"), model.Trigger("Close"))),
		),
	)
	require.NoError(t, m.Freeze())

	closed := model.Get[embedded.NamedElement](m, "/door/closed")
	require.NotNil(t, closed)
	assert.Equal(t, "/door/closed", closed.QualifiedName())
}

// TestSiblingTransitionResolvesToSibling is a regression test for the
// relative Target/Source resolution bug: a Transition declared inline
// inside its own source State must resolve a bare relative name against
// the region the source was declared in, not against the source's own
// qualified name (which would look for a child of the source instead of a
// sibling of it).
func TestSiblingTransitionResolvesToSibling(t *testing.T) {
	m := model.Define("light",
		model.Initial(model.Target("Off")),
		model.State("Off", model.Transition(model.Target("On"), model.Trigger("On"))),
		model.State("On", model.Transition(model.Target("Off"), model.Trigger("Off"))),
	)
	require.NoError(t, m.Freeze())

	on := model.Get[embedded.NamedElement](m, "/.region/On")
	require.NotNil(t, on, "Off's transition must resolve On as a sibling, not a child of Off")
}

// TestNestedRegionsResolveAgainstOwningVertex exercises a transition
// declared inside a State nested two Regions deep, matching the microwave
// example's power/on/light region shape.
func TestNestedRegionsResolveAgainstOwningVertex(t *testing.T) {
	m := model.Define("microwave",
		model.Region("power",
			model.Initial(model.Target("off")),
			model.State("off", model.Transition(model.Target("on"), model.Trigger("PowerOn"))),
			model.State("on",
				model.Region("light",
					model.Initial(model.Target("dark")),
					model.State("dark", model.Transition(model.Target("lit"), model.Trigger("DoorOpen"))),
					model.State("lit", model.Transition(model.Target("dark"), model.Trigger("DoorClose"))),
				),
			),
		),
	)
	require.NoError(t, m.Freeze())

	lit := model.Get[embedded.NamedElement](m, "/power/on/light/lit")
	require.NotNil(t, lit)
	assert.Equal(t, "/power/on/light", m.Parent("/power/on/light/lit"))
}

func TestFreezeRejectsSecondCall(t *testing.T) {
	m := model.Define("light",
		model.Initial(model.Target("Off")),
		model.State("Off"),
	)
	require.NoError(t, m.Freeze())
	err := m.Freeze()
	require.Error(t, err)
	assert.IsType(t, model.ModelFrozenError{}, err)
}

func TestFreezeRejectsMissingInitial(t *testing.T) {
	m := model.Define("broken",
		model.Region("r", model.State("a")),
	)
	err := m.Freeze()
	require.Error(t, err)
	assert.IsType(t, model.MissingInitialError{}, err)
}

func TestFreezeRejectsAmbiguousTransitions(t *testing.T) {
	m := model.Define("broken",
		model.Initial(model.Target("a")),
		model.State("a",
			model.Transition(model.Target("b"), model.Trigger("Go")),
			model.Transition(model.Target("a"), model.Trigger("Go")),
		),
		model.State("b"),
	)
	err := m.Freeze()
	require.Error(t, err)
	assert.IsType(t, model.AmbiguousTransitionError{}, err)
}

func TestFreezeRejectsIncompleteChoice(t *testing.T) {
	m := model.Define("broken",
		model.Initial(model.Target("c")),
		model.Choice("c",
			model.Transition(model.Target("a"), model.Guard(func(model.Context[*storage], model.Event) bool { return true })),
		),
		model.State("a"),
	)
	err := m.Freeze()
	require.Error(t, err)
	assert.IsType(t, model.IncompleteChoiceError{}, err)
}

func TestAncestorsAreRootFirst(t *testing.T) {
	m := model.Define("microwave",
		model.Region("power",
			model.Initial(model.Target("off")),
			model.State("off", model.Transition(model.Target("on"), model.Trigger("PowerOn"))),
			model.State("on",
				model.Region("light",
					model.Initial(model.Target("dark")),
					model.State("dark"),
				),
			),
		),
	)
	require.NoError(t, m.Freeze())

	ancestors := m.Ancestors("/power/on/light/dark")
	require.Len(t, ancestors, 4)
	assert.Equal(t, []string{"/", "/power", "/power/on", "/power/on/light"}, ancestors)
	assert.True(t, m.IsDescendant("/power", "/power/on/light/dark"))
	assert.False(t, m.IsDescendant("/power/on/light", "/power/off"))
}
