// Package tests provides a small scenario-runner for driving a Machine from
// a test; no package in this repository calls it. The teacher's own
// pkg/tests/tests.go was an empty, never-called
// stub (Run had no body) importing a module path that no longer exists;
// this rewrites it as a real driver: feed a sequence of events to a
// Machine and assert the resulting active configuration after each.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stateforward/statechart"
	"github.com/stateforward/statechart/embedded"
)

// Step is one entry in a scenario: send Event, then assert the machine's
// active leaves equal Want, order independent. A nil Want skips the
// assertion, for steps whose point is only to advance state.
type Step struct {
	Event embedded.Event
	Want  []string
}

// Run drives m through steps in order, failing t at the first step whose
// Send errors or whose resulting configuration doesn't match Want.
func Run[T context.Context](t *testing.T, m *hsm.Machine[T], steps []Step) {
	t.Helper()
	for i, step := range steps {
		require.NoError(t, m.Send(step.Event), "step %d: send %s", i, step.Event.Name())
		if step.Want != nil {
			require.ElementsMatch(t, step.Want, m.State(), "step %d: active configuration mismatch", i)
		}
	}
}
