package behavior_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/statechart/behavior"
	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/event"
	"github.com/stateforward/statechart/model"
)

// fakeActive is the smallest embedded.Active a behavior test needs: the
// real implementation is Machine[T] in hsm.go, but Execute/EvaluateGuard/
// StartActivity only ever read the context.Context surface and pass the
// rest straight through to the user's action, so a bare context stand-in
// is enough to exercise the executor in isolation.
type fakeActive struct {
	context.Context
}

func (fakeActive) Kind() uint64            { return 0 }
func (fakeActive) Id() string              { return "fake" }
func (fakeActive) Owner() string           { return "" }
func (fakeActive) QualifiedName() string   { return "/fake" }
func (fakeActive) Name() string            { return "fake" }
func (fakeActive) State() []string         { return nil }
func (fakeActive) Terminate()              {}
func (fakeActive) Dispatch(embedded.Event) {}
func (fakeActive) DispatchAll(embedded.Event) {}

type storage struct{ context.Context }

func TestExecuteRunsActionSynchronously(t *testing.T) {
	ex := behavior.New[*storage](nil)
	var ran bool
	action := func(ctx model.Context[*storage], evt embedded.Event) {
		ran = true
		assert.Equal(t, "Go", evt.Name())
	}
	err := ex.Execute(context.Background(), &storage{context.Background()}, "/s/entry", action, fakeActive{context.Background()}, event.New("Go"))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestExecuteNilActionIsNoop(t *testing.T) {
	ex := behavior.New[*storage](nil)
	err := ex.Execute(context.Background(), &storage{context.Background()}, "/s/entry", nil, fakeActive{context.Background()}, event.New("Go"))
	require.NoError(t, err)
}

// TestExecuteRecoversPanic checks that a panicking entry/exit/effect
// behavior turns into a BehaviorFailed error rather than crashing the
// calling step.
func TestExecuteRecoversPanic(t *testing.T) {
	ex := behavior.New[*storage](nil)
	action := func(model.Context[*storage], embedded.Event) { panic("boom") }
	err := ex.Execute(context.Background(), &storage{context.Background()}, "/s/entry", action, fakeActive{context.Background()}, event.New("Go"))
	require.Error(t, err)
	failed, ok := err.(behavior.BehaviorFailed)
	require.True(t, ok)
	assert.Equal(t, "/s/entry", failed.Behavior)
	assert.Equal(t, "boom", failed.Cause)
}

func TestEvaluateGuardReturnsPredicateResult(t *testing.T) {
	ex := behavior.New[*storage](nil)
	expr := func(ctx model.Context[*storage], evt embedded.Event) bool { return evt.Name() == "Go" }
	ok, err := ex.EvaluateGuard(context.Background(), &storage{context.Background()}, "/s/guard", expr, fakeActive{context.Background()}, event.New("Go"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateGuardNilExpressionDefaultsTrue(t *testing.T) {
	ex := behavior.New[*storage](nil)
	ok, err := ex.EvaluateGuard(context.Background(), &storage{context.Background()}, "/s/guard", nil, fakeActive{context.Background()}, event.New("Go"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateGuardRecoversPanic(t *testing.T) {
	ex := behavior.New[*storage](nil)
	expr := func(model.Context[*storage], embedded.Event) bool { panic("bad guard") }
	_, err := ex.EvaluateGuard(context.Background(), &storage{context.Background()}, "/s/guard", expr, fakeActive{context.Background()}, event.New("Go"))
	require.Error(t, err)
	assert.IsType(t, behavior.BehaviorFailed{}, err)
}

// TestStartActivityRunsUntilCancelled exercises the do-activity path: the
// activity blocks on its bound context until Cancel closes it, and Cancel
// blocks until the activity has acknowledged by returning.
func TestStartActivityRunsUntilCancelled(t *testing.T) {
	ex := behavior.New[*storage](nil)
	var started, stopped atomic.Bool
	action := func(ctx model.Context[*storage], evt embedded.Event) {
		started.Store(true)
		<-ctx.Active.Done()
		stopped.Store(true)
	}
	ex.StartActivity(context.Background(), &storage{context.Background()}, "/s/doActivity", action, fakeActive{context.Background()}, event.New("Go"), nil)

	require.Eventually(t, started.Load, time.Second, time.Millisecond)
	ex.Cancel("/s/doActivity")
	assert.True(t, stopped.Load())
}

// TestStartActivityCallsOnDoneWhenActivityReturnsOnItsOwn checks that a
// do-activity which finishes without ever being cancelled triggers onDone
// exactly once, the hook the interpreter uses to settle the owning state.
func TestStartActivityCallsOnDoneWhenActivityReturnsOnItsOwn(t *testing.T) {
	ex := behavior.New[*storage](nil)
	action := func(model.Context[*storage], embedded.Event) {}
	var calls atomic.Int32
	ex.StartActivity(context.Background(), &storage{context.Background()}, "/s/doActivity", action, fakeActive{context.Background()}, event.New("Go"), func() {
		calls.Add(1)
	})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

// TestStartActivityOnDoneSkippedAfterCancel checks the opposite: a
// Cancel'd activity never calls onDone, since Cancel means the state was
// exited, not that its work settled.
func TestStartActivityOnDoneSkippedAfterCancel(t *testing.T) {
	ex := behavior.New[*storage](nil)
	var calls atomic.Int32
	action := func(ctx model.Context[*storage], evt embedded.Event) {
		<-ctx.Active.Done()
	}
	ex.StartActivity(context.Background(), &storage{context.Background()}, "/s/doActivity", action, fakeActive{context.Background()}, event.New("Go"), func() {
		calls.Add(1)
	})
	ex.Cancel("/s/doActivity")
	assert.EqualValues(t, 0, calls.Load())
}

// TestCancelUnknownActivityIsNoop checks that cancelling an activity that
// was never started (or already cancelled once) does not block or panic.
func TestCancelUnknownActivityIsNoop(t *testing.T) {
	ex := behavior.New[*storage](nil)
	ex.Cancel("/no/such/activity")
}

// TestStartActivityBoundActiveCarriesChildContext checks that the Active
// handle a running do-activity observes is bound to the activity's own
// cancellable context, not the outer parent passed to StartActivity, so
// cancelling the activity closes its own context and leaves the parent
// context untouched.
func TestStartActivityBoundActiveCarriesChildContext(t *testing.T) {
	ex := behavior.New[*storage](nil)
	var wg sync.WaitGroup
	wg.Add(1)
	var sawDone bool
	action := func(ctx model.Context[*storage], evt embedded.Event) {
		defer wg.Done()
		select {
		case <-ctx.Active.Done():
			sawDone = true
		case <-time.After(time.Second):
		}
	}
	parent := context.Background()
	ex.StartActivity(parent, &storage{context.Background()}, "/s/doActivity", action, fakeActive{context.Background()}, event.New("Go"), nil)
	ex.Cancel("/s/doActivity")
	wg.Wait()
	assert.True(t, sawDone)
	assert.Nil(t, parent.Err(), "cancelling the activity must not cancel the parent context")
}
