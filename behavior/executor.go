// Package behavior implements C4: running opaque user behaviors (entry,
// exit, effect, guard, do-activity) as cooperative tasks with cancellation
// (spec §4.4). The teacher's hsm.go inlines this directly into HSM.execute/
// HSM.terminate, keyed by a sync.Pool of *Context[T] held in HSM.active;
// Executor extracts that pattern into a standalone component the
// Interpreter owns for the duration of a behavior's execution (spec §3
// Ownership: "Behaviors are owned by the Behavior Executor for the
// duration of their execution").
package behavior

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/model"
	"github.com/stateforward/statechart/pkg/telemetry"
)

// GuardImpure names the failure mode of a guard that suspends. No code path
// in this package returns it: Go gives no portable way to observe whether
// an arbitrary function "suspended", so EvaluateGuard only runs the guard
// inline (see DESIGN.md: guard purity is a static contract enforced by the
// Guard[T] builder's function signature, not a dynamic runtime check).
type GuardImpure struct{ Guard string }

func (e GuardImpure) Error() string { return fmt.Sprintf("guard %s is not a synchronous predicate", e.Guard) }

// BehaviorFailed wraps a panic recovered from user behavior code (spec §7:
// "BehaviorFailed (user code raised)").
type BehaviorFailed struct {
	Behavior string
	Cause    any
}

func (e BehaviorFailed) Error() string {
	return fmt.Sprintf("behavior %s failed: %v", e.Behavior, e.Cause)
}

type activity struct {
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

// Executor runs entry/exit/effect behaviors synchronously within the
// calling step and do-activities as background goroutines tracked by
// qualified name, generic over T the same way the teacher's HSM[T] is
// generic over application storage.
type Executor[T context.Context] struct {
	tracer *telemetry.Tracer

	mu         sync.Mutex
	activities map[string]*activity
}

func New[T context.Context](tracer *telemetry.Tracer) *Executor[T] {
	return &Executor[T]{tracer: tracer, activities: make(map[string]*activity)}
}

// Execute runs a non-concurrent behavior (entry/exit/effect) to completion
// within the calling step, recovering a panic into BehaviorFailed so a
// failing exit/entry can abort the step per spec §7 policy.
func (ex *Executor[T]) Execute(parent context.Context, storage T, qualifiedName string, action func(model.Context[T], embedded.Event), active embedded.Active, evt embedded.Event) (err error) {
	if action == nil {
		return nil
	}
	var end func(...any)
	if ex.tracer != nil {
		var spanCtx context.Context
		spanCtx, endFn := ex.tracer.Span(parent, "execute")
		_ = spanCtx
		end = func(args ...any) {
			var callErr error
			if len(args) > 0 {
				callErr, _ = args[0].(error)
			}
			endFn(callErr)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = BehaviorFailed{Behavior: qualifiedName, Cause: r}
		}
		if end != nil {
			end(err)
		}
	}()
	action(model.Context[T]{Active: active, Storage: storage}, evt)
	return nil
}

// EvaluateGuard runs a guard predicate. Guards must be pure and
// synchronous (spec §4.4); this implementation runs them inline on the
// calling goroutine, which is the strongest guarantee Go gives that they
// did not suspend -- a goroutine that genuinely blocked would hang the
// whole step, which is itself the enforcement mechanism.
func (ex *Executor[T]) EvaluateGuard(parent context.Context, storage T, qualifiedName string, expression func(model.Context[T], embedded.Event) bool, active embedded.Active, evt embedded.Event) (result bool, err error) {
	if expression == nil {
		return true, nil
	}
	var end func(...any)
	if ex.tracer != nil {
		_, endFn := ex.tracer.Span(parent, "evaluate")
		end = func(args ...any) {
			var callErr error
			if len(args) > 0 {
				callErr, _ = args[0].(error)
			}
			endFn(callErr)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = BehaviorFailed{Behavior: qualifiedName, Cause: r}
		}
		if end != nil {
			end(err)
		}
	}()
	result = expression(model.Context[T]{Active: active, Storage: storage}, evt)
	return result, nil
}

// StartActivity launches a do-activity as a background goroutine bound to
// a cancellable sub-context of parent, tracked under qualifiedName so a
// later Cancel can stop it and wait for its acknowledgement (spec §4.4:
// "do-activities run alongside the stable configuration and are cancelled
// on exit"). If the activity returns on its own, without ever being
// Cancel'd, onDone is called once so the interpreter can treat the owning
// state as having settled (spec glossary: "completion event ... when a
// state ... has no outstanding work"); a Cancel'd activity never settles,
// it is simply gone.
func (ex *Executor[T]) StartActivity(parent context.Context, storage T, qualifiedName string, action func(model.Context[T], embedded.Event), active embedded.Active, evt embedded.Event, onDone func()) {
	if action == nil {
		return
	}
	childCtx, cancel := context.WithCancel(parent)
	a := &activity{cancel: cancel, done: make(chan struct{})}
	ex.mu.Lock()
	ex.activities[qualifiedName] = a
	ex.mu.Unlock()

	var end func(...any)
	if ex.tracer != nil {
		_, endFn := ex.tracer.Span(parent, "execute")
		end = func(args ...any) {
			var callErr error
			if len(args) > 0 {
				callErr, _ = args[0].(error)
			}
			endFn(callErr)
		}
	}

	go func() {
		defer close(a.done)
		defer func() {
			if r := recover(); r != nil {
				if end != nil {
					end(BehaviorFailed{Behavior: qualifiedName, Cause: r})
				}
				return
			}
			if end != nil {
				end(nil)
			}
			if onDone != nil && !a.cancelled.Load() {
				onDone()
			}
		}()
		action(model.Context[T]{Active: boundActive{Active: active, ctx: childCtx}, Storage: storage}, evt)
	}()
}

// Cancel stops the do-activity tracked under qualifiedName and blocks
// until it has acknowledged cancellation by returning (spec §4.4: "the
// behavior must release scoped resources before returning").
func (ex *Executor[T]) Cancel(qualifiedName string) {
	ex.mu.Lock()
	a, ok := ex.activities[qualifiedName]
	if ok {
		delete(ex.activities, qualifiedName)
	}
	ex.mu.Unlock()
	if !ok {
		return
	}
	a.cancelled.Store(true)
	a.cancel()
	<-a.done
}

// boundActive rebinds embedded.Active's context.Context surface to a
// cancellable child context for a running do-activity, while delegating
// Dispatch/State/Terminate to the outer Active handle.
type boundActive struct {
	embedded.Active
	ctx context.Context
}

func (b boundActive) Deadline() (deadline time.Time, _ bool) { return b.ctx.Deadline() }
func (b boundActive) Done() <-chan struct{}                        { return b.ctx.Done() }
func (b boundActive) Err() error                                   { return b.ctx.Err() }
func (b boundActive) Value(key any) any                            { return b.ctx.Value(key) }
