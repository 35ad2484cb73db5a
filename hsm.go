// Package hsm implements C8: the run-to-completion interpreter that owns a
// Configuration and an Event Queue and drives them through the Model
// Graph, the Behavior Executor, the Timer Service and the Transition
// Selector. It is the teacher's HSM[T] generalized from a single active
// chain to the full multi-region run-to-completion algorithm, and from an
// implicit created/running machine to the explicit
// Unstarted->Starting->Running->Stopping->Stopped lifecycle.
package hsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/dedent"
	"golang.org/x/sync/errgroup"

	"github.com/stateforward/statechart/behavior"
	"github.com/stateforward/statechart/clock"
	"github.com/stateforward/statechart/configuration"
	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/event"
	"github.com/stateforward/statechart/kind"
	"github.com/stateforward/statechart/model"
	"github.com/stateforward/statechart/pkg/telemetry"
	"github.com/stateforward/statechart/queue"
	"github.com/stateforward/statechart/selector"
	"github.com/stateforward/statechart/timer"
)

// Phase is the machine's own lifecycle state (spec §4.7), distinct from the
// Configuration (which states are active).
type Phase uint32

const (
	Unstarted Phase = iota
	Starting
	Running
	Stopping
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IllegalState is raised when start/stop/send is called from a phase that
// does not permit it (spec §4.7, §7).
type IllegalState struct {
	From   Phase
	Action string
}

func (e IllegalState) Error() string {
	return fmt.Sprintf("%s is illegal from phase %s", e.Action, e.From)
}

// StepAborted wraps a failing entry/exit behavior that aborted a step
// (spec §7: "aborts the step, restores the pre-step configuration").
type StepAborted struct{ Cause error }

func (e StepAborted) Error() string { return fmt.Sprintf("step aborted: %v", e.Cause) }
func (e StepAborted) Unwrap() error { return e.Cause }

// TimerFault surfaces a failure from the clock source itself (spec §7); the
// machine transitions to Stopping when it occurs.
type TimerFault struct{ Cause error }

func (e TimerFault) Error() string { return fmt.Sprintf("timer fault: %v", e.Cause) }

type settings struct {
	clock  clock.Clock
	tracer *telemetry.Tracer
}

type Option func(*settings)

// WithClock overrides the Timer Service's clock source, used by tests to
// supply clock.Virtual instead of wall-clock time.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithTracer attaches an OTel-backed telemetry.Tracer, matching the
// teacher's WithTrace; without it the machine records no spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// Machine is one running instance of a frozen Model, generic over T the
// same way the teacher's HSM[T] is generic over application storage.
// Multiple Machines may run concurrently against the same Model; they
// share no mutable state (spec §5).
type Machine[T context.Context] struct {
	model    *model.Model
	cfg      *configuration.Configuration
	queue    *queue.Queue
	selector *selector.Selector
	executor *behavior.Executor[T]
	timers   *timer.Service
	tracer   *telemetry.Tracer

	id string

	storage T
	ctx     context.Context
	cancel  context.CancelFunc

	phase      atomic.Uint32
	processing atomic.Bool

	observersMu sync.Mutex
	observers   []func(telemetry.Step)

	registryMu sync.Mutex
	registry   *sync.Map
}

type registryKey struct{}

// New builds a Machine against m, freezing it first if the caller has not
// already done so (spec §4.1: "frozen before the machine starts").
func New[T context.Context](storage T, m *model.Model, opts ...Option) (*Machine[T], error) {
	if !m.Frozen() {
		if err := m.Freeze(); err != nil {
			return nil, err
		}
	}
	cfg := settings{clock: clock.Make()}
	for _, opt := range opts {
		opt(&cfg)
	}
	runCtx, cancel := context.WithCancel(storage)
	mach := &Machine[T]{
		model:   m,
		cfg:     configuration.New(),
		queue:   queue.New(),
		storage: storage,
		ctx:     runCtx,
		cancel:  cancel,
		id:      uuid.NewString(),
		tracer:  cfg.tracer,
	}
	mach.selector = selector.New(m)
	mach.executor = behavior.New[T](mach.tracer)
	mach.timers = timer.New(cfg.clock, func(e embedded.Event) { mach.Dispatch(e) })

	if reg, ok := storage.Value(registryKey{}).(*sync.Map); ok {
		mach.registry = reg
	} else {
		mach.registry = &sync.Map{}
	}
	mach.registry.Store(mach.id, mach)
	return mach, nil
}

func (m *Machine[T]) Phase() Phase { return Phase(m.phase.Load()) }

/******* embedded.Active *******/

func (m *Machine[T]) Deadline() (time.Time, bool) { return m.ctx.Deadline() }
func (m *Machine[T]) Done() <-chan struct{}       { return m.ctx.Done() }
func (m *Machine[T]) Err() error                  { return m.ctx.Err() }
func (m *Machine[T]) Value(key any) any            { return m.ctx.Value(key) }
func (m *Machine[T]) Kind() uint64                 { return kind.StateMachine }
func (m *Machine[T]) Id() string                   { return m.id }
func (m *Machine[T]) Owner() string                { return "" }
func (m *Machine[T]) QualifiedName() string        { return m.model.QualifiedName() }
func (m *Machine[T]) Name() string                 { return path.Base(m.model.QualifiedName()) }

// State returns a snapshot of active leaves (spec §6 "machine.state()").
func (m *Machine[T]) State() []string { return m.cfg.Snapshot() }

// Dump renders a human-readable snapshot of the machine's id, phase and
// active configuration, grounded on the debugger's own dedented diagnostic
// text panels (tools/debugger/ui.go's `left.SetText(dedent.Dedent(...))`):
// a literal indented template cleaned up at render time rather than a
// hand-aligned string.
func (m *Machine[T]) Dump() string {
	return strings.TrimLeft(dedent.Dedent(fmt.Sprintf(`
		id: %s
		phase: %s
		active: %s
	`, m.id, m.Phase(), strings.Join(m.cfg.Snapshot(), ", "))), "\n")
}

// Terminate unwinds the machine the way Stop does, ignoring IllegalState so
// it is safe to call from behavior code regardless of current phase
// (mirrors the teacher's unconditional Context.Terminate).
func (m *Machine[T]) Terminate() {
	_ = m.Stop()
}

// Dispatch is the nested-dispatch surface behaviors receive via
// model.Context[T].Active (spec §4.4 "a handle to the state machine for
// nested dispatch"): reentrant sends go straight onto the queue, others are
// sent on a fresh goroutine so a behavior never blocks waiting on its own
// machine.
func (m *Machine[T]) Dispatch(evt embedded.Event) {
	if m.processing.Load() {
		_ = m.queue.Push(evt)
		return
	}
	go func() { _ = m.Send(evt) }()
}

// DispatchAll fans evt out to every Machine sharing this one's registry
// (constructed over the same root context), the generalization of the
// teacher's Keys.All sync.Map broadcast.
func (m *Machine[T]) DispatchAll(evt embedded.Event) {
	m.registry.Range(func(_ any, v any) bool {
		if other, ok := v.(embedded.Active); ok {
			other.Dispatch(evt.Clone(evt.Data()))
		}
		return true
	})
}

/******* lifecycle *******/

// Start enters the root's initial configuration and settles (spec §4.6
// "start() enters the root's initial configuration and settles"). Legal
// only from Unstarted.
func (m *Machine[T]) Start() error {
	if !m.phase.CompareAndSwap(uint32(Unstarted), uint32(Starting)) {
		return IllegalState{From: m.Phase(), Action: "start"}
	}
	m.processing.Store(true)
	leaves := m.defaultEntryLeaves(m.model.QualifiedName(), nil)
	m.processing.Store(false)
	for _, leaf := range leaves {
		m.cfg.Enter(leaf)
	}
	startTrace := telemetry.Step{Entered: leaves}
	m.emitCompletions(leaves, &startTrace)
	m.publish(startTrace)
	m.phase.Store(uint32(Running))
	m.drain()
	return nil
}

// Stop exits all active states outer-to-inner, cancels in-flight
// behaviors, drains the queue by discarding events, and moves to Stopped
// (spec §5 "Cancellation"). Legal from Running or Starting.
func (m *Machine[T]) Stop() error {
	phase := m.Phase()
	if phase != Running && phase != Starting {
		return IllegalState{From: phase, Action: "stop"}
	}
	m.phase.Store(uint32(Stopping))
	m.queue.Close()
	for m.queue.Pop() != nil {
	}
	m.timers.CancelAll()

	leaves := m.cfg.ActiveLeaves()
	ids := ancestorUnion(leaves)
	sort.Slice(ids, func(i, j int) bool { return depth(ids[i]) < depth(ids[j]) }) // outer-to-inner
	for _, id := range ids {
		st := m.lookupState(id)
		if st == nil {
			continue
		}
		if st.Activity() != "" {
			m.executor.Cancel(st.Activity())
		}
		if fn := m.behaviorAction(st.Exit()); fn != nil {
			_ = m.executor.Execute(m.ctx, m.storage, st.Exit(), fn, m, nil)
		}
	}
	for _, leaf := range leaves {
		m.cfg.Exit(leaf)
	}
	m.registry.Delete(m.id)
	m.cancel()
	m.phase.Store(uint32(Stopped))
	return nil
}

// Send enqueues evt and drains the run-to-completion loop (spec §6
// "machine.send(event)"). Legal from Starting or Running.
func (m *Machine[T]) Send(evt embedded.Event) error {
	phase := m.Phase()
	if phase != Starting && phase != Running {
		return IllegalState{From: phase, Action: "send"}
	}
	if err := m.queue.Push(evt); err != nil {
		return err
	}
	m.drain()
	return nil
}

// AwaitSettled blocks until the queue is empty and no step is in progress
// (spec §6 "machine.await_settled()"), or ctx is done.
func (m *Machine[T]) AwaitSettled(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for m.processing.Load() || m.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Observe subscribes to step-completion notifications (spec §6
// "machine.observe(callback)").
func (m *Machine[T]) Observe(callback func(telemetry.Step)) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	m.observers = append(m.observers, callback)
}

func (m *Machine[T]) publish(step telemetry.Step) {
	if m.tracer != nil {
		m.tracer.StepSpan(m.ctx, step)
	}
	m.observersMu.Lock()
	observers := append([]func(telemetry.Step){}, m.observers...)
	m.observersMu.Unlock()
	for _, cb := range observers {
		cb(step)
	}
}

// drain runs steps until settled, guarded so only one goroutine is ever
// actually stepping the machine at a time (the teacher's processing
// atomic.Bool reentrancy guard, generalized to multi-region steps).
func (m *Machine[T]) drain() {
	if !m.processing.CompareAndSwap(false, true) {
		return
	}
	defer m.processing.Store(false)
	for {
		settled, err := m.step()
		if err != nil {
			slog.Error("statechart step failed", "error", err)
		}
		if settled {
			return
		}
	}
}

/******* run-to-completion step (spec §4.6) *******/

func (m *Machine[T]) step() (settled bool, err error) {
	evt := m.queue.Pop()
	if evt == nil {
		return true, nil
	}
	stepTrace := telemetry.Step{Event: evt.Name()}
	var end func(error)
	if m.tracer != nil {
		_, end = m.tracer.Span(m.ctx, "step")
	}
	defer func() {
		if end != nil {
			end(err)
		}
		m.publish(stepTrace)
	}()

	selections, selErr := m.selector.Select(m.cfg, evt, m.evaluateGuard)
	if selErr != nil {
		var none selector.NoEnabledTransition
		if errors.As(selErr, &none) {
			if !m.tryDefer(evt) {
				stepTrace.Dropped = evt.Id()
			}
			return false, nil
		}
		return false, selErr
	}
	selections = m.selector.ResolveJoins(selections)

	exitSet := map[string]bool{}
	for _, s := range selections {
		for _, id := range s.Exit {
			exitSet[id] = true
			for _, nested := range ancestorUnion(m.cfg.ActiveLeavesUnder(id)) {
				if model.IsAncestor(id, nested) {
					exitSet[nested] = true
				}
			}
		}
	}
	exitList := make([]string, 0, len(exitSet))
	for id := range exitSet {
		exitList = append(exitList, id)
	}
	sort.Slice(exitList, func(i, j int) bool { return depth(exitList[i]) > depth(exitList[j]) }) // inner-to-outer

	for _, id := range exitList {
		v := model.Get[embedded.Vertex](m.model, id)
		if v == nil {
			continue
		}
		for name, e := range m.model.Namespace() {
			if path.Dir(name) != v.Region() {
				continue
			}
			if kind.IsKind(e.Kind(), kind.ShallowHistory) {
				m.cfg.RecordShallowHistory(name, id)
			} else if kind.IsKind(e.Kind(), kind.DeepHistory) {
				m.cfg.RecordDeepHistory(name, m.cfg.ActiveLeavesUnder(id))
			}
		}
	}

	for _, id := range exitList {
		st := m.lookupState(id)
		if st == nil {
			continue
		}
		if st.Activity() != "" {
			m.executor.Cancel(st.Activity())
		}
		m.timers.Cancel(id)
		if fn := m.behaviorAction(st.Exit()); fn != nil {
			if err := m.executor.Execute(m.ctx, m.storage, st.Exit(), fn, m, evt); err != nil {
				return false, StepAborted{Cause: err}
			}
		}
		m.cfg.Exit(id)
		stepTrace.Exited = append(stepTrace.Exited, id)
	}

	for _, s := range selections {
		t := s.Transition
		if t.Effect() == "" {
			continue
		}
		fn := m.behaviorAction(t.Effect())
		if fn == nil {
			continue
		}
		if err := m.executor.Execute(m.ctx, m.storage, t.Effect(), fn, m, evt); err != nil {
			return false, StepAborted{Cause: err}
		}
		stepTrace.Effects = append(stepTrace.Effects, t.QualifiedName())
	}

	entered := map[string]bool{}
	terminate := false
	for _, s := range selections {
		if v := model.Get[embedded.Vertex](m.model, s.Transition.Target()); v != nil && kind.IsKind(v.Kind(), kind.Terminate) {
			terminate = true
			continue
		}
		for _, leaf := range m.enterChain(s.Entry, s.Transition.Target(), evt) {
			entered[leaf] = true
		}
	}
	for leaf := range entered {
		m.cfg.Enter(leaf)
		stepTrace.Entered = append(stepTrace.Entered, leaf)
	}

	m.queue.ReleaseMany(exitList)
	m.emitCompletions(stepTrace.Entered, &stepTrace)
	if terminate {
		_ = m.Stop()
	}
	return false, nil
}

func (m *Machine[T]) evaluateGuard(guardQualifiedName string, evt embedded.Event) (bool, error) {
	c := model.Get[embedded.Constraint](m.model, guardQualifiedName)
	if c == nil {
		return true, nil
	}
	fn, ok := c.Expression().(func(model.Context[T], embedded.Event) bool)
	if !ok {
		return true, nil
	}
	return m.executor.EvaluateGuard(m.ctx, m.storage, guardQualifiedName, fn, m, evt)
}

func (m *Machine[T]) behaviorAction(qualifiedName string) func(model.Context[T], embedded.Event) {
	if qualifiedName == "" {
		return nil
	}
	b := model.Get[embedded.Behavior](m.model, qualifiedName)
	if b == nil {
		return nil
	}
	fn, _ := b.Action().(func(model.Context[T], embedded.Event))
	return fn
}

// lookupState resolves id to an embedded.State, special-casing the root
// (the Model itself is never stored in its own namespace).
func (m *Machine[T]) lookupState(id string) embedded.State {
	if id == "" || id == "/" || id == m.model.QualifiedName() {
		return m.model
	}
	return model.Get[embedded.State](m.model, id)
}

// tryDefer checks every active leaf's ancestor chain for a declared defer
// pattern matching evt, moving evt to that state's deferred pool on the
// first match (spec §4.6 step 2, §4.2 defer).
func (m *Machine[T]) tryDefer(evt embedded.Event) bool {
	for _, leaf := range m.cfg.ActiveLeaves() {
		current := leaf
		for current != "" && current != "/" {
			if st := m.lookupState(current); st != nil {
				for _, pattern := range model.DeferPatterns(st) {
					if ok, _ := path.Match(pattern, evt.Name()); ok {
						m.queue.Defer(current, evt)
						return true
					}
				}
			}
			current = path.Dir(current)
		}
	}
	return false
}

// runEntry executes a single state's entry behavior, starts its
// do-activity, and arms its outgoing time-elapsed transitions (spec §4.6
// step 8).
func (m *Machine[T]) runEntry(id string, evt embedded.Event) {
	st := m.lookupState(id)
	if st == nil {
		return
	}
	if fn := m.behaviorAction(st.Entry()); fn != nil {
		_ = m.executor.Execute(m.ctx, m.storage, st.Entry(), fn, m, evt)
	}
	if actFn := m.behaviorAction(st.Activity()); actFn != nil {
		m.executor.StartActivity(m.ctx, m.storage, st.Activity(), actFn, m, evt, func() {
			m.Dispatch(event.NewCompletion(id))
		})
	}
	m.armTimers(st)
}

// withPaths is the slice of a model transition the interpreter needs to
// walk a pseudostate's precomputed per-source path without importing the
// model package's unexported transition type.
type withPaths interface {
	Paths(from string) (enter, exit []string, ok bool)
}

// enterChain executes entry for an already-computed outer-to-inner chain,
// then falls through to defaultEntryLeaves for whatever the chain's last
// vertex (or, for an internal/self transition with no chain, the
// transition's own target) settles into.
func (m *Machine[T]) enterChain(chain []string, target string, evt embedded.Event) []string {
	for _, id := range chain {
		m.runEntry(id, evt)
	}
	last := target
	if len(chain) > 0 {
		last = chain[len(chain)-1]
	}
	return m.defaultEntryLeaves(last, evt)
}

// defaultEntryLeaves resolves id down to concrete active leaves: if id
// names a leaf state it is the answer; if it names a composite, every
// region is entered via its initial pseudostate concurrently (spec §4.6
// step 7 "For each composite entered without an explicit target inside one
// of its regions, enter the region's initial pseudostate"); if id names a
// history pseudostate, the last-recorded configuration is restored.
func (m *Machine[T]) defaultEntryLeaves(id string, evt embedded.Event) []string {
	v := model.Get[embedded.Vertex](m.model, id)
	if v != nil {
		switch {
		case kind.IsKind(v.Kind(), kind.ShallowHistory):
			return m.enterShallowHistory(v, evt)
		case kind.IsKind(v.Kind(), kind.DeepHistory):
			return m.enterDeepHistory(v, evt)
		}
	}
	st := m.lookupState(id)
	if st == nil {
		return []string{id}
	}
	regions := st.Regions()
	if len(regions) == 0 {
		return []string{id}
	}
	var mu sync.Mutex
	var leaves []string
	g, _ := errgroup.WithContext(m.ctx)
	for _, r := range regions {
		region := r
		g.Go(func() error {
			sub := m.enterRegionInitial(region, evt)
			mu.Lock()
			leaves = append(leaves, sub...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return leaves
}

func (m *Machine[T]) enterRegionInitial(regionQualifiedName string, evt embedded.Event) []string {
	r := model.Get[embedded.Region](m.model, regionQualifiedName)
	if r == nil || r.Initial() == "" {
		return nil
	}
	initial := model.Get[embedded.Vertex](m.model, r.Initial())
	if initial == nil || len(initial.Transitions()) == 0 {
		return nil
	}
	t := model.Get[embedded.Transition](m.model, initial.Transitions()[0])
	if t == nil {
		return nil
	}
	pt, ok := t.(withPaths)
	if !ok {
		return []string{t.Target()}
	}
	enter, _, ok := pt.Paths(regionQualifiedName)
	if !ok {
		return []string{t.Target()}
	}
	return m.enterChain(enter, t.Target(), evt)
}

// enterShallowHistory re-enters the single direct child active when
// region last exited, re-running default entry beneath it, or falls back
// to the region's plain initial if never entered.
func (m *Machine[T]) enterShallowHistory(historyVertex embedded.Vertex, evt embedded.Event) []string {
	snapshot, ok := m.cfg.History(historyVertex.QualifiedName())
	if !ok || len(snapshot) == 0 {
		return m.enterRegionInitial(historyVertex.Region(), evt)
	}
	m.runEntry(snapshot[0], evt)
	return m.defaultEntryLeaves(snapshot[0], evt)
}

// enterDeepHistory re-enters every leaf active beneath region at last exit,
// running entry for every ancestor between the region and each leaf that
// is not already covered by a shallower leaf in the same snapshot.
func (m *Machine[T]) enterDeepHistory(historyVertex embedded.Vertex, evt embedded.Event) []string {
	snapshot, ok := m.cfg.History(historyVertex.QualifiedName())
	if !ok || len(snapshot) == 0 {
		return m.enterRegionInitial(historyVertex.Region(), evt)
	}
	entered := map[string]bool{}
	for _, leaf := range snapshot {
		var chain []string
		current := leaf
		for current != "" && current != historyVertex.Region() && current != "/" {
			chain = append([]string{current}, chain...)
			current = path.Dir(current)
		}
		for _, id := range chain {
			if entered[id] {
				continue
			}
			entered[id] = true
			m.runEntry(id, evt)
		}
	}
	return append([]string{}, snapshot...)
}

// armTimers schedules every after(Δ) trigger declared on st's outgoing
// transitions (spec §4.5).
func (m *Machine[T]) armTimers(st embedded.State) {
	for _, tid := range st.Transitions() {
		t := model.Get[embedded.Transition](m.model, tid)
		if t == nil {
			continue
		}
		for _, tmpl := range t.Events() {
			if !kind.IsKind(tmpl.Kind(), kind.TimeEvent) {
				continue
			}
			expr, ok := tmpl.Data().(func(model.Context[T]) time.Duration)
			if !ok {
				continue
			}
			named, ok := tmpl.(interface{ QualifiedName() string })
			if !ok {
				continue
			}
			delta := expr(model.Context[T]{Active: m, Storage: m.storage})
			m.timers.Arm(st.QualifiedName(), named.QualifiedName(), delta)
		}
	}
}

// emitCompletions enqueues a completion event for every newly-entered leaf
// that settled with no outstanding work (no do-activity left running), so a
// simple state's triggerless or guarded-triggerless transition can fire
// immediately, then checks, for every composite ancestor of those leaves,
// whether all of its regions are now in a final state, enqueuing an
// ancestor completion innermost-first (spec §4.6 step 10, I4). A leaf whose
// do-activity is still running is settled later, when that activity returns
// on its own and runEntry's onDone callback dispatches its completion.
func (m *Machine[T]) emitCompletions(entered []string, stepTrace *telemetry.Step) {
	for _, leaf := range entered {
		st := m.lookupState(leaf)
		if st == nil || len(st.Regions()) > 0 || st.Activity() != "" || kind.IsKind(st.Kind(), kind.Final) {
			continue
		}
		_ = m.queue.Push(event.NewCompletion(leaf))
		stepTrace.Completions = append(stepTrace.Completions, leaf)
	}

	candidates := map[string]bool{}
	for _, leaf := range entered {
		current := path.Dir(leaf)
		for current != "" && current != "/" {
			if owner := m.model.Parent(current); owner != "" {
				candidates[owner] = true
			}
			current = path.Dir(current)
		}
	}
	ordered := make([]string, 0, len(candidates))
	for id := range candidates {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return depth(ordered[i]) > depth(ordered[j]) })
	for _, id := range ordered {
		st := m.lookupState(id)
		if st == nil || len(st.Regions()) == 0 {
			continue
		}
		allFinal := true
		for _, r := range st.Regions() {
			leaves := m.cfg.ActiveLeavesUnder(r)
			if len(leaves) != 1 {
				allFinal = false
				break
			}
			v := model.Get[embedded.Vertex](m.model, leaves[0])
			if v == nil || !kind.IsKind(v.Kind(), kind.Final) {
				allFinal = false
				break
			}
		}
		if allFinal {
			_ = m.queue.Push(event.NewCompletion(id))
			stepTrace.Completions = append(stepTrace.Completions, id)
		}
	}
}

func depth(qualifiedName string) int { return strings.Count(qualifiedName, "/") }

// ancestorUnion returns every leaf plus every structural ancestor up to
// (excluding) the root, deduplicated.
func ancestorUnion(leaves []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, leaf := range leaves {
		current := leaf
		for current != "" && current != "/" {
			if !seen[current] {
				seen[current] = true
				out = append(out, current)
			}
			current = path.Dir(current)
		}
	}
	return out
}
