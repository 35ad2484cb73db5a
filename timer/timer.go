// Package timer implements C5: scheduling time-elapsed events relative to
// the moment a state was entered (spec §4.5). The teacher's hsm.go arms
// timers inline inside enter()/exit() using time.NewTimer directly against
// the wall clock; Service extracts that into a standalone component keyed
// by the clock.Clock abstraction so tests can drive it with clock.Virtual
// instead of sleeping in real time.
package timer

import (
	"sync"
	"time"

	"github.com/stateforward/statechart/clock"
	"github.com/stateforward/statechart/embedded"
	"github.com/stateforward/statechart/event"
)

// Service owns every pending after(Δ) wake for every currently active
// state. It is owned exclusively by the Interpreter, the same ownership
// rule as Configuration and the Event Queue (spec §3 Ownership).
type Service struct {
	clock clock.Clock
	emit  func(embedded.Event)

	mu      sync.Mutex
	pending map[string]map[string]clock.Timer // stateId -> armKey -> timer
}

func New(c clock.Clock, emit func(embedded.Event)) *Service {
	return &Service{clock: c, emit: emit, pending: make(map[string]map[string]clock.Timer)}
}

// Arm schedules a wake at delta from now for the given state, tagged by
// armKey (the after() trigger's qualified name, so multiple after() triggers
// on the same state get independent timers). Call sites should Arm in
// model declaration order so clock.Virtual's same-instant tiebreak lines
// up with spec §4.5's "ties by declaration order".
func (s *Service) Arm(stateId, armKey string, delta time.Duration) {
	t := s.clock.NewTimer(delta)
	s.mu.Lock()
	if s.pending[stateId] == nil {
		s.pending[stateId] = make(map[string]clock.Timer)
	}
	s.pending[stateId][armKey] = t
	s.mu.Unlock()

	go func() {
		select {
		case <-t.C():
			s.mu.Lock()
			if group, ok := s.pending[stateId]; ok {
				delete(group, armKey)
				if len(group) == 0 {
					delete(s.pending, stateId)
				}
			}
			s.mu.Unlock()
			s.emit(event.NewTimeElapsed(stateId, armKey))
		}
	}()
}

// Cancel stops every timer armed for stateId, used when that state (or an
// ancestor) is exited (spec §4.5: "On exit from that state (or any
// ancestor being exited), pending timers tied to it are cancelled").
func (s *Service) Cancel(stateId string) {
	s.mu.Lock()
	group := s.pending[stateId]
	delete(s.pending, stateId)
	s.mu.Unlock()
	for _, t := range group {
		t.Stop()
	}
}

// CancelAll stops every pending timer, used by Interpreter.stop (spec §5:
// "Timers associated with cancelled states are cancelled").
func (s *Service) CancelAll() {
	s.mu.Lock()
	all := s.pending
	s.pending = make(map[string]map[string]clock.Timer)
	s.mu.Unlock()
	for _, group := range all {
		for _, t := range group {
			t.Stop()
		}
	}
}

// Pending reports whether stateId currently has any armed timer, used by
// tests asserting a cancelled state's timer never fires.
func (s *Service) Pending(stateId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[stateId]
	return ok
}
