// Package configuration implements C3: the set of currently active states
// (spec §4.3). A Configuration never stores pseudostates (invariant I3: "No
// pseudostate is active between stable steps") and never stores ancestors
// explicitly (invariant I2: activity of a composite is implicit in its
// descendants' activity) -- it tracks only active leaves, and answers
// is_active/lca questions about ancestors by walking qualified-name prefixes,
// the same string-path trick the teacher's hsm.go LCA/IsAncestor use.
package configuration

import (
	"strings"
	"sync"

	"github.com/stateforward/statechart/model"
	"github.com/stateforward/statechart/pkg/set"
)

// Configuration is the Interpreter's exclusive mutable record of what is
// active. It is safe for concurrent reads (State()/IsActive() may be called
// from an observer goroutine while the interpreter thread mutates it during
// a run-to-completion step), guarded by a single mutex since the active set
// is small and steps are infrequent relative to read pressure.
type Configuration struct {
	mu   sync.RWMutex
	live set.Set[string]

	// history holds, per history pseudostate qualified name, the snapshot of
	// active leaves recorded when its owning region was last exited. Shallow
	// history stores the single direct child active at exit time; deep
	// history stores every active leaf beneath that child. Both are just a
	// []string snapshot -- the distinction is in what RecordShallowHistory
	// or RecordDeepHistory wrote into it.
	history map[string][]string
}

func New() *Configuration {
	return &Configuration{
		live:    set.New[string](),
		history: make(map[string][]string),
	}
}

// Enter adds a leaf to the active set. Callers (the interpreter's entry
// step) are responsible for calling Enter only on states, never on
// pseudostates, per I3.
func (c *Configuration) Enter(leaf string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live.Add(leaf)
}

// Exit removes a leaf from the active set.
func (c *Configuration) Exit(leaf string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live.Remove(leaf)
}

// IsActive reports whether id names an active leaf or an ancestor of one.
// Ancestry is a qualified-name prefix test: "/oven/door" is an ancestor of
// "/oven/door/open" because the latter's qualified name has the former as a
// "/"-bounded prefix.
func (c *Configuration) IsActive(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for leaf := range c.live.Items() {
		if isAncestorOrSelf(id, leaf) {
			return true
		}
	}
	return false
}

// ActiveLeaves returns the current active leaf set (states only, per I3),
// in no particular order -- callers that need a stable order (diagnostics,
// tests) should sort the result themselves.
func (c *Configuration) ActiveLeaves() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.live))
	for leaf := range c.live.Items() {
		out = append(out, leaf)
	}
	return out
}

// ActiveLeavesUnder returns the active leaves descending from ancestor,
// i.e. the portion of the configuration a given region or composite state
// currently owns. Used by the interpreter to decide whether a composite's
// regions have all reached completion (spec §4.6 step 7).
func (c *Configuration) ActiveLeavesUnder(ancestor string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for leaf := range c.live.Items() {
		if isAncestorOrSelf(ancestor, leaf) {
			out = append(out, leaf)
		}
	}
	return out
}

// Snapshot returns a defensive copy of every currently active leaf,
// suitable for handing to Active.State() callers (spec §7: Active.State()
// returns "a snapshot, not a live view").
func (c *Configuration) Snapshot() []string {
	return c.ActiveLeaves()
}

// RecordShallowHistory stores the direct child active under region at the
// moment region is exited, for a later re-entry via a shallow history
// pseudostate (spec §5 pseudostate kinds).
func (c *Configuration) RecordShallowHistory(historyId string, child string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[historyId] = []string{child}
}

// RecordDeepHistory stores every active leaf beneath region at the moment
// region is exited, for a later re-entry via a deep history pseudostate.
func (c *Configuration) RecordDeepHistory(historyId string, leaves []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make([]string, len(leaves))
	copy(snap, leaves)
	c.history[historyId] = snap
}

// History returns the last snapshot recorded for historyId, and whether one
// exists yet (a history pseudostate with no prior exit behaves as if it
// were the region's plain initial pseudostate, spec §5).
func (c *Configuration) History(historyId string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.history[historyId]
	if !ok {
		return nil, false
	}
	out := make([]string, len(snap))
	copy(out, snap)
	return out, true
}

// isAncestorOrSelf reports whether descendant's qualified name is ancestor
// itself or nested beneath it.
func isAncestorOrSelf(ancestor, descendant string) bool {
	if ancestor == descendant {
		return true
	}
	return model.IsAncestor(ancestor, descendant) || strings.HasPrefix(descendant, ancestor+"/")
}

// LCA returns the least common ancestor of two qualified names, delegating
// to model.LCA so Configuration and the Model Graph never disagree about
// hierarchy.
func LCA(a, b string) string {
	return model.LCA(a, b)
}
