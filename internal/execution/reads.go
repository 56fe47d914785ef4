// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package execution

import (
	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/clock"
)

// mayReadFrom computes the candidate writes curr could observe: every
// write on curr's location not yet known to be mo-after curr via
// happens-before, per spec §4.G "process_read".
// Candidates are considered most-recent-first: in the common case of a
// read observing the latest write in its own thread's program order or
// the latest synchronized write from another thread, this finds the
// feasible candidate on the first try instead of walking stale history.
func (e *Execution) mayReadFrom(curr *action.Action) []*action.Action {
	o := e.object(curr.Loc)
	var candidates []*action.Action
	for i := len(o.actions) - 1; i >= 0; i-- {
		w := o.actions[i]
		if !w.IsWrite() {
			continue
		}
		if w.HappensBefore(curr) && e.hasLaterWriteBetween(o, w, curr) {
			continue
		}
		candidates = append(candidates, w)
	}
	return candidates
}

// hasLaterWriteBetween reports whether some other write is known (via
// happens-before) to sit strictly between w and curr in modification
// order, which would make w an invalid (too-stale) read-from candidate.
func (e *Execution) hasLaterWriteBetween(o *objectState, w, curr *action.Action) bool {
	for _, other := range o.actions {
		if other == w || !other.IsWrite() {
			continue
		}
		if w.HappensBefore(other) && other.HappensBefore(curr) {
			return true
		}
	}
	return false
}

// tryCandidate speculatively adds the mo edges a choice of rf would
// require, checks feasibility, and rolls back if the candidate would
// close a cycle. Returns whether the candidate is feasible.
func (e *Execution) tryCandidate(curr, rf *action.Action) bool {
	o := e.object(curr.Loc)
	e.graph.StartChanges()
	for _, w := range o.actions {
		if !w.IsWrite() || w == rf {
			continue
		}
		if w.HappensBefore(curr) {
			e.graph.AddEdge(w, rf)
		}
		if rf.HappensBefore(w) {
			e.graph.AddEdge(rf, w)
		}
	}
	if e.graph.HasCycle() {
		e.graph.RollbackChanges()
		return false
	}
	e.graph.CommitChanges()
	return true
}

// ProcessRead performs the full read protocol: builds the candidate set,
// picks the first feasible one, records the rest as the node's read-from
// alternatives, synchronizes on acquire, and returns the observed value.
func (e *Execution) ProcessRead(tid int, loc action.Location, order action.Order, isRMW bool) (uint64, *action.Action) {
	curr := &action.Action{Type: action.Read, Order: order, Loc: loc, Tid: tid}
	if isRMW {
		curr.Type = action.RMWRead
	}
	// Give curr the clock commit will assign it, so the happens-before
	// tests in mayReadFrom and tryCandidate see what curr has observed.
	curr.Clock = clock.NewFromParent(e.clockFor(tid), tid, e.seq+1)

	candidates := e.mayReadFrom(curr)
	if len(candidates) == 0 {
		curr.Type = action.Init
		curr.Value = e.cfg.UninitValue
		e.commit(curr)
		node := e.pushNode(curr)
		_ = node
		return curr.Value, curr
	}

	var chosen *action.Action
	var rest []*action.Action
	for _, cand := range candidates {
		if chosen == nil && e.tryCandidate(curr, cand) {
			chosen = cand
			continue
		}
		rest = append(rest, cand)
	}
	if chosen == nil {
		// Every candidate closes a cycle: this prefix is infeasible.
		e.markInfeasible("no feasible read-from candidate")
		chosen = candidates[0]
	}

	curr.ReadsFrom = chosen
	curr.Value = chosen.Value
	e.commit(curr)

	node := e.pushNode(curr)
	node.MayReadFrom = rest

	key := readKey{tid: tid, loc: loc, val: chosen.Value}
	e.readCounts[key]++
	if e.cfg.MaxReads > 0 && e.readCounts[key] > e.cfg.MaxReads && len(rest) > 0 {
		e.redundant = true
		e.complete = true
	}

	if curr.IsAcquire() || e.lastFenceRelease[tid] != nil {
		e.synchronizeAcquire(curr, chosen)
	}

	return curr.Value, curr
}

// synchronizeAcquire merges the clock vectors of every write in the
// release sequence headed by chosen into curr's clock vector, the
// release/acquire synchronization rule (spec §4.G "process_read").
func (e *Execution) synchronizeAcquire(curr, chosen *action.Action) {
	if !chosen.IsRelease() {
		return
	}
	e.synchronize(curr, chosen)
	o := e.object(curr.Loc)
	rs := &releaseSeq{pendingRead: curr, chainHead: chosen}
	o.releaseSeqs = append(o.releaseSeqs, rs)
}
