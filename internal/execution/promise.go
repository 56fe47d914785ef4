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
	"github.com/ntaylor-go/rmc/internal/nodestack"
)

// ProcessReadWithFutureValue extends ProcessRead for the case where no
// committed write satisfies the read: the engine may propose a value it
// speculates a later same-thread write will produce, recording a promise
// that must be satisfied before it expires (spec §4.G "process_read",
// "future values").
//
// filterThinAir implements the conservative thin-air filter decided in
// DESIGN.md: a read may not promise a value whose only plausible
// satisfying write is reachable solely through synchronization the read
// itself would have to establish first (a same-step self-loop). future is
// rejected whenever it already happens-before curr according to the
// clock vector curr would receive absent the promise.
func (e *Execution) ProcessReadWithFutureValue(tid int, loc action.Location, order action.Order, value uint64, expireDelay uint64) (*action.Action, bool) {
	o := e.object(loc)
	if len(o.promises) >= e.cfg.MaxFutureValues {
		return nil, false
	}

	curr := &action.Action{Type: action.Read, Order: order, Loc: loc, Tid: tid, Value: value}
	e.commit(curr)

	if e.filterThinAir(curr, value) {
		e.markInfeasible("thin-air promise rejected")
		return curr, false
	}

	if e.cfg.MaxFutureDelay > 0 && expireDelay > e.cfg.MaxFutureDelay {
		expireDelay = e.cfg.MaxFutureDelay
	}
	p := &promise{
		read:       curr,
		value:      value,
		expiration: curr.Seq + expireDelay + e.cfg.ExpireSlop,
		synced:     make(map[int]bool),
	}
	o.promises = append(o.promises, p)

	node := e.pushNode(curr)
	node.FutureValues = append(node.FutureValues, nodestack.FutureValue{Value: value, Expiration: p.expiration})
	return curr, true
}

// filterThinAir rejects a promise whose value is only supported by a
// hypothetical write that would have to observe curr itself to exist
// (i.e. curr already transitively happens-before any committed write of
// the same value on this location): the textbook read(x)=1;store(x,1)
// self-satisfaction cycle (spec §8 scenario 6; spec §9 Open Question 2).
func (e *Execution) filterThinAir(curr *action.Action, value uint64) bool {
	o := e.object(curr.Loc)
	for _, w := range o.actions {
		if w.IsWrite() && w.Value == value && curr.HappensBefore(w) {
			// curr would have to happen-before its own satisfying write's
			// cause; only a thin-air cycle produces this shape.
			if w.HappensBefore(curr) {
				return true
			}
		}
	}
	return false
}

// ResolvePromises checks every pending promise against a freshly
// committed write: if the write's value and location match and the
// promise has not expired, the promise is satisfied (spec §4.G
// "process_write" / Promise lifecycle, spec §3).
func (e *Execution) ResolvePromises(w *action.Action) {
	o := e.object(w.Loc)
	for _, p := range o.promises {
		if p.satisfied || p.value != w.Value {
			continue
		}
		if w.Seq > p.expiration {
			continue
		}
		p.satisfied = true
		e.synchronize(p.read, w)
	}
	e.expirePromises(o)
}

// expirePromises marks infeasible any promise whose expiration clock has
// passed without being satisfied (spec §3 Promise lifecycle).
func (e *Execution) expirePromises(o *objectState) {
	for _, p := range o.promises {
		if p.satisfied {
			continue
		}
		if e.seq > p.expiration {
			e.markInfeasible("promise expired unsatisfied")
		}
	}
}

// CheckPromiseSatisfiable uses the cycle graph's forward reachability to
// determine whether every enabled thread has already been marked as
// synchronized through the promise with no hope of ever producing the
// needed write, matching spec §4.C "check_promise".
func (e *Execution) CheckPromiseSatisfiable(p *action.Action) bool {
	enabled := make(map[int]bool)
	for _, tid := range e.scheduler.EnabledThreads() {
		enabled[tid] = true
	}
	marked := make(map[int]bool)
	e.graph.CheckPromise(p, func(n *action.Action) {
		if enabled[n.Tid] {
			marked[n.Tid] = true
		}
	}, func(n *action.Action) bool {
		return len(marked) >= len(enabled)
	})
	return len(marked) < len(enabled)
}
