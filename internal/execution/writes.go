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

import "github.com/ntaylor-go/rmc/internal/action"

// ProcessWrite commits a write (or the write half of an RMW) and
// establishes its modification-order edges: every write happening-before
// curr is ordered before it, and curr is ordered before every write
// already known to be mo-after it, per spec §4.G "process_write".
func (e *Execution) ProcessWrite(tid int, loc action.Location, order action.Order, value uint64, rmwReadsFrom *action.Action) *action.Action {
	curr := &action.Action{Type: action.Write, Order: order, Loc: loc, Tid: tid, Value: value}
	if rmwReadsFrom != nil {
		curr.Type = action.RMWWrite
	}

	o := e.object(loc)
	e.commit(curr)

	for _, w := range o.actions {
		if w == curr || !w.IsWrite() {
			continue
		}
		if w.HappensBefore(curr) {
			e.graph.AddEdge(w, curr)
		} else if curr.HappensBefore(w) {
			e.graph.AddEdge(curr, w)
		}
	}

	if rmwReadsFrom != nil {
		e.graph.AddRMWEdge(rmwReadsFrom, curr)
	}

	if e.graph.HasCycle() {
		e.markInfeasible("write closed a modification-order cycle")
	}

	e.checkReleaseSeqBreak(o, curr)
	e.ResolvePromises(curr)
	e.pushNode(curr)
	return curr
}

// Init commits the synthetic or explicit initializing write for a
// location, matching spec §4.G step 1's "fabricate a synthetic init
// action" and the explicit `init(loc, value)` user-API call.
func (e *Execution) Init(tid int, loc action.Location, value uint64) *action.Action {
	curr := &action.Action{Type: action.Init, Order: action.SeqCst, Loc: loc, Tid: tid, Value: value}
	e.commit(curr)
	e.pushNode(curr)
	return curr
}

// checkReleaseSeqBreak records curr as a candidate breaker on every
// pending release sequence on this object whose chain curr does not
// belong to, per spec §3 "Release-sequence record" and §4.G
// "process_write".
func (e *Execution) checkReleaseSeqBreak(o *objectState, curr *action.Action) {
	for _, rs := range o.releaseSeqs {
		if rs.resolved {
			continue
		}
		if curr.Tid == rs.chainHead.Tid || curr.IsRMW() {
			continue // same-thread writes and RMWs extend, never break, the chain
		}
		rs.breakers = append(rs.breakers, curr)
		if node := e.nodeAt(rs.pendingRead.Node); node != nil {
			node.ReleaseSeqBreak = append(node.ReleaseSeqBreak, curr)
		}
	}
}
