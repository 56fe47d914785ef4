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

// Package cyclegraph maintains the directed graph of modification-order
// edges between committed actions and answers reachability/cycle queries
// incrementally, with change-log based rollback for speculative edges.
package cyclegraph

import "github.com/ntaylor-go/rmc/internal/action"

type node struct {
	act       *action.Action
	out       map[*action.Action]bool
	rmwEdge   *action.Action // the unique outgoing "this is read by an RMW" edge, if any
}

// edgeChange records one edge addition, for rollback.
type edgeChange struct {
	from, to *action.Action
	rmw      bool
}

// changeSet is one nested level of speculative edits pushed by
// StartChanges; RollbackChanges pops and undoes it, CommitChanges merges
// it into the parent (or discards it, since edges are additive and the
// parent already contains them once applied).
type changeSet struct {
	added    []edgeChange
	hadCycle bool // hasCycle at StartChanges, restored by RollbackChanges
}

// Graph is the modification-order graph for one execution. Not safe for
// concurrent use; the engine is single-threaded.
type Graph struct {
	nodes   map[*action.Action]*node
	history []*changeSet
	hasCycle bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[*action.Action]*node)}
}

func (g *Graph) ensure(a *action.Action) *node {
	n, ok := g.nodes[a]
	if !ok {
		n = &node{act: a, out: make(map[*action.Action]bool)}
		g.nodes[a] = n
	}
	return n
}

// StartChanges pushes a new speculative edit frame. Edges added after this
// call can be undone in one shot by RollbackChanges.
func (g *Graph) StartChanges() {
	g.history = append(g.history, &changeSet{hadCycle: g.hasCycle})
}

// CommitChanges discards the current edit frame's undo log, keeping the
// edges it added permanently in the graph.
func (g *Graph) CommitChanges() {
	if len(g.history) == 0 {
		return
	}
	g.history = g.history[:len(g.history)-1]
}

// RollbackChanges undoes every edge added since the matching StartChanges
// and restores the cycle flag to its value at that call.
func (g *Graph) RollbackChanges() {
	if len(g.history) == 0 {
		return
	}
	cs := g.history[len(g.history)-1]
	g.history = g.history[:len(g.history)-1]
	for i := len(cs.added) - 1; i >= 0; i-- {
		c := cs.added[i]
		from := g.nodes[c.from]
		if from == nil {
			continue
		}
		delete(from.out, c.to)
		if c.rmw {
			from.rmwEdge = nil
		}
	}
	g.hasCycle = cs.hadCycle
}

func (g *Graph) record(from, to *action.Action, rmw bool) {
	if len(g.history) == 0 {
		return
	}
	cs := g.history[len(g.history)-1]
	cs.added = append(cs.added, edgeChange{from: from, to: to, rmw: rmw})
}

// AddEdge adds a directed modification-order edge from -> to (from is
// ordered before to). Returns HasCycle after the addition, so a cycle
// closed by an earlier edge is reported too; the edge is added regardless
// (the caller consults HasCycle to decide infeasibility).
func (g *Graph) AddEdge(from, to *action.Action) bool {
	if from == nil || to == nil || from == to {
		return g.hasCycle
	}
	fn := g.ensure(from)
	tn := g.ensure(to)
	_ = tn
	if fn.out[to] {
		return g.hasCycle
	}
	if g.Reachable(to, from) {
		g.hasCycle = true
	}
	fn.out[to] = true
	g.record(from, to, false)
	return g.hasCycle
}

// AddRMWEdge records that to is the unique RMW reading from's value and
// places from immediately before to in modification order: any edge
// pointing at from is inherited by to, and every other edge out of from
// is copied as an edge out of to (an RMW cannot be "skipped over" in mo).
// Panics if from already has a different RMW reader, matching
// the original's "multiple RMWs from one load" internal invariant.
func (g *Graph) AddRMWEdge(from, to *action.Action) bool {
	fn := g.ensure(from)
	if fn.rmwEdge != nil && fn.rmwEdge != to {
		panic("cyclegraph: conflicting rmw edge on single action")
	}
	fn.rmwEdge = to
	g.record(from, to, true)
	cyc := g.AddEdge(from, to)
	for n, nn := range g.nodes {
		if nn.out[from] && !nn.out[to] {
			nn.out[to] = true
			g.record(n, to, false)
		}
	}
	for next := range fn.out {
		if next != to {
			g.AddEdge(to, next)
		}
	}
	return cyc || g.hasCycle
}

// Reachable reports whether to is reachable from from by following edges.
func (g *Graph) Reachable(from, to *action.Action) bool {
	if from == to {
		return true
	}
	start := g.nodes[from]
	if start == nil {
		return false
	}
	seen := map[*action.Action]bool{from: true}
	worklist := []*action.Action{from}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		n := g.nodes[cur]
		if n == nil {
			continue
		}
		for next := range n.out {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				worklist = append(worklist, next)
			}
		}
	}
	return false
}

// HasCycle reports whether an AddEdge/AddRMWEdge call closed a cycle: the
// execution is infeasible. RollbackChanges resets the flag to its value
// at the matching StartChanges.
func (g *Graph) HasCycle() bool {
	return g.hasCycle
}

// CheckPromise walks forward from start, invoking mark on every node
// visited, until done reports true for some node (in which case it
// returns true) or the frontier is exhausted (returns false). Used to
// check whether a promised future value is ever actually resolved by a
// matching write before the read that required it.
func (g *Graph) CheckPromise(start *action.Action, mark func(*action.Action), done func(*action.Action) bool) bool {
	seen := map[*action.Action]bool{start: true}
	worklist := []*action.Action{start}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if mark != nil {
			mark(cur)
		}
		if done != nil && done(cur) {
			return true
		}
		n := g.nodes[cur]
		if n == nil {
			continue
		}
		for next := range n.out {
			if !seen[next] {
				seen[next] = true
				worklist = append(worklist, next)
			}
		}
	}
	return false
}
