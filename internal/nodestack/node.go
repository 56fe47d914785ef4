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

// Package nodestack implements the decision tree backing systematic
// exploration: one Node per committed step, recording every alternative
// the engine could have taken, and the Stack of nodes that forms the
// search tree's current path.
package nodestack

import "github.com/ntaylor-go/rmc/internal/action"

// EnabledStatus mirrors a thread's scheduler status at the moment a
// decision was made.
type EnabledStatus uint8

const (
	Enabled EnabledStatus = iota
	Disabled
	SleepSet
)

// PromiseSlot is the trinary flag carried per live promise in the
// promise-combination counter.
type PromiseSlot uint8

const (
	Irrelevant PromiseSlot = iota
	Unfulfilled
	Fulfilled
)

// FutureValue is a candidate (value, expiration) pair a read could
// speculatively observe.
type FutureValue struct {
	Value      uint64
	Expiration uint64
}

// FairnessCounter tracks, per thread, how long it has been enabled
// without running, for the optional fairness mechanism.
type FairnessCounter struct {
	EnabledCount int
	TurnsTaken   int
	Priority     bool
}

// Node is one decision point: the committed action plus every alternative
// the checker could explore on a later replay.
type Node struct {
	Action *action.Action
	Parent *Node

	NumThreads int

	// ExploredChildren/Backtrack are indexed by thread id.
	ExploredChildren map[int]bool
	Backtrack        map[int]bool

	// EnabledSnapshot is each thread's status at the moment this decision
	// was made, indexed by thread id.
	EnabledSnapshot map[int]EnabledStatus

	MayReadFrom      []*action.Action
	MayReadFromIndex int

	FutureValues      []FutureValue
	FutureValueIndex  int

	// PromiseCombination is iterated in binary-counter order over the
	// non-Irrelevant slots (Unfulfilled is bit 0, Fulfilled is bit 1);
	// Irrelevant slots are skipped.
	PromiseCombination []PromiseSlot

	ReleaseSeqBreak      []*action.Action // nil entry means "no breaker"
	ReleaseSeqBreakIndex int

	MiscCount int
	MiscIndex int

	Fairness map[int]*FairnessCounter
}

// NewNode creates a decision node for the step that committed act, with
// numThreads live threads and the given enabled snapshot (copied).
func NewNode(act *action.Action, parent *Node, numThreads int, enabled map[int]EnabledStatus) *Node {
	snap := make(map[int]EnabledStatus, len(enabled))
	for k, v := range enabled {
		snap[k] = v
	}
	return &Node{
		Action:           act,
		Parent:           parent,
		NumThreads:       numThreads,
		ExploredChildren: make(map[int]bool),
		Backtrack:        make(map[int]bool),
		EnabledSnapshot:  snap,
		Fairness:         make(map[int]*FairnessCounter),
	}
}

// ExploreChild marks tid as explored at this node and records fresh
// fairness counters for every known thread, incrementing EnabledCount for
// threads that were enabled and TurnsTaken for the one that ran.
func (n *Node) ExploreChild(tid int, enabled map[int]EnabledStatus) {
	n.ExploredChildren[tid] = true
	delete(n.Backtrack, tid)
	for t, status := range enabled {
		fc, ok := n.Fairness[t]
		if !ok {
			fc = &FairnessCounter{}
			n.Fairness[t] = fc
		}
		if status == Enabled {
			fc.EnabledCount++
		}
		if t == tid {
			fc.TurnsTaken++
		}
	}
}

// AddBacktrack queues tid for re-exploration from this node, unless it has
// already been explored.
func (n *Node) AddBacktrack(tid int) {
	if n.ExploredChildren[tid] {
		return
	}
	n.Backtrack[tid] = true
}

// hasBacktrack reports whether any thread remains queued.
func (n *Node) hasBacktrack() bool {
	return len(n.Backtrack) > 0
}

// hasReadFrom reports whether any unexplored read-from candidate remains.
func (n *Node) hasReadFrom() bool {
	return n.MayReadFromIndex+1 < len(n.MayReadFrom)
}

// hasFutureValue reports whether any unexplored future-value candidate
// remains.
func (n *Node) hasFutureValue() bool {
	return n.FutureValueIndex+1 < len(n.FutureValues)
}

// promiseCombinationBound is 2^(number of non-Irrelevant slots).
func (n *Node) promiseCombinationBound() int {
	count := 0
	for _, s := range n.PromiseCombination {
		if s != Irrelevant {
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return 1 << uint(count)
}

// hasReleaseSeqBreak reports whether any unexplored breaker remains.
func (n *Node) hasReleaseSeqBreak() bool {
	return n.ReleaseSeqBreakIndex+1 < len(n.ReleaseSeqBreak)
}

// hasMisc reports whether any unexplored misc outcome remains.
func (n *Node) hasMisc() bool {
	return n.MiscIndex+1 < n.MiscCount
}

// Exhausted reports whether every dimension has been fully explored: no
// backtrack threads, no remaining read-from/future-value/release-seq-break
// candidates, no remaining promise combinations, and no misc outcomes.
func (n *Node) Exhausted() bool {
	return !n.hasBacktrack() && !n.hasReadFrom() && !n.hasFutureValue() &&
		!n.hasPromiseCombination() && !n.hasReleaseSeqBreak() && !n.hasMisc()
}

func (n *Node) hasPromiseCombination() bool {
	bound := n.promiseCombinationBound()
	return bound > 0 && n.promiseCombinationCursor()+1 < bound
}

// promiseCombinationCursor reconstructs the binary counter's current value
// from the non-Irrelevant slots' Fulfilled bit pattern.
func (n *Node) promiseCombinationCursor() int {
	cursor := 0
	bit := 0
	for _, s := range n.PromiseCombination {
		if s == Irrelevant {
			continue
		}
		if s == Fulfilled {
			cursor |= 1 << uint(bit)
		}
		bit++
	}
	return cursor
}

// Increment advances to the next unexplored alternative, trying each
// dimension in the fixed order the spec requires: thread choice, read-from,
// future-value, promise-combination, release-seq-break, misc. Reports
// whether an alternative was found (false means the node is exhausted).
func (n *Node) Increment() bool {
	if n.hasBacktrack() {
		return true
	}
	if n.hasReadFrom() {
		n.MayReadFromIndex++
		return true
	}
	if n.hasFutureValue() {
		n.FutureValueIndex++
		return true
	}
	if n.hasPromiseCombination() {
		n.incrementPromiseCombination()
		return true
	}
	if n.hasReleaseSeqBreak() {
		n.ReleaseSeqBreakIndex++
		return true
	}
	if n.hasMisc() {
		n.MiscIndex++
		return true
	}
	return false
}

func (n *Node) incrementPromiseCombination() {
	next := n.promiseCombinationCursor() + 1
	bit := 0
	for i, s := range n.PromiseCombination {
		if s == Irrelevant {
			continue
		}
		if next&(1<<uint(bit)) != 0 {
			n.PromiseCombination[i] = Fulfilled
		} else {
			n.PromiseCombination[i] = Unfulfilled
		}
		bit++
	}
}

// NextBacktrackThread returns one queued backtrack thread id, and whether
// one existed.
func (n *Node) NextBacktrackThread() (int, bool) {
	for tid := range n.Backtrack {
		return tid, true
	}
	return 0, false
}

// Stack is the ordered path of decision nodes from the root to the
// current replay cursor.
type Stack struct {
	nodes []*Node
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push appends a freshly committed node.
func (s *Stack) Push(n *Node) {
	s.nodes = append(s.nodes, n)
}

// Len reports the number of nodes on the stack.
func (s *Stack) Len() int {
	return len(s.nodes)
}

// At returns the node at index i.
func (s *Stack) At(i int) *Node {
	return s.nodes[i]
}

// TruncateAfter drops every node beyond index i (inclusive of i+1..end),
// used when a replay diverges at node i.
func (s *Stack) TruncateAfter(i int) {
	if i+1 >= len(s.nodes) {
		return
	}
	s.nodes = s.nodes[:i+1]
}

// GetNextBacktrack walks the stack top-down and returns the index of the
// deepest non-exhausted node, which becomes the new divergence point.
// Returns (-1, false) when every node is exhausted: exploration is
// complete.
func (s *Stack) GetNextBacktrack() (int, bool) {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		if !s.nodes[i].Exhausted() {
			return i, true
		}
	}
	return -1, false
}
