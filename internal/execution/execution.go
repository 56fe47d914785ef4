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

// Package execution implements the heart of the checker: per-execution
// state tracking reads-from resolution, modification order, release
// sequences, promises, mutex/condvar state, and bug collection, driving
// the commit step loop described for each intercepted action.
package execution

import (
	"github.com/rs/zerolog"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/clock"
	"github.com/ntaylor-go/rmc/internal/cyclegraph"
	"github.com/ntaylor-go/rmc/internal/nodestack"
	"github.com/ntaylor-go/rmc/internal/race"
	"github.com/ntaylor-go/rmc/internal/scheduler"
)

// Config carries the CLI-level bounds spec.md §6 exposes (-m -M -s -S -f
// -e -b -y -Y -u), threaded through from the root package's Option set.
type Config struct {
	MaxReads         int
	MaxFutureValues  int
	MaxFutureDelay   uint64
	ExpireSlop       uint64
	FairnessWindow   int
	EnabledThreshold int
	StepBound        int
	YieldFairness    bool
	ProhibitYield    bool
	UninitValue      uint64
}

// DefaultConfig matches CDSChecker's conventional defaults.
func DefaultConfig() Config {
	return Config{
		MaxReads:         20,
		MaxFutureValues:  5,
		MaxFutureDelay:   50,
		ExpireSlop:       4,
		FairnessWindow:   100,
		EnabledThreshold: 20,
		StepBound:        10000,
		UninitValue:      0,
	}
}

// BugKind classifies an entry on the bug list (spec §7 taxonomy).
type BugKind uint8

const (
	BugDeadlock BugKind = iota
	BugDataRace
	BugAssertionFailure
	BugUser
)

// Bug is one reported defect.
type Bug struct {
	Kind    BugKind
	Message string
}

// Thread is the engine's record for one user thread (spec §3 "Thread
// record"), minus the stack/register fields a Go goroutine-backed fiber
// doesn't need.
type Thread struct {
	Tid           int
	ParentTid     int
	State         ThreadState
	LastAction    *action.Action
	CreationAct   *action.Action
	WaitingJoiners []int
	WaitingOnTid  int // for a thread blocked in Join, the target's tid
}

// ThreadState mirrors spec §3's {created, ready, running, blocked, completed}.
type ThreadState uint8

const (
	Created ThreadState = iota
	Ready
	Running
	Blocked
	Completed
)

type mutexState struct {
	lockedBy   int
	held       bool
	allocTid   int
	allocClock *clock.Vector
	waiters    []int
}

type condState struct {
	waiters []condWaiter
}

type condWaiter struct {
	tid   int
	mutex action.Location
}

type promise struct {
	read       *action.Action
	value      uint64
	expiration uint64
	synced     map[int]bool
	satisfied  bool
}

type releaseSeq struct {
	pendingRead *action.Action
	chainHead   *action.Action
	breakers    []*action.Action
	resolved    bool
}

// objectState is the per-location bookkeeping spec §3 calls the
// "per-object action list" plus mutex/condvar/promise/release-sequence
// state, all scoped to one atomic location.
type objectState struct {
	loc           action.Location
	actions       []*action.Action
	perThreadLast map[int]*action.Action
	mutex         *mutexState
	cond          *condState
	promises      []*promise
	releaseSeqs   []*releaseSeq
	lastFlagValue uint64
}

// Execution is the per-execution engine state. Not safe for concurrent
// use; the engine is single-threaded (spec §5).
type Execution struct {
	cfg       Config
	log       zerolog.Logger
	scheduler *scheduler.Scheduler
	graph     *cyclegraph.Graph
	nodes     *nodestack.Stack
	races     *race.Detector

	objects map[action.Location]*objectState
	threads map[int]*Thread
	clocks  map[int]*clock.Vector // last committed clock vector per thread

	readCounts map[readKey]int // (tid, location, value) -> times chosen, for the maxreads bound

	trace []*action.Action
	seq   uint64

	bugs       []Bug
	feasible   bool
	complete   bool
	redundant  bool
	stepCount  int
	lastFenceRelease map[int]*action.Action
}

type readKey struct {
	tid int
	loc action.Location
	val uint64
}

// New returns a fresh execution, ready for a freshly created user-main
// thread (tid 0).
func New(cfg Config, logger zerolog.Logger) *Execution {
	e := &Execution{
		cfg:              cfg,
		log:              logger,
		scheduler:        scheduler.New(),
		graph:            cyclegraph.New(),
		nodes:            nodestack.NewStack(),
		races:            race.New(),
		objects:          make(map[action.Location]*objectState),
		threads:          make(map[int]*Thread),
		clocks:           make(map[int]*clock.Vector),
		readCounts:       make(map[readKey]int),
		feasible:         true,
		lastFenceRelease: make(map[int]*action.Action),
	}
	e.addThread(0, -1, nil)
	return e
}

func (e *Execution) object(loc action.Location) *objectState {
	o, ok := e.objects[loc]
	if !ok {
		o = &objectState{loc: loc, perThreadLast: make(map[int]*action.Action)}
		e.objects[loc] = o
	}
	return o
}

func (e *Execution) addThread(tid, parentTid int, creation *action.Action) *Thread {
	t := &Thread{Tid: tid, ParentTid: parentTid, State: Ready, CreationAct: creation}
	e.threads[tid] = t
	e.scheduler.AddThread(tid)
	return t
}

// nextSeq assigns and returns the next monotonic sequence number.
func (e *Execution) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// clockFor returns the clock vector to build a new action's vector from:
// the thread's own last action, or (for a just-created thread with no
// prior action) nil, letting the caller merge in the creator's clock.
func (e *Execution) clockFor(tid int) *clock.Vector {
	return e.clocks[tid]
}

// commit finalizes act: assigns seq_number and clock vector, appends it to
// the global and per-object traces, and records it as the thread's and
// location's most recent action. Matches spec §4.G step 1/4.
func (e *Execution) commit(act *action.Action) {
	act.Seq = e.nextSeq()
	parent := e.clockFor(act.Tid)
	cv := clock.NewFromParent(parent, act.Tid, act.Seq)
	act.Clock = cv
	e.clocks[act.Tid] = cv

	e.trace = append(e.trace, act)
	if t := e.threads[act.Tid]; t != nil {
		t.LastAction = act
	}
	if (act.Loc != 0 || act.Type == action.Init) && !act.IsNonAtomic() {
		o := e.object(act.Loc)
		o.actions = append(o.actions, act)
		o.perThreadLast[act.Tid] = act
	}
	if act.IsFence() && act.IsRelease() {
		e.lastFenceRelease[act.Tid] = act
	}
	act.LastFenceRelease = e.lastFenceRelease[act.Tid]

	e.backtrackConflicts(act)
	e.log.Debug().Int("tid", act.Tid).Str("type", act.Type.String()).Uint64("seq", act.Seq).Msg("committed action")
}

// backtrackConflicts walks the trace backward to find the last action that
// could-synchronize-with act, and queues act's thread on that action's
// decision node for future backtracking (spec §4.G step 5).
func (e *Execution) backtrackConflicts(act *action.Action) {
	for i := len(e.trace) - 2; i >= 0; i-- {
		prior := e.trace[i]
		if prior.CouldSynchronizeWith(act) {
			if node := e.nodeAt(prior.Node); node != nil {
				node.AddBacktrack(act.Tid)
			}
			return
		}
	}
}

func (e *Execution) nodeAt(idx int) *nodestack.Node {
	if idx < 0 || idx >= e.nodes.Len() {
		return nil
	}
	return e.nodes.At(idx)
}

// pushNode creates and pushes the decision node for the step that just
// committed act, capturing the scheduler's current enabled snapshot.
func (e *Execution) pushNode(act *action.Action) *nodestack.Node {
	snap := make(map[int]nodestack.EnabledStatus, len(e.threads))
	for tid := range e.threads {
		switch e.scheduler.Status(tid) {
		case scheduler.Enabled:
			snap[tid] = nodestack.Enabled
		case scheduler.SleepSet:
			snap[tid] = nodestack.SleepSet
		default:
			snap[tid] = nodestack.Disabled
		}
	}
	n := nodestack.NewNode(act, e.lastNode(), len(e.threads), snap)
	act.Node = e.nodes.Len()
	e.nodes.Push(n)
	n.ExploreChild(act.Tid, snap)
	e.applyFairness(act.Tid, act.Type)
	return n
}

// applyFairness is spec.md §4.D's fairness mechanism: over a trailing
// window of cfg.FairnessWindow decision nodes, any other thread that was
// enabled at least cfg.EnabledThreshold more times than it actually ran is
// flagged priority, so SelectNext picks it ahead of the round-robin order
// next time it's genuinely eligible. The thread that just ran loses its own
// priority flag, since it was just given a turn.
//
// thread_yield interacts with this per -y/-Y (spec.md §6): ProhibitYield
// treats an explicit yield as a no-op hint, skipping fairness accounting
// entirely for that step; YieldFairness treats it as the yielding thread
// voluntarily forfeiting this step's starvation argument, clearing its own
// priority without promoting anyone new.
func (e *Execution) applyFairness(ranTid int, actType action.Type) {
	if e.cfg.ProhibitYield && actType == action.ThreadYield {
		return
	}
	e.scheduler.SetPriority(ranTid, false)
	if e.cfg.YieldFairness && actType == action.ThreadYield {
		return
	}
	window := e.cfg.FairnessWindow
	if window <= 0 {
		return
	}
	start := e.nodes.Len() - window
	if start < 0 {
		start = 0
	}
	totals := make(map[int]*nodestack.FairnessCounter, len(e.threads))
	for i := start; i < e.nodes.Len(); i++ {
		for tid, fc := range e.nodes.At(i).Fairness {
			t, ok := totals[tid]
			if !ok {
				t = &nodestack.FairnessCounter{}
				totals[tid] = t
			}
			t.EnabledCount += fc.EnabledCount
			t.TurnsTaken += fc.TurnsTaken
		}
	}
	for tid, t := range totals {
		if tid == ranTid || e.scheduler.Status(tid) != scheduler.Enabled {
			continue
		}
		if t.EnabledCount-t.TurnsTaken >= e.cfg.EnabledThreshold {
			e.scheduler.SetPriority(tid, true)
		}
	}
}

func (e *Execution) lastNode() *nodestack.Node {
	if e.nodes.Len() == 0 {
		return nil
	}
	return e.nodes.At(e.nodes.Len() - 1)
}

// Feasible reports whether the execution has not yet violated any
// memory-model invariant.
func (e *Execution) Feasible() bool {
	return e.feasible && !e.graph.HasCycle()
}

// markInfeasible records that the execution can no longer be extended.
func (e *Execution) markInfeasible(reason string) {
	e.feasible = false
	e.log.Info().Str("reason", reason).Msg("execution marked infeasible")
}

// Bugs returns every bug recorded so far.
func (e *Execution) Bugs() []Bug {
	return e.bugs
}

// AssertBug appends a user-reported or internally detected bug to the bug
// list, matching spec §4.G "assert_bug": if the current prefix is still
// feasible, abort the execution immediately.
func (e *Execution) AssertBug(kind BugKind, msg string) {
	e.bugs = append(e.bugs, Bug{Kind: kind, Message: msg})
	e.log.Warn().Str("kind", busName(kind)).Str("msg", msg).Msg("bug recorded")
	if e.Feasible() {
		e.complete = true
	}
}

func busName(k BugKind) string {
	switch k {
	case BugDeadlock:
		return "deadlock"
	case BugDataRace:
		return "data-race"
	case BugAssertionFailure:
		return "assertion-failure"
	default:
		return "user"
	}
}

// Scheduler exposes the execution's scheduler to the checker loop.
func (e *Execution) Scheduler() *scheduler.Scheduler { return e.scheduler }

// NodeStack exposes the decision tree to the checker loop.
func (e *Execution) NodeStack() *nodestack.Stack { return e.nodes }

// Trace returns the committed action list, in commit order.
func (e *Execution) Trace() []*action.Action { return e.trace }

// Races returns every data race detected by the shadow-memory subsystem.
func (e *Execution) Races() []race.Race { return e.races.Races() }

// Complete reports whether the execution has terminated (all threads
// finished, infeasible, or a bug made further exploration pointless).
func (e *Execution) Complete() bool {
	if e.complete || !e.Feasible() {
		return true
	}
	return e.scheduler.AllCompleted()
}

// Redundant reports whether the execution terminated due to the step
// bound, the maxreads liveness bound, or a thread still asleep at Finish,
// rather than genuine completion.
func (e *Execution) Redundant() bool { return e.redundant }

// StepBoundExceeded checks and records the step-count bound (spec §7
// "Step budget exceeded").
func (e *Execution) StepBoundExceeded() bool {
	e.stepCount++
	if e.cfg.StepBound > 0 && e.stepCount > e.cfg.StepBound {
		e.redundant = true
		e.complete = true
		return true
	}
	return false
}

// Finish runs end-of-execution bookkeeping: release-sequence fixups and
// the deadlock check, matching spec §4.G "End-of-execution".
func (e *Execution) Finish() {
	e.fixupReleaseSequences()
	if e.scheduler.AnySleeping() {
		// A thread the checker put to sleep for partial-order reduction
		// (spec.md §9 Open Question #1) never got woken before the rest of
		// the threads ran to completion: the driver failed to wake it after
		// its one-step exclusion window, which should not happen given
		// Driver.Run's wake-on-every-exit discipline. Treat it the same as
		// the step-bound/maxreads non-bug termination categories (spec §7)
		// rather than raising an internal-invariant panic.
		e.redundant = true
		e.complete = true
		e.log.Warn().Msg("execution completed with a thread still asleep")
	}
	if e.scheduler.Deadlocked() {
		e.AssertBug(BugDeadlock, "no enabled threads with at least one blocked")
	}
	for _, r := range e.races.Races() {
		e.AssertBug(BugDataRace, "data race detected")
		_ = r
	}
	e.log.Info().Int("steps", e.stepCount).Int("bugs", len(e.bugs)).Bool("feasible", e.Feasible()).Msg("execution finished")
}

// fixupReleaseSequences resolves any release sequence still pending at
// end-of-execution: if no breaker was ever recorded, the chain head itself
// is the synchronization source (spec §5 "Supplemented features").
func (e *Execution) fixupReleaseSequences() {
	for _, o := range e.objects {
		for _, rs := range o.releaseSeqs {
			if rs.resolved {
				continue
			}
			rs.resolved = true
			if len(rs.breakers) == 0 && rs.pendingRead != nil && rs.chainHead != nil {
				e.synchronize(rs.pendingRead, rs.chainHead)
			}
		}
	}
}

// synchronize merges src's clock vector into dst's, the core of
// release/acquire synchronization.
func (e *Execution) synchronize(dst, src *action.Action) {
	if dst == nil || src == nil || dst.Clock == nil || src.Clock == nil {
		return
	}
	dst.Clock.Merge(src.Clock)
	e.clocks[dst.Tid] = dst.Clock
}
