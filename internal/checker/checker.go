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

// Package checker drives the execution loop: running one execution to
// completion or infeasibility, consulting the decision tree for the next
// divergence point, rolling back via the snapshot interface, and
// replaying until every alternative has been explored.
package checker

import (
	"github.com/rs/zerolog"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/execution"
	"github.com/ntaylor-go/rmc/internal/fiber"
	"github.com/ntaylor-go/rmc/internal/scheduler"
	"github.com/ntaylor-go/rmc/internal/snapshot"
)

// Stats accumulates summary counters across every execution explored.
type Stats struct {
	Executions int
	Bugs       int
	Redundant  int
}

// ExecutionResult is what the checker reports after driving one execution
// to completion.
type ExecutionResult struct {
	Trace []*action.Action
	Bugs  []execution.Bug
}

// Checker owns the snapshot service and the cross-execution backtracking
// state needed to systematically explore every thread-interleaving
// alternative the engine discovers, one restart-based replay at a time
// (spec §4.H "next_execution()").
//
// Since the restart-based Snapshotter (spec §9) re-runs userMain from
// scratch rather than rewinding a live process image, each explored
// execution gets a brand new *execution.Execution with its own
// nodestack.Stack — so the set of backtrack points discovered at a given
// step cannot simply be read off one persistent node object the way
// CDSChecker's in-process node stack does. Instead the Checker itself
// accumulates, per step index, which thread choices have already been
// explored and which remain pending, merging in every newly finished
// execution's own (freshly built) nodestack after each run.
type Checker struct {
	cfg   execution.Config
	log   zerolog.Logger
	snap  snapshot.Snapshotter
	stats Stats

	explored map[int]map[int]bool // step index -> tids already explored
	pending  map[int]map[int]bool // step index -> tids still queued

	// divergeAt is the step index the most recently started execution
	// diverges from; -1 before the first execution.
	divergeAt int
	// forcedSchedule is the thread-id sequence the next execution's
	// scheduler must replay verbatim through divergeAt-1, forcing tid
	// forcedSchedule[divergeAt] as the new alternative at the divergence
	// point itself.
	forcedSchedule []int

	// sleepAt is the sleep-set propagation spec.md §4.E describes, adapted
	// to this restart-based replay architecture: at the single step index
	// where the next execution diverges, every other thread id already
	// explored or still pending at that same decision node (the siblings
	// of the alternative being forced) is put to sleep for exactly that one
	// step. This is what excludes a sibling the checker already knows about
	// from accruing fairness "starvation" credit (nodestack.ExploreChild
	// only counts Enabled threads) and from the EnabledSnapshot recording
	// it as a fresh alternative, without requiring a persistent in-process
	// node object across executions.
	sleepAt map[int][]int
}

// New returns a checker using the restart-based snapshotter by default;
// callers may substitute a different Snapshotter (e.g. a future
// copy-on-write implementation) via WithSnapshotter.
func New(cfg execution.Config, logger zerolog.Logger) *Checker {
	return &Checker{
		cfg:       cfg,
		log:       logger,
		snap:      snapshot.NewRestart(),
		explored:  make(map[int]map[int]bool),
		pending:   make(map[int]map[int]bool),
		divergeAt: -1,
	}
}

// WithSnapshotter substitutes the snapshot service.
func (c *Checker) WithSnapshotter(s snapshot.Snapshotter) {
	c.snap = s
}

// Stats returns the running totals across every Run call so far.
func (c *Checker) Stats() Stats {
	return c.stats
}

// ForcedSchedule returns the thread-id sequence the next execution's
// Driver must replay (via Driver.SetForcedSchedule), valid only after
// NextExecution has returned true.
func (c *Checker) ForcedSchedule() []int {
	return c.forcedSchedule
}

// NextExecution reports whether another execution remains to be explored:
// false exactly when every step's backtrack set is empty, i.e. the
// decision tree is fully exhausted (spec §4.H "next_execution()"). exec
// is the just-finished execution (nil on the very first call, which
// always explores once, starting fresh).
func (c *Checker) NextExecution(exec *execution.Execution) bool {
	if exec == nil {
		return true
	}
	c.absorb(exec)
	idx, tid, ok := c.deepestPending()
	if !ok {
		return false
	}

	trace := exec.Trace()
	forced := make([]int, idx+1)
	for i := 0; i < idx; i++ {
		if i < len(trace) {
			forced[i] = trace[i].Tid
		}
	}
	forced[idx] = tid

	siblings := make([]int, 0, len(c.explored[idx])+len(c.pending[idx]))
	for t := range c.explored[idx] {
		if t != tid {
			siblings = append(siblings, t)
		}
	}
	for t := range c.pending[idx] {
		if t != tid {
			siblings = append(siblings, t)
		}
	}
	c.sleepAt = map[int][]int{idx: siblings}

	c.explored[idx][tid] = true
	delete(c.pending[idx], tid)
	c.divergeAt = idx
	c.forcedSchedule = forced
	return true
}

// SleepSiblings returns the per-step sleep-set exclusion map computed by
// the most recent NextExecution call, for Driver.SetSleepSiblings.
func (c *Checker) SleepSiblings() map[int][]int {
	return c.sleepAt
}

// absorb merges exec's freshly built nodestack into the cross-execution
// explored/pending bookkeeping, one step (== node index == trace index,
// since every commit pushes exactly one node) at a time.
func (c *Checker) absorb(exec *execution.Execution) {
	stack := exec.NodeStack()
	for i := 0; i < stack.Len(); i++ {
		node := stack.At(i)
		if c.explored[i] == nil {
			c.explored[i] = make(map[int]bool)
		}
		if c.pending[i] == nil {
			c.pending[i] = make(map[int]bool)
		}
		for tid := range node.ExploredChildren {
			c.explored[i][tid] = true
			delete(c.pending[i], tid)
		}
		for tid := range node.Backtrack {
			if !c.explored[i][tid] {
				c.pending[i][tid] = true
			}
		}
	}
}

// deepestPending returns the deepest step index with a non-empty pending
// set and one queued thread id at that step, preferring to exhaust the
// shallowest alternatives last (matches CDSChecker's "always backtrack to
// the deepest open choice first" exploration order).
func (c *Checker) deepestPending() (idx, tid int, ok bool) {
	deepest := -1
	for i, set := range c.pending {
		if len(set) > 0 && i > deepest {
			deepest = i
		}
	}
	if deepest < 0 {
		return 0, 0, false
	}
	for t := range c.pending[deepest] {
		return deepest, t, true
	}
	return 0, 0, false
}

// Driver is the user-program entry point contract: userMain receives a
// Controller for every atomic/thread-library call it performs, driven by
// one fiber per user thread.
type Driver struct {
	exec   *execution.Execution
	fibers map[int]*fiber.Fiber
	next   int

	// sleepAt is the sleep-set exclusion map from Checker.SleepSiblings,
	// consulted once per step in Run.
	sleepAt map[int][]int
}

// NewDriver builds a fresh per-execution driver around a brand new
// Execution and a root user-main fiber (tid 0).
func NewDriver(cfg execution.Config, logger zerolog.Logger, userMain func(c *fiber.Controller)) *Driver {
	exec := execution.New(cfg, logger)
	d := &Driver{exec: exec, fibers: make(map[int]*fiber.Fiber), next: 1}
	d.fibers[0] = fiber.New(0, userMain)
	return d
}

// Execution exposes the underlying execution state.
func (d *Driver) Execution() *execution.Execution { return d.exec }

// SetForcedSchedule installs the thread-id sequence this Driver's
// scheduler must replay before reverting to free exploration, per
// Checker.ForcedSchedule.
func (d *Driver) SetForcedSchedule(order []int) {
	d.exec.Scheduler().SetForcedSchedule(order)
}

// SetSleepSiblings installs the sleep-set exclusion map this Driver's Run
// must honor, per Checker.SleepSiblings.
func (d *Driver) SetSleepSiblings(m map[int][]int) {
	d.sleepAt = m
}

// SpawnChild registers a new fiber for a thread created by thread_create,
// returning its assigned tid.
func (d *Driver) SpawnChild(fn func(c *fiber.Controller)) int {
	tid := d.next
	d.next++
	d.fibers[tid] = fiber.New(tid, fn)
	return tid
}

// Run steps the driver to completion: each step resumes the scheduler's
// chosen thread, dispatches its pending action descriptor to the
// execution state, and feeds back the resolved value, per spec §4.H.
//
// Lock and Join may discover their operation is not yet enabled (spec
// §4.G step 2): in that case the thread is parked in the scheduler
// without ever being resumed, and the SAME pending descriptor is retried,
// unresolved, the next time the scheduler selects it — matching a
// stackful coroutine that simply hasn't been given a result yet.
func (d *Driver) Run() *ExecutionResult {
	sched := d.exec.Scheduler()
	resumes := make(map[int]fiber.Resume)
	outstanding := make(map[int]fiber.PendingAction)

	// sleepingIdx/sleeping track the sibling threads currently excluded for
	// the step at sleepingIdx, so they can be woken the instant that step
	// actually commits (or before moving on to a different one without
	// committing, e.g. this execution terminates early).
	sleepingIdx := -1
	var sleeping []int
	wakeSleeping := func() {
		for _, t := range sleeping {
			sched.Wake(t)
		}
		sleeping = nil
		sleepingIdx = -1
	}

	for !d.exec.Complete() {
		if d.exec.StepBoundExceeded() {
			break
		}
		if idx := len(d.exec.Trace()); idx != sleepingIdx {
			wakeSleeping()
			for _, t := range d.sleepAt[idx] {
				if sched.Status(t) == scheduler.Enabled {
					sched.Sleep(t)
					sleeping = append(sleeping, t)
				}
			}
			sleepingIdx = idx
		}
		tid, ok := sched.SelectNext()
		if !ok {
			break
		}
		f := d.fibers[tid]
		if f == nil {
			break
		}

		pending, has := outstanding[tid]
		if !has {
			p, alive := f.SwitchTo(resumes[tid])
			if !alive {
				d.exec.FinishThread(tid)
				continue
			}
			pending = p
		}

		resume, blocked := d.dispatch(tid, pending)
		if blocked {
			outstanding[tid] = pending
			continue
		}
		delete(outstanding, tid)
		resumes[tid] = resume
	}
	wakeSleeping()
	d.exec.Finish()
	return &ExecutionResult{Trace: d.exec.Trace(), Bugs: d.exec.Bugs()}
}

// dispatch classifies and executes one pending action descriptor against
// the execution state, returning the resolved value to hand back to the
// fiber and whether the operation is not yet enabled (spec §4.G step 2/3,
// "Enabled check" and "Classify and dispatch").
func (d *Driver) dispatch(tid int, p fiber.PendingAction) (fiber.Resume, bool) {
	pending := p.Action
	if pending.Type == action.RMWRead && p.RMWFunc != nil {
		return d.dispatchRMW(tid, pending, p.RMWFunc), false
	}
	switch pending.Type {
	case action.Read, action.RMWRead:
		val, _ := d.exec.ProcessRead(tid, pending.Loc, pending.Order, pending.Type == action.RMWRead)
		return fiber.Resume{Value: val}, false
	case action.Write, action.RMWWrite:
		d.exec.ProcessWrite(tid, pending.Loc, pending.Order, pending.Value, pending.ReadsFrom)
		return fiber.Resume{}, false
	case action.Init:
		d.exec.Init(tid, pending.Loc, pending.Value)
		return fiber.Resume{}, false
	case action.ThreadCreate:
		d.exec.CreateThread(tid, int(pending.Value))
		return fiber.Resume{}, false
	case action.ThreadStart:
		d.exec.StartThread(tid)
		return fiber.Resume{}, false
	case action.Fence:
		d.exec.ProcessFence(tid, pending.Order)
		return fiber.Resume{}, false
	case action.Lock:
		_, ok := d.exec.Lock(tid, pending.Loc)
		if !ok {
			return fiber.Resume{}, true
		}
		return fiber.Resume{Value: 1}, false
	case action.TryLock:
		act := d.exec.TryLock(tid, pending.Loc)
		return fiber.Resume{Value: act.Value}, false
	case action.Unlock:
		d.exec.Unlock(tid, pending.Loc)
		return fiber.Resume{}, false
	case action.Wait:
		d.exec.Wait(tid, pending.Loc, action.Location(pending.Value))
		return fiber.Resume{}, false
	case action.NotifyOne:
		d.exec.NotifyOne(tid, pending.Loc)
		return fiber.Resume{}, false
	case action.NotifyAll:
		d.exec.NotifyAll(tid, pending.Loc)
		return fiber.Resume{}, false
	case action.ThreadJoin:
		_, ok := d.exec.Join(tid, int(pending.Value))
		if !ok {
			return fiber.Resume{}, true
		}
		return fiber.Resume{Value: 1}, false
	case action.ThreadYield:
		d.exec.Yield(tid)
		return fiber.Resume{}, false
	case action.FlagTestAndSet:
		wasSet, _ := d.exec.FlagTestAndSet(tid, pending.Loc)
		return fiber.Resume{Value: boolToValue(wasSet)}, false
	case action.FlagClear:
		d.exec.FlagClear(tid, pending.Loc)
		return fiber.Resume{}, false
	case action.NonAtomicRead:
		d.exec.ProcessNonAtomicRead(tid, pending.Loc)
		return fiber.Resume{}, false
	case action.NonAtomicWrite:
		d.exec.ProcessNonAtomicWrite(tid, pending.Loc)
		return fiber.Resume{}, false
	default:
		return fiber.Resume{}, false
	}
}

func boolToValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// dispatchRMW performs an atomic read-modify-write in a single engine
// turn: the old value is observed via ProcessRead, f computes the value to
// store, and ProcessWrite commits it chained onto the observed write via
// rmwReadsFrom — no other thread is scheduled between the two halves.
func (d *Driver) dispatchRMW(tid int, pending *action.Action, f func(old uint64) uint64) fiber.Resume {
	old, readAct := d.exec.ProcessRead(tid, pending.Loc, pending.Order, true)
	next := f(old)
	d.exec.ProcessWrite(tid, pending.Loc, pending.Order, next, readAct.ReadsFrom)
	return fiber.Resume{Value: old}
}
