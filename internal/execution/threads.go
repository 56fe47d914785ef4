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

// CreateThread allocates a new thread record and commits its
// thread-create action, initializing the child's clock vector from the
// creator's (spec §4.G "Thread actions: Create").
func (e *Execution) CreateThread(creatorTid, childTid int) *action.Action {
	curr := &action.Action{Type: action.ThreadCreate, Tid: creatorTid}
	e.commit(curr)
	e.addThread(childTid, creatorTid, curr)
	e.pushNode(curr)
	return curr
}

// StartThread commits the child's first action, inheriting the creator's
// clock vector (spec §4.G "Thread actions: Start").
func (e *Execution) StartThread(childTid int) *action.Action {
	t := e.threads[childTid]
	curr := &action.Action{Type: action.ThreadStart, Tid: childTid}
	if t != nil && t.CreationAct != nil {
		e.clocks[childTid] = t.CreationAct.Clock.Clone()
	}
	e.commit(curr)
	if t != nil {
		t.State = Running
	}
	e.pushNode(curr)
	return curr
}

// Join blocks tid on targetTid's completion; if targetTid has already
// finished, it returns immediately (synchronized).
func (e *Execution) Join(tid, targetTid int) (*action.Action, bool) {
	target := e.threads[targetTid]
	if target == nil || target.State != Completed {
		if target != nil {
			target.WaitingJoiners = append(target.WaitingJoiners, tid)
		}
		if t := e.threads[tid]; t != nil {
			t.State = Blocked
			t.WaitingOnTid = targetTid
		}
		e.scheduler.Block(tid)
		return nil, false
	}
	curr := &action.Action{Type: action.ThreadJoin, Tid: tid}
	e.commit(curr)
	if target.LastAction != nil {
		e.synchronize(curr, target.LastAction)
	}
	e.pushNode(curr)
	return curr, true
}

// Yield commits a thread-yield action, a pure scheduling hint with no
// synchronization effect of its own.
func (e *Execution) Yield(tid int) *action.Action {
	curr := &action.Action{Type: action.ThreadYield, Tid: tid}
	e.commit(curr)
	e.pushNode(curr)
	return curr
}

// FinishThread commits the thread's completion and wakes every joiner
// waiting on it (spec §4.G "Thread actions: Finish").
func (e *Execution) FinishThread(tid int) *action.Action {
	curr := &action.Action{Type: action.ThreadFinish, Tid: tid}
	e.commit(curr)
	t := e.threads[tid]
	if t != nil {
		t.State = Completed
	}
	e.scheduler.Finish(tid)
	if t != nil {
		for _, joiner := range t.WaitingJoiners {
			e.scheduler.Unblock(joiner)
			if jt := e.threads[joiner]; jt != nil {
				jt.State = Ready
			}
		}
		t.WaitingJoiners = nil
	}
	e.pushNode(curr)
	return curr
}

// FlagTestAndSet implements the supplemented atomic_flag_test_and_set as
// a 1-bit RMW over the generic write machinery (SPEC_FULL.md §5).
func (e *Execution) FlagTestAndSet(tid int, loc action.Location) (bool, *action.Action) {
	o := e.object(loc)
	prev := o.lastFlagValue
	readAct := &action.Action{Type: action.RMWRead, Order: action.AcqRel, Loc: loc, Tid: tid, Value: prev}
	e.commit(readAct)
	e.pushNode(readAct)

	writeAct := e.ProcessWrite(tid, loc, action.AcqRel, 1, readAct)
	o.lastFlagValue = 1
	return prev != 0, writeAct
}

// FlagClear implements atomic_flag_clear as a plain release write of 0.
func (e *Execution) FlagClear(tid int, loc action.Location) *action.Action {
	o := e.object(loc)
	o.lastFlagValue = 0
	return e.ProcessWrite(tid, loc, action.Release, 0, nil)
}
