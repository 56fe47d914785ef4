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

func (e *Execution) mutexFor(loc action.Location) *mutexState {
	o := e.object(loc)
	if o.mutex == nil {
		o.mutex = &mutexState{lockedBy: -1}
	}
	return o.mutex
}

func (e *Execution) condFor(loc action.Location) *condState {
	o := e.object(loc)
	if o.cond == nil {
		o.cond = &condState{}
	}
	return o.cond
}

// Lock implements spec §4.G "process_mutex": if free, the caller takes it
// and synchronizes with the last unlock's release; if held, the caller
// blocks and is enqueued as a waiter. Returns whether the lock was taken
// immediately (false means the thread is now Blocked and must be resumed
// by a later Unlock).
func (e *Execution) Lock(tid int, loc action.Location) (*action.Action, bool) {
	m := e.mutexFor(loc)
	if m.held {
		m.waiters = append(m.waiters, tid)
		e.scheduler.Block(tid)
		if t := e.threads[tid]; t != nil {
			t.State = Blocked
		}
		return nil, false
	}
	curr := &action.Action{Type: action.Lock, Order: action.AcqRel, Loc: loc, Tid: tid}
	e.commit(curr)
	m.held = true
	m.lockedBy = tid
	if last := e.lastUnlock(loc); last != nil {
		e.synchronize(curr, last)
	}
	e.pushNode(curr)
	return curr, true
}

func (e *Execution) lastUnlock(loc action.Location) *action.Action {
	o := e.object(loc)
	for i := len(o.actions) - 1; i >= 0; i-- {
		if o.actions[i].Type == action.Unlock {
			return o.actions[i]
		}
	}
	return nil
}

// TryLock never blocks: the committed value encodes success (1) or
// failure (0), per spec §4.G.
func (e *Execution) TryLock(tid int, loc action.Location) *action.Action {
	m := e.mutexFor(loc)
	curr := &action.Action{Type: action.TryLock, Order: action.AcqRel, Loc: loc, Tid: tid}
	if m.held {
		curr.Value = 0
	} else {
		curr.Value = 1
		m.held = true
		m.lockedBy = tid
	}
	e.commit(curr)
	if curr.Value == 1 {
		if last := e.lastUnlock(loc); last != nil {
			e.synchronize(curr, last)
		}
	}
	e.pushNode(curr)
	return curr
}

// Unlock releases the mutex and wakes exactly one queued waiter (if any),
// who must still re-acquire via Lock before resuming (spec §4.G).
func (e *Execution) Unlock(tid int, loc action.Location) *action.Action {
	m := e.mutexFor(loc)
	curr := &action.Action{Type: action.Unlock, Order: action.Release, Loc: loc, Tid: tid}
	e.commit(curr)
	m.held = false
	m.lockedBy = -1
	if len(m.waiters) > 0 {
		woken := m.waiters[0]
		m.waiters = m.waiters[1:]
		e.scheduler.Unblock(woken)
		if t := e.threads[woken]; t != nil {
			t.State = Ready
		}
	}
	e.pushNode(curr)
	return curr
}

// Wait atomically releases mutexLoc and blocks tid on condLoc's waiter
// queue (spec §4.G "process_mutex" / condition variables).
func (e *Execution) Wait(tid int, condLoc, mutexLoc action.Location) *action.Action {
	curr := &action.Action{Type: action.Wait, Order: action.AcqRel, Loc: condLoc, Tid: tid}
	e.commit(curr)

	e.Unlock(tid, mutexLoc)

	c := e.condFor(condLoc)
	c.waiters = append(c.waiters, condWaiter{tid: tid, mutex: mutexLoc})
	e.scheduler.Block(tid)
	if t := e.threads[tid]; t != nil {
		t.State = Blocked
	}
	e.pushNode(curr)
	return curr
}

// NotifyOne wakes the longest-waiting thread on condLoc's queue; the
// woken thread must re-acquire its mutex before resuming, so it is simply
// unblocked and left to race for the lock via Lock.
func (e *Execution) NotifyOne(tid int, condLoc action.Location) *action.Action {
	curr := &action.Action{Type: action.NotifyOne, Order: action.Release, Loc: condLoc, Tid: tid}
	e.commit(curr)
	c := e.condFor(condLoc)
	if len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		e.wakeCondWaiter(w)
	}
	e.pushNode(curr)
	return curr
}

// NotifyAll wakes every waiting thread on condLoc's queue.
func (e *Execution) NotifyAll(tid int, condLoc action.Location) *action.Action {
	curr := &action.Action{Type: action.NotifyAll, Order: action.Release, Loc: condLoc, Tid: tid}
	e.commit(curr)
	c := e.condFor(condLoc)
	for _, w := range c.waiters {
		e.wakeCondWaiter(w)
	}
	c.waiters = nil
	e.pushNode(curr)
	return curr
}

// wakeCondWaiter makes w eligible to run again but never grants it the
// mutex directly: exactly like a plain Lock waiter woken by Unlock, it
// must re-acquire mutex itself via an explicit Lock call, which may lose
// the race to another enabled thread.
func (e *Execution) wakeCondWaiter(w condWaiter) {
	e.scheduler.Unblock(w.tid)
	if t := e.threads[w.tid]; t != nil {
		t.State = Ready
	}
}
