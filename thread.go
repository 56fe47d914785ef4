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

package rmc

import (
	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/checker"
	"github.com/ntaylor-go/rmc/internal/fiber"
)

// T is the handle userMain (and every thread it spawns) uses to perform
// every atomic/mutex/condvar/thread-library operation. Every call
// suspends the calling goroutine until the engine resumes it, per
// spec.md §5 "Suspension points".
type T struct {
	tid    int
	ctrl   *fiber.Controller
	driver *checker.Driver
}

// ID returns the calling thread's id, the public mirror of
// spec.md §6's thread_current().
func (t *T) ID() int { return t.tid }

// Handle identifies a thread spawned by T.Go, passed to T.Join.
type Handle struct {
	tid int
}

// Go spawns a new thread running fn and returns a Handle future calls to
// Join can wait on (spec.md §6 "thread_create(handle, fn, arg)" collapsed
// into one call, since Go closures already carry arg).
func (t *T) Go(fn func(*T)) Handle {
	var childTid int
	childTid = t.driver.SpawnChild(func(cc *fiber.Controller) {
		cc.SwitchToMaster(&action.Action{Type: action.ThreadStart})
		fn(&T{tid: childTid, ctrl: cc, driver: t.driver})
	})
	t.ctrl.SwitchToMaster(&action.Action{Type: action.ThreadCreate, Value: uint64(childTid)})
	return Handle{tid: childTid}
}

// Join blocks the calling thread until h's thread has finished
// (spec.md §6 "thread_join(handle)").
func (t *T) Join(h Handle) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.ThreadJoin, Value: uint64(h.tid)})
}

// Yield hints to the scheduler that this thread has no preference about
// continuing immediately (spec.md §6 "thread_yield()").
func (t *T) Yield() {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.ThreadYield})
}

// Init publishes a's initial value, matching the explicit
// init(loc, value) call of spec.md §6. Every Atomic should be
// initialized exactly once, by exactly one thread, before any Load.
func (t *T) Init(a *Atomic, value uint64) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Init, Loc: a.loc, Value: value})
}

// Load observes a's current value under order.
func (t *T) Load(a *Atomic, order Order) uint64 {
	r := t.ctrl.SwitchToMaster(&action.Action{Type: action.Read, Order: order.toAction(), Loc: a.loc})
	return r.Value
}

// Store publishes value to a under order.
func (t *T) Store(a *Atomic, order Order, value uint64) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Write, Order: order.toAction(), Loc: a.loc, Value: value})
}

// Fence commits a standalone memory fence under order.
func (t *T) Fence(order Order) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Fence, Order: order.toAction()})
}

// RMW performs an atomic read-modify-write: f receives the value observed
// immediately before the modification and returns the value to commit,
// both within one uninterruptible engine turn (spec.md §6 "rmw(loc,
// order, value)", generalized to an arbitrary read-modify-write function
// rather than a fixed new value, matching C11's compare-and-swap and
// fetch-and-add built on the same primitive). RMW returns the value
// observed before modification.
func (t *T) RMW(a *Atomic, order Order, f func(old uint64) uint64) uint64 {
	r := t.ctrl.SwitchToMasterRMW(a.loc, order.toAction(), f)
	return r.Value
}

// FlagTestAndSet atomically sets f and returns whether it was already
// set (spec.md §6 "atomic_flag_test_and_set").
func (t *T) FlagTestAndSet(f *AtomicFlag) bool {
	r := t.ctrl.SwitchToMaster(&action.Action{Type: action.FlagTestAndSet, Order: action.AcqRel, Loc: f.loc})
	return r.Value != 0
}

// FlagClear atomically clears f (spec.md §6 "atomic_flag_clear").
func (t *T) FlagClear(f *AtomicFlag) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.FlagClear, Order: action.Release, Loc: f.loc})
}

// ReadPlain records a non-atomic load of v for the race detector
// (spec.md §4.I). The calling program reads v's actual value through its
// own ordinary Go state; this call exists only to mark when and from
// which thread that access happened.
func (t *T) ReadPlain(v *PlainVar) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.NonAtomicRead, Loc: v.loc})
}

// WritePlain records a non-atomic store to v for the race detector.
func (t *T) WritePlain(v *PlainVar) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.NonAtomicWrite, Loc: v.loc})
}

// Lock acquires m, blocking if it is already held (spec.md §6 "lock").
func (t *T) Lock(m *Mutex) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Lock, Loc: m.loc})
}

// TryLock attempts to acquire m without blocking, reporting success
// (spec.md §6 "trylock").
func (t *T) TryLock(m *Mutex) bool {
	r := t.ctrl.SwitchToMaster(&action.Action{Type: action.TryLock, Loc: m.loc})
	return r.Value != 0
}

// Unlock releases m, which the calling thread must currently hold
// (spec.md §6 "unlock").
func (t *T) Unlock(m *Mutex) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Unlock, Loc: m.loc})
}

// Wait atomically releases m and blocks on cv until woken by NotifyOne or
// NotifyAll, re-acquiring m before returning (spec.md §6 "wait(mutex)").
func (t *T) Wait(cv *CondVar, m *Mutex) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Wait, Loc: cv.loc, Value: uint64(m.loc)})
	t.ctrl.SwitchToMaster(&action.Action{Type: action.Lock, Loc: m.loc})
}

// NotifyOne wakes the longest-waiting thread blocked on cv
// (spec.md §6 "notify_one").
func (t *T) NotifyOne(cv *CondVar) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.NotifyOne, Loc: cv.loc})
}

// NotifyAll wakes every thread blocked on cv (spec.md §6 "notify_all").
func (t *T) NotifyAll(cv *CondVar) {
	t.ctrl.SwitchToMaster(&action.Action{Type: action.NotifyAll, Loc: cv.loc})
}
