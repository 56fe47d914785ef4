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

// Package fiber simulates the stackful coroutines the checker needs for
// cooperative user-thread scheduling. Go has no user-level stackful
// coroutines, so each Fiber is backed by its own goroutine, paired with
// the engine through two unbuffered rendezvous channels: at any instant
// exactly one of {engine, this fiber's goroutine} is runnable, mirroring
// the single-threaded cooperative model the engine requires.
package fiber

import "github.com/ntaylor-go/rmc/internal/action"

// PendingAction is what a fiber hands to the engine when it suspends: the
// action descriptor it wants to perform, awaiting a resolved value before
// it can continue.
//
// RMWFunc, when set, turns Action (always an RMWRead) into a
// read-modify-write performed entirely within the engine's current turn:
// the engine calls RMWFunc with the observed old value to compute the
// value to commit as the paired write, without ever suspending back to
// the fiber in between. This is what makes the operation atomic — no
// other thread can be scheduled between the read and the write, since
// both happen inside one dispatch.
type PendingAction struct {
	Action  *action.Action
	RMWFunc func(old uint64) uint64
}

// Resume is what the engine hands back to a fiber to let it continue: the
// resolved return value of its last pending action (e.g. the value
// observed by a read, or the success flag of a trylock).
type Resume struct {
	Value uint64
	Done  bool // not set by the engine; a returned fiber receives no further Resume
}

// Fiber is one cooperatively scheduled user thread.
type Fiber struct {
	Tid int

	toEngine chan PendingAction
	toFiber  chan Resume
	done     chan struct{}
}

// New starts fn running in its own goroutine, immediately suspended until
// the engine calls SwitchTo for the first time. fn receives a Controller it
// must use for every suspension point.
func New(tid int, fn func(c *Controller)) *Fiber {
	f := &Fiber{
		Tid:      tid,
		toEngine: make(chan PendingAction),
		toFiber:  make(chan Resume),
		done:     make(chan struct{}),
	}
	ctrl := &Controller{fiber: f}
	go func() {
		defer close(f.done)
		<-f.toFiber // wait for the engine's first Resume before starting
		fn(ctrl)
	}()
	return f
}

// SwitchTo resumes the fiber with the given return value and blocks until
// it next suspends (or finishes), returning its pending action.
// If the fiber has already finished, SwitchTo returns the zero
// PendingAction and ok=false.
func (f *Fiber) SwitchTo(resume Resume) (PendingAction, bool) {
	select {
	case <-f.done:
		return PendingAction{}, false
	default:
	}
	f.toFiber <- resume
	select {
	case pending := <-f.toEngine:
		return pending, true
	case <-f.done:
		return PendingAction{}, false
	}
}

// Controller is the handle a fiber's goroutine uses to suspend itself,
// standing in for the spec's switch_to_master/switch_from_master pair.
type Controller struct {
	fiber *Fiber
}

// SwitchToMaster hands act to the engine and blocks until the engine
// resumes this fiber, returning the resolved value.
func (c *Controller) SwitchToMaster(act *action.Action) Resume {
	c.fiber.toEngine <- PendingAction{Action: act}
	return <-c.fiber.toFiber
}

// SwitchToMasterRMW hands the engine an atomic read-modify-write: loc's
// current value is observed and passed to f, whose result is committed as
// the paired write, both within a single uninterrupted engine turn.
// Resume.Value carries the value observed before the modification, per
// C11 read-modify-write semantics.
func (c *Controller) SwitchToMasterRMW(loc action.Location, order action.Order, f func(old uint64) uint64) Resume {
	c.fiber.toEngine <- PendingAction{
		Action:  &action.Action{Type: action.RMWRead, Loc: loc, Order: order},
		RMWFunc: f,
	}
	return <-c.fiber.toFiber
}
