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

// Package snapshot defines the boundary between the engine and the
// (external, per spec) process-image snapshotting service, plus a
// restart-based default implementation usable without any OS-level
// copy-on-write support: replay re-runs user_main from scratch and
// reapplies previously committed choices.
package snapshot

// Snapshotter is the interface the engine consumes; it never assumes a
// concrete mechanism (mprotect/fork-based copy-on-write vs. restart).
type Snapshotter interface {
	// TakeSnapshot captures the current engine+process state, returning a
	// token RollBack can later restore.
	TakeSnapshot() Token
	// RollBack restores the state captured by TakeSnapshot.
	RollBack(Token)
	// RegisterRegion declares a piece of engine-owned memory that must be
	// captured/restored; the restart implementation ignores this (it has
	// nothing to snapshot at the memory level) but the interface exists so
	// a future copy-on-write implementation can be substituted without
	// touching engine code.
	RegisterRegion(name string, snapshot func() interface{}, restore func(interface{}))
}

// Token opaquely identifies a captured snapshot.
type Token int

// Restart is the default Snapshotter: instead of restoring a process
// image, it keeps only a token counter and relies on the caller (the
// checker loop) to record the replay choices, re-invoke user_main from
// scratch and replay those choices before diverging.
// RegisterRegion is accepted but inert.
type Restart struct {
	next Token
}

// NewRestart returns a ready-to-use restart-based snapshotter.
func NewRestart() *Restart {
	return &Restart{}
}

// TakeSnapshot returns a fresh, monotonically increasing token; the
// restart implementation does no capture work, since "rolling back" means
// the checker loop re-runs the user program from the beginning.
func (r *Restart) TakeSnapshot() Token {
	r.next++
	return r.next
}

// RollBack is a no-op for the restart implementation: the checker loop
// itself performs the restart by constructing a fresh execution and
// replaying recorded node-stack choices.
func (r *Restart) RollBack(Token) {}

// RegisterRegion is a no-op for the restart implementation.
func (r *Restart) RegisterRegion(string, func() interface{}, func(interface{})) {}
