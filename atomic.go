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

import "github.com/ntaylor-go/rmc/internal/action"

// Atomic is an integral atomic location. Every Atomic must be constructed
// exactly once, before Run begins exploring executions, and referenced by
// closure from userMain: Run replays userMain once per explored
// execution, and an Atomic's identity must stay stable across every
// replay of the same program.
type Atomic struct {
	loc action.Location
}

// NewAtomic allocates a fresh atomic location, uninitialized until a
// thread calls T.Init or T.Store on it.
func NewAtomic() *Atomic {
	return &Atomic{loc: allocLocation()}
}

// AtomicFlag is a lock-free boolean flag, the public mirror of C11's
// atomic_flag (spec.md §6, "atomic_flag_{test_and_set,clear}").
type AtomicFlag struct {
	loc action.Location
}

// NewAtomicFlag allocates a fresh flag, clear until first set.
func NewAtomicFlag() *AtomicFlag {
	return &AtomicFlag{loc: allocLocation()}
}

// PlainVar marks a location accessed without atomic synchronization
// (spec.md §4.I "non-atomic load/store"): its value is never arbitrated
// by the engine — the caller tracks the actual value itself exactly like
// an ordinary variable — ReadPlain/WritePlain exist only to tell the
// shadow-memory race detector when an access happens, so a missing lock
// or fence around it surfaces as a reported data race.
type PlainVar struct {
	loc action.Location
}

// NewPlainVar allocates a fresh non-atomic location.
func NewPlainVar() *PlainVar {
	return &PlainVar{loc: allocLocation()}
}
