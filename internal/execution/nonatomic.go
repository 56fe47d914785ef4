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

import (
	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/race"
)

// ProcessNonAtomicRead commits a plain (non-atomic) load, per spec §4.I:
// unlike ProcessRead it never consults reads-from or the mo-graph and
// never pushes a decision node — the engine's instrumentation only
// records that the access happened, at this clock, for the shadow-memory
// detector to judge against every other recorded access to loc. The
// value itself lives in the caller's own program state, exactly like a
// real non-atomic variable outside the model checker's arbitration.
func (e *Execution) ProcessNonAtomicRead(tid int, loc action.Location) *action.Action {
	curr := &action.Action{Type: action.NonAtomicRead, Loc: loc, Tid: tid}
	e.commit(curr)
	e.races.Read(race.Address(loc), tid, curr.Seq, curr.Clock)
	return curr
}

// ProcessNonAtomicWrite commits a plain (non-atomic) store.
func (e *Execution) ProcessNonAtomicWrite(tid int, loc action.Location) *action.Action {
	curr := &action.Action{Type: action.NonAtomicWrite, Loc: loc, Tid: tid}
	e.commit(curr)
	e.races.Write(race.Address(loc), tid, curr.Seq, curr.Clock)
	return curr
}
