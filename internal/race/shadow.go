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

// Package race implements shadow-memory based data-race detection for the
// non-atomic byte accesses the engine instruments, using the committing
// thread's clock vector (rather than a separate FastTrack epoch system)
// to decide concurrency.
package race

import "github.com/ntaylor-go/rmc/internal/clock"

// maxInlineReaders bounds the packed short record's reader budget before
// promotion to a long record with parallel arrays.
const maxInlineReaders = 8

// access is one recorded read or write against a cell.
type access struct {
	tid   int
	seq   uint64
	clock *clock.Vector
}

// cell is the shadow record for a single byte. The common case (one
// writer, zero or one readers) needs only the inline slots; once more
// concurrent readers accumulate it promotes to the long-record arrays.
type cell struct {
	lastWrite access

	// Inline short record.
	readerCount int
	readers     [maxInlineReaders]access

	// Long record, used once readerCount would exceed maxInlineReaders.
	promoted    bool
	longReaders []access
}

func (c *cell) addReader(a access) {
	if c.promoted {
		c.longReaders = append(c.longReaders, a)
		return
	}
	if c.readerCount < maxInlineReaders {
		c.readers[c.readerCount] = a
		c.readerCount++
		return
	}
	c.promoted = true
	c.longReaders = make([]access, 0, maxInlineReaders+1)
	c.longReaders = append(c.longReaders, c.readers[:c.readerCount]...)
	c.longReaders = append(c.longReaders, a)
	c.readerCount = 0
}

func (c *cell) readersSlice() []access {
	if c.promoted {
		return c.longReaders
	}
	return c.readers[:c.readerCount]
}

func (c *cell) clearReaders() {
	c.promoted = false
	c.longReaders = nil
	c.readerCount = 0
}

// concurrentWith reports whether b happened without observing a: a and b
// are concurrent iff neither happens-before the other, per spec §4.I
// ("the accessing thread's clock for the other thread is less-than-or-
// equal to the other thread's recorded clock").
func concurrentWith(a, b access) bool {
	if a.tid == b.tid {
		return false
	}
	if b.clock != nil && b.clock.SynchronizedSince(a.tid, a.seq) {
		return false
	}
	if a.clock != nil && a.clock.SynchronizedSince(b.tid, b.seq) {
		return false
	}
	return true
}

// Address is an opaque two-level key: a 16-bit high part selecting a
// second-level table, a 16-bit low part selecting a cell within it,
// matching spec §3's packed two-level address table.
type Address uint32

func split(addr Address) (hi, lo uint16) {
	return uint16(addr >> 16), uint16(addr)
}

// Detector owns shadow memory for one execution.
type Detector struct {
	table map[uint16]map[uint16]*cell
	races []Race
}

// Race is one reported conflicting pair of accesses.
type Race struct {
	Addr      Address
	FirstTid  int
	SecondTid int
	IsWrite   bool
}

// New returns an empty detector.
func New() *Detector {
	return &Detector{table: make(map[uint16]map[uint16]*cell)}
}

func (d *Detector) cellFor(addr Address) *cell {
	hi, lo := split(addr)
	inner, ok := d.table[hi]
	if !ok {
		inner = make(map[uint16]*cell)
		d.table[hi] = inner
	}
	c, ok := inner[lo]
	if !ok {
		c = &cell{}
		inner[lo] = c
	}
	return c
}

// Read records a non-atomic load at addr by tid with the given clock
// vector, reporting a race against the last conflicting write if the
// accesses are concurrent.
func (d *Detector) Read(addr Address, tid int, seq uint64, cv *clock.Vector) {
	c := d.cellFor(addr)
	a := access{tid: tid, seq: seq, clock: cv}
	if c.lastWrite.clock != nil && concurrentWith(c.lastWrite, a) {
		d.races = append(d.races, Race{Addr: addr, FirstTid: c.lastWrite.tid, SecondTid: tid, IsWrite: false})
	}
	c.addReader(a)
}

// Write records a non-atomic store at addr by tid, reporting a race
// against the last write and against every reader still concurrent with
// it, then clears the reader set (a write happens-after every read it
// doesn't race with, dominating them for future queries).
func (d *Detector) Write(addr Address, tid int, seq uint64, cv *clock.Vector) {
	c := d.cellFor(addr)
	a := access{tid: tid, seq: seq, clock: cv}
	if c.lastWrite.clock != nil && concurrentWith(c.lastWrite, a) {
		d.races = append(d.races, Race{Addr: addr, FirstTid: c.lastWrite.tid, SecondTid: tid, IsWrite: true})
	}
	for _, r := range c.readersSlice() {
		if concurrentWith(r, a) {
			d.races = append(d.races, Race{Addr: addr, FirstTid: r.tid, SecondTid: tid, IsWrite: true})
		}
	}
	c.lastWrite = a
	c.clearReaders()
}

// Races returns every race detected so far.
func (d *Detector) Races() []Race {
	return d.races
}
