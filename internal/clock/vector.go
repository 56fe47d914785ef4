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

// Package clock implements per-thread logical clock vectors used to
// compute happens-before relations between committed actions.
package clock

// Vector is a mapping from thread id to the highest sequence number of
// that thread's actions observed so far. Support is finite: indices past
// the end of v are implicitly zero.
type Vector struct {
	v []uint64
}

// New returns an empty vector (all components zero).
func New() *Vector {
	return &Vector{}
}

// NewFromParent builds the clock vector for a freshly committed action:
// it starts from parent (the committing thread's previous action, or the
// creating thread's action for a thread-start), grows to cover tid, and
// sets tid's own component to seq.
func NewFromParent(parent *Vector, tid int, seq uint64) *Vector {
	var nv *Vector
	if parent == nil {
		nv = &Vector{}
	} else {
		nv = parent.Clone()
	}
	nv.ensure(tid + 1)
	nv.v[tid] = seq
	return nv
}

func (c *Vector) ensure(n int) {
	if n <= len(c.v) {
		return
	}
	grown := make([]uint64, n)
	copy(grown, c.v)
	c.v = grown
}

// Get returns the recorded sequence number for tid, or 0 if never seen.
func (c *Vector) Get(tid int) uint64 {
	if c == nil || tid < 0 || tid >= len(c.v) {
		return 0
	}
	return c.v[tid]
}

// Set forces tid's component, growing the vector if necessary. Used only
// when constructing a vector directly (NewFromParent is preferred).
func (c *Vector) Set(tid int, seq uint64) {
	c.ensure(tid + 1)
	c.v[tid] = seq
}

// Clone returns an independent copy.
func (c *Vector) Clone() *Vector {
	nv := make([]uint64, len(c.v))
	copy(nv, c.v)
	return &Vector{v: nv}
}

// Merge performs an element-wise max with other, growing as needed.
// Reports whether any component changed.
func (c *Vector) Merge(other *Vector) bool {
	if other == nil {
		return false
	}
	c.ensure(len(other.v))
	changed := false
	for i, val := range other.v {
		if val > c.v[i] {
			c.v[i] = val
			changed = true
		}
	}
	return changed
}

// SynchronizedSince reports whether this vector has observed tid's action
// with sequence number at least seq: the definition of "a happens-before
// this vector's owning action" when a is the action (a.Tid, a.Seq).
func (c *Vector) SynchronizedSince(tid int, seq uint64) bool {
	return c.Get(tid) >= seq
}

// Len reports the number of thread slots currently tracked. Exposed for
// diagnostics/tests only; callers must use Get for any index, in or out
// of range.
func (c *Vector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.v)
}
