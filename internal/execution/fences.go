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

// ProcessFence commits a standalone memory fence (spec §4.G "process_fence").
// A release fence simply records itself as the thread's most recent
// release fence (consulted by later acquire reads in the same thread via
// last_fence_release); an acquire fence merges clock vectors from the
// release-sequence heads of every read this thread has performed since
// its last acquire fence.
func (e *Execution) ProcessFence(tid int, order action.Order) *action.Action {
	curr := &action.Action{Type: action.Fence, Order: order, Tid: tid}
	e.commit(curr)

	if curr.IsAcquire() {
		for _, act := range e.trace {
			if act.Tid != tid || !act.IsRead() || act.ReadsFrom == nil {
				continue
			}
			if act.ReadsFrom.IsRelease() {
				e.synchronize(curr, act.ReadsFrom)
			}
		}
	}

	e.pushNode(curr)
	return curr
}
