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
	"sync/atomic"

	"github.com/ntaylor-go/rmc/internal/action"
)

// nextLocation is a monotonic counter minting a fresh action.Location for
// every Atomic, Mutex, and CondVar constructed. These values must be
// allocated once, before Run begins exploring executions, and captured by
// the userMain closure: Run's checker drives userMain once per explored
// execution, and an action.Location's identity must stay stable across
// every re-run of the same program for reads-from/modification-order
// tracking to mean anything across executions.
var nextLocation uint64

func allocLocation() action.Location {
	return action.Location(atomic.AddUint64(&nextLocation, 1))
}

// Order is a C11/C++11 memory order, the public mirror of
// internal/action.Order kept as a distinct type so the internal engine
// vocabulary never leaks into the user-program API.
type Order uint8

const (
	Relaxed Order = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

// toAction converts a public Order to its internal/action counterpart via
// an explicit switch rather than a numeric cast, since the two enums are
// defined independently and must not silently drift out of sync.
func (o Order) toAction() action.Order {
	switch o {
	case Relaxed:
		return action.Relaxed
	case Acquire:
		return action.Acquire
	case Release:
		return action.Release
	case AcqRel:
		return action.AcqRel
	case SeqCst:
		return action.SeqCst
	default:
		return action.Relaxed
	}
}
