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

// Package action defines the Action (event) type committed to an
// execution's trace, along with the pure classification predicates used
// throughout the engine.
package action

import "github.com/ntaylor-go/rmc/internal/clock"

// Type enumerates the kinds of events the engine can commit.
type Type uint8

const (
	Read Type = iota
	Write
	RMWRead
	RMWWrite
	RMWCancel
	Init
	Fence
	Lock
	TryLock
	Unlock
	NotifyOne
	NotifyAll
	Wait
	ThreadCreate
	ThreadStart
	ThreadJoin
	ThreadYield
	ThreadFinish
	RelSeqFixup
	FlagTestAndSet
	FlagClear
	NonAtomicRead
	NonAtomicWrite
)

func (t Type) String() string {
	switch t {
	case Read:
		return "read"
	case Write:
		return "write"
	case RMWRead:
		return "rmw-read"
	case RMWWrite:
		return "rmw-write"
	case RMWCancel:
		return "rmw-cancel"
	case Init:
		return "init"
	case Fence:
		return "fence"
	case Lock:
		return "lock"
	case TryLock:
		return "trylock"
	case Unlock:
		return "unlock"
	case NotifyOne:
		return "notify-one"
	case NotifyAll:
		return "notify-all"
	case Wait:
		return "wait"
	case ThreadCreate:
		return "thread-create"
	case ThreadStart:
		return "thread-start"
	case ThreadJoin:
		return "thread-join"
	case ThreadYield:
		return "thread-yield"
	case ThreadFinish:
		return "thread-finish"
	case RelSeqFixup:
		return "relseq-fixup"
	case FlagTestAndSet:
		return "flag-test-and-set"
	case FlagClear:
		return "flag-clear"
	case NonAtomicRead:
		return "nonatomic-read"
	case NonAtomicWrite:
		return "nonatomic-write"
	default:
		return "unknown"
	}
}

// Order is a C11/C++11 memory order.
type Order uint8

const (
	Relaxed Order = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

func (o Order) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case AcqRel:
		return "acq-rel"
	case SeqCst:
		return "seq-cst"
	default:
		return "unknown"
	}
}

// Location is an opaque address identifier: equality and hashing only, as
// required by spec §3. Root-package Atomic values take their Location
// from a package-level counter when they are constructed.
type Location uintptr

// Action is one committed event in a trace. Immutable once committed; the
// execution package is the only writer, and only during the commit step.
type Action struct {
	Type     Type
	Order    Order
	Loc      Location
	Tid      int
	Value    uint64
	Seq      uint64
	ReadsFrom *Action // for reads: the write (possibly a promise) observed
	Clock     *clock.Vector

	// LastFenceRelease points at the most recent release fence committed
	// by this action's thread at the time this action committed.
	LastFenceRelease *Action

	// Node is the index into the owning execution's node stack for the
	// decision point this action represents.
	Node int
}

// IsRead reports whether the action observes a value (plain read or the
// read half of an RMW).
func (a *Action) IsRead() bool {
	return a.Type == Read || a.Type == RMWRead
}

// IsWrite reports whether the action publishes a value to its location.
func (a *Action) IsWrite() bool {
	return a.Type == Write || a.Type == RMWWrite || a.Type == Init
}

// IsRMW reports whether the action is part of a read-modify-write.
func (a *Action) IsRMW() bool {
	return a.Type == RMWRead || a.Type == RMWWrite || a.Type == RMWCancel
}

// IsFence reports whether the action is a standalone memory fence.
func (a *Action) IsFence() bool {
	return a.Type == Fence
}

// IsNonAtomic reports whether the action is a plain (non-atomic) load or
// store, excluded from reads-from and modification-order bookkeeping and
// checked only by the shadow-memory race detector (spec §4.I).
func (a *Action) IsNonAtomic() bool {
	return a.Type == NonAtomicRead || a.Type == NonAtomicWrite
}

// IsMutexOp reports whether the action operates on a mutex or condition
// variable.
func (a *Action) IsMutexOp() bool {
	switch a.Type {
	case Lock, TryLock, Unlock, Wait, NotifyOne, NotifyAll:
		return true
	default:
		return false
	}
}

// IsThreadOp reports whether the action is part of thread lifecycle
// management.
func (a *Action) IsThreadOp() bool {
	switch a.Type {
	case ThreadCreate, ThreadStart, ThreadJoin, ThreadYield, ThreadFinish:
		return true
	default:
		return false
	}
}

// IsAcquire reports whether the action carries acquire semantics.
func (a *Action) IsAcquire() bool {
	return a.Order == Acquire || a.Order == AcqRel || a.Order == SeqCst
}

// IsRelease reports whether the action carries release semantics.
func (a *Action) IsRelease() bool {
	return a.Order == Release || a.Order == AcqRel || a.Order == SeqCst
}

// IsSeqCst reports whether the action is sequentially consistent.
func (a *Action) IsSeqCst() bool {
	return a.Order == SeqCst
}

// HappensBefore reports whether a happens-before b, using b's clock
// vector: a hb b iff b's clock vector has observed a's (tid, seq).
func (a *Action) HappensBefore(b *Action) bool {
	if a == nil || b == nil || b.Clock == nil {
		return false
	}
	return b.Clock.SynchronizedSince(a.Tid, a.Seq)
}

// CouldSynchronizeWith reports whether a and b are a pair of operations
// whose ordering must be explored explicitly by the scheduler (as opposed
// to being fully resolved by the reads-from relation): different threads,
// same location, and either both seq-cst with at least one a write, or an
// acquire-read/release-write pair.
func (a *Action) CouldSynchronizeWith(b *Action) bool {
	if a == nil || b == nil || a.Tid == b.Tid || a.Loc != b.Loc {
		return false
	}
	bothSeqCst := a.IsSeqCst() && b.IsSeqCst() && (a.IsWrite() || b.IsWrite())
	relAcq := (a.IsAcquire() && a.IsRead() && b.IsRelease() && b.IsWrite()) ||
		(b.IsAcquire() && b.IsRead() && a.IsRelease() && a.IsWrite())
	return bothSeqCst || relAcq
}
