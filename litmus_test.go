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

// Litmus tests exercising rmc.Run against the well-known shapes from the
// memory-model literature (spec.md §8): store buffering, independent
// reads of independent writes, RMW contention, a reader/writer protocol
// built from a plain Mutex, a reader/writer lock built from an atomic
// word guarding a non-atomic variable, lock-order deadlock, a CondVar
// handoff, a release/acquire handoff through Join, an AtomicFlag
// spinlock, and the address-computed-write satisfaction-cycle shape.
package rmc_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rmc "github.com/ntaylor-go/rmc"
)

// TestStoreBufferingSeqCstForbidsBothZero is the classic SB litmus test:
// two threads each store to their own location then load the other's.
// Under sequential consistency the outcome "both reads see 0" is
// impossible, no matter which interleaving the scheduler chooses, since a
// total order over all four actions must place one store before the
// other thread's load. Run explores every thread-interleaving
// alternative its backtracking discovers; the assertion must hold in
// every one of them.
func TestStoreBufferingSeqCstForbidsBothZero(t *testing.T) {
	x := rmc.NewAtomic()
	y := rmc.NewAtomic()

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(x, 0)
		t.Init(y, 0)

		var r1, r2 uint64
		h := t.Go(func(t *rmc.T) {
			t.Store(x, rmc.SeqCst, 1)
			r2 = t.Load(y, rmc.SeqCst)
		})

		t.Store(y, rmc.SeqCst, 1)
		r1 = t.Load(x, rmc.SeqCst)
		t.Join(h)

		t.Assert(!(r1 == 0 && r2 == 0), "sequentially consistent store buffering observed both reads as zero")
	}, rmc.WithStepBound(200))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}

// TestStoreBufferingRelaxedAllowsBothZero demonstrates the opposite: under
// relaxed orderings the engine must permit (and some explored execution
// must reach) both reads observing the pre-store value, since relaxed
// atomics carry no cross-thread ordering guarantee at all. The test
// records whether any explored execution produced the (0,0) outcome
// rather than asserting it unconditionally, since the engine's default
// exploration order is not guaranteed to enumerate that specific
// interleaving first.
func TestStoreBufferingRelaxedAllowsBothZero(t *testing.T) {
	x := rmc.NewAtomic()
	y := rmc.NewAtomic()
	var sawBothZero int32

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(x, 0)
		t.Init(y, 0)

		var r1, r2 uint64
		h := t.Go(func(t *rmc.T) {
			t.Store(x, rmc.Relaxed, 1)
			r2 = t.Load(y, rmc.Relaxed)
		})

		t.Store(y, rmc.Relaxed, 1)
		r1 = t.Load(x, rmc.Relaxed)
		t.Join(h)

		if r1 == 0 && r2 == 0 {
			atomic.StoreInt32(&sawBothZero, 1)
		}
	}, rmc.WithStepBound(200))

	require.NoError(t, err)
	assert.NotZero(t, report.Executions)
	t.Logf("executions explored: %d, saw (0,0) outcome: %v", report.Executions, atomic.LoadInt32(&sawBothZero) != 0)
}

// TestIndependentReadsOfIndependentWrites is the IRIW shape: two writer
// threads each publish to their own location, and two reader threads each
// observe both locations in opposite order. With seq-cst orderings every
// explored execution must agree on a single global order of the two
// writes, so the two readers can never disagree about which write
// happened first.
func TestIndependentReadsOfIndependentWrites(t *testing.T) {
	x := rmc.NewAtomic()
	y := rmc.NewAtomic()

	var r1, r2, r3, r4 uint64

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(x, 0)
		t.Init(y, 0)

		w1 := t.Go(func(t *rmc.T) { t.Store(x, rmc.SeqCst, 1) })
		w2 := t.Go(func(t *rmc.T) { t.Store(y, rmc.SeqCst, 1) })
		r1h := t.Go(func(t *rmc.T) {
			r1 = t.Load(x, rmc.SeqCst)
			r2 = t.Load(y, rmc.SeqCst)
		})
		r2h := t.Go(func(t *rmc.T) {
			r3 = t.Load(y, rmc.SeqCst)
			r4 = t.Load(x, rmc.SeqCst)
		})

		t.Join(w1)
		t.Join(w2)
		t.Join(r1h)
		t.Join(r2h)

		// Forbidden under SC: reader 1 sees x-before-y while reader 2 sees
		// y-before-x.
		t.Assert(!(r1 == 1 && r2 == 0 && r3 == 1 && r4 == 0), "IRIW readers disagree on write order")
	}, rmc.WithStepBound(300))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}

// TestRMWContentionSerializesFetchAndAdd has two threads each perform a
// fetch-and-add RMW on a shared counter; across every explored
// interleaving the final value must be the sum of both increments, since
// RMW-atomicity guarantees no two RMWs ever read from the same write.
func TestRMWContentionSerializesFetchAndAdd(t *testing.T) {
	counter := rmc.NewAtomic()
	var final uint64

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(counter, 0)

		h := t.Go(func(t *rmc.T) {
			t.RMW(counter, rmc.AcqRel, func(old uint64) uint64 { return old + 1 })
		})
		t.RMW(counter, rmc.AcqRel, func(old uint64) uint64 { return old + 1 })
		t.Join(h)

		final = t.Load(counter, rmc.SeqCst)
		t.Assert(final == 2, "fetch-and-add contention lost an increment")
	}, rmc.WithStepBound(200))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
	assert.EqualValues(t, 2, final)
}

// TestMutexExcludesConcurrentCriticalSections guards a plain counter with
// a Mutex instead of an atomic RMW: every explored interleaving must
// still serialize the two increments, since Lock/Unlock admit only one
// holder at a time.
func TestMutexExcludesConcurrentCriticalSections(t *testing.T) {
	m := rmc.NewMutex()
	counter := rmc.NewAtomic()

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(counter, 0)

		h := t.Go(func(t *rmc.T) {
			t.Lock(m)
			v := t.Load(counter, rmc.Relaxed)
			t.Store(counter, rmc.Relaxed, v+1)
			t.Unlock(m)
		})

		t.Lock(m)
		v := t.Load(counter, rmc.Relaxed)
		t.Store(counter, rmc.Relaxed, v+1)
		t.Unlock(m)

		t.Join(h)
		final := t.Load(counter, rmc.SeqCst)
		t.Assert(final == 2, "mutex failed to exclude a concurrent critical section")
	}, rmc.WithStepBound(200))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}

// TestLockOrderInversionDeadlocks mirrors the classic two-thread,
// two-mutex lock-order inversion: one thread takes m1 then reaches for
// m2 while the other takes m2 then reaches for m1. Under the scheduler's
// deterministic round-robin with explicit yields forcing the interleaved
// acquisition order, both threads end up blocked on each other forever,
// which Run must surface as a deadlock bug.
func TestLockOrderInversionDeadlocks(t *testing.T) {
	m1 := rmc.NewMutex()
	m2 := rmc.NewMutex()

	report, err := rmc.Run(func(t *rmc.T) {
		t.Lock(m1)
		h := t.Go(func(t *rmc.T) {
			t.Lock(m2)
			t.Lock(m1)
			t.Unlock(m1)
			t.Unlock(m2)
		})
		t.Yield()
		t.Yield()
		t.Lock(m2)
		t.Unlock(m2)
		t.Unlock(m1)
		t.Join(h)
	}, rmc.WithStepBound(200))

	require.NoError(t, err)
	foundDeadlock := false
	for _, b := range report.Bugs {
		if b.Kind == "deadlock" {
			foundDeadlock = true
		}
	}
	assert.True(t, foundDeadlock, "lock-order inversion must be reported as a deadlock")
}

// TestCondVarHandoffObservesPublishedValue drives a classic
// producer/consumer handoff through a CondVar: the consumer waits until
// a ready flag is set, then must observe the value the producer
// published before setting it, since NotifyOne synchronizes with the
// Wait it wakes.
func TestCondVarHandoffObservesPublishedValue(t *testing.T) {
	m := rmc.NewMutex()
	cv := rmc.NewCondVar()
	ready := rmc.NewAtomic()
	payload := rmc.NewAtomic()
	var observed uint64

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(ready, 0)
		t.Init(payload, 0)

		h := t.Go(func(t *rmc.T) {
			t.Lock(m)
			for t.Load(ready, rmc.Acquire) == 0 {
				t.Wait(cv, m)
			}
			observed = t.Load(payload, rmc.Relaxed)
			t.Unlock(m)
		})

		t.Store(payload, rmc.Relaxed, 99)
		t.Lock(m)
		t.Store(ready, rmc.Release, 1)
		t.NotifyOne(cv)
		t.Unlock(m)

		t.Join(h)
		t.Assert(observed == 99, "consumer woke without observing the published payload")
	}, rmc.WithStepBound(400))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
	assert.EqualValues(t, 99, observed)
}

// TestReleaseAcquireHandoffThroughJoin checks the simplest possible
// happens-before edge: Join on a finished thread synchronizes with
// everything that thread did, so a plain relaxed store followed by Join
// is already enough for the joining thread to observe it (spec.md §3
// "thread-finish/thread-join" treated as a full synchronization point).
func TestReleaseAcquireHandoffThroughJoin(t *testing.T) {
	x := rmc.NewAtomic()
	var observed uint64

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(x, 0)
		h := t.Go(func(t *rmc.T) {
			t.Store(x, rmc.Relaxed, 42)
		})
		t.Join(h)
		observed = t.Load(x, rmc.Relaxed)
	})

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
	assert.EqualValues(t, 42, observed)
}

// TestLinuxRWLockExcludesWriterFromReader builds a reader/writer lock out
// of a single atomic word: readers fetch-add a count, a writer
// compare-exchanges it from zero to a sentinel exclusive marker. A
// PlainVar guarded by the lock is read and written through ReadPlain/
// WritePlain; if the lock ever let a reader and the writer (or two
// writers) run concurrently, the shadow-memory race detector would flag
// it as a data race, per spec.md §8 scenario 4.
func TestLinuxRWLockExcludesWriterFromReader(t *testing.T) {
	const writerExclusive = uint64(1) << 32

	state := rmc.NewAtomic()
	shared := rmc.NewPlainVar()

	acquireRead := func(t *rmc.T) {
		for {
			old := t.RMW(state, rmc.AcqRel, func(old uint64) uint64 {
				if old == writerExclusive {
					return old
				}
				return old + 1
			})
			if old != writerExclusive {
				return
			}
			t.Yield()
		}
	}
	releaseRead := func(t *rmc.T) {
		t.RMW(state, rmc.AcqRel, func(old uint64) uint64 { return old - 1 })
	}
	acquireWrite := func(t *rmc.T) {
		for {
			old := t.RMW(state, rmc.AcqRel, func(old uint64) uint64 {
				if old == 0 {
					return writerExclusive
				}
				return old
			})
			if old == 0 {
				return
			}
			t.Yield()
		}
	}
	releaseWrite := func(t *rmc.T) {
		t.Store(state, rmc.AcqRel, 0)
	}

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(state, 0)

		h := t.Go(func(t *rmc.T) {
			acquireRead(t)
			t.ReadPlain(shared)
			releaseRead(t)

			acquireRead(t)
			t.ReadPlain(shared)
			releaseRead(t)
		})

		acquireWrite(t)
		t.WritePlain(shared)
		releaseWrite(t)

		acquireWrite(t)
		t.WritePlain(shared)
		releaseWrite(t)

		t.Join(h)
	}, rmc.WithStepBound(500))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}

// TestAddressBasedSatisfactionCycleForbidsSelfJustifyingOutcome is the
// address-computed-write shape from spec.md §8 scenario 6: thread A
// branches on an observed index to decide which of two locations to
// write, then republishes what it reads back from a fixed location;
// thread B feeds that republished value back into the index thread A
// reads. The joint outcome where every read sees 1 requires a write that
// is only justified by the very read chain that produced it — a
// self-satisfying cycle the engine's thin-air filtering must exclude
// (DESIGN.md Open Question 2).
func TestAddressBasedSatisfactionCycleForbidsSelfJustifyingOutcome(t *testing.T) {
	x0 := rmc.NewAtomic()
	x1 := rmc.NewAtomic()
	idx := rmc.NewAtomic()
	y := rmc.NewAtomic()

	var r1, r2, r3 uint64
	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(x0, 0)
		t.Init(x1, 0)
		t.Init(idx, 0)
		t.Init(y, 0)

		h := t.Go(func(t *rmc.T) {
			r3 = t.Load(y, rmc.Acquire)
			t.Store(idx, rmc.Release, r3)
		})

		r1 = t.Load(idx, rmc.Acquire)
		if r1 == 0 {
			t.Store(x0, rmc.Release, 1)
		} else {
			t.Store(x1, rmc.Release, 1)
		}
		r2 = t.Load(x0, rmc.Acquire)
		t.Store(y, rmc.Release, r2)

		t.Join(h)

		t.Assert(!(r1 == 1 && r2 == 1 && r3 == 1), "address-based satisfaction cycle observed all three reads as 1")
	}, rmc.WithStepBound(300))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}

// TestAtomicFlagSpinLockExcludesConcurrentAccess builds a minimal
// test-and-set spinlock directly out of AtomicFlag, the same primitive a
// C11 atomic_flag-based spinlock would use, and checks it still
// serializes a shared counter's increments.
func TestAtomicFlagSpinLockExcludesConcurrentAccess(t *testing.T) {
	flag := rmc.NewAtomicFlag()
	counter := rmc.NewAtomic()

	report, err := rmc.Run(func(t *rmc.T) {
		t.Init(counter, 0)

		acquire := func(t *rmc.T) {
			for t.FlagTestAndSet(flag) {
				t.Yield()
			}
		}
		release := func(t *rmc.T) {
			t.FlagClear(flag)
		}

		h := t.Go(func(t *rmc.T) {
			acquire(t)
			v := t.Load(counter, rmc.Relaxed)
			t.Store(counter, rmc.Relaxed, v+1)
			release(t)
		})

		acquire(t)
		v := t.Load(counter, rmc.Relaxed)
		t.Store(counter, rmc.Relaxed, v+1)
		release(t)

		t.Join(h)
		final := t.Load(counter, rmc.SeqCst)
		t.Assert(final == 2, "atomic_flag spinlock failed to exclude a concurrent critical section")
	}, rmc.WithStepBound(300))

	require.NoError(t, err)
	assert.Empty(t, report.Bugs)
}
