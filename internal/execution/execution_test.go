package execution_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/execution"
)

func newExec() *execution.Execution {
	return execution.New(execution.DefaultConfig(), zerolog.Nop())
}

func TestSequenceMonotonicity(t *testing.T) {
	e := newExec()
	e.Init(0, 1, 0)
	a := e.ProcessWrite(0, 1, action.Relaxed, 1, nil)
	_, b := e.ProcessRead(0, 1, action.Relaxed, false)
	assert.Less(t, a.Seq, b.Seq)
}

func TestClockVectorConsistency(t *testing.T) {
	e := newExec()
	e.Init(0, 1, 0)
	a := e.ProcessWrite(0, 1, action.Relaxed, 1, nil)
	assert.EqualValues(t, a.Seq, a.Clock.Get(a.Tid))
}

func TestReadObservesMostRecentWrite(t *testing.T) {
	e := newExec()
	e.Init(0, 1, 0)
	e.ProcessWrite(0, 1, action.Relaxed, 5, nil)
	e.ProcessWrite(0, 1, action.Relaxed, 9, nil)
	val, act := e.ProcessRead(0, 1, action.Relaxed, false)
	assert.EqualValues(t, 9, val)
	assert.EqualValues(t, 9, act.ReadsFrom.Value)
}

func TestReleaseAcquireSynchronizes(t *testing.T) {
	e := newExec()
	e.Init(0, 1, 0)
	w := e.ProcessWrite(0, 1, action.Release, 1, nil)
	_, r := e.ProcessRead(1, 1, action.Acquire, false)
	assert.True(t, r.Clock.SynchronizedSince(w.Tid, w.Seq), "acquire read must synchronize with the release write it observed")
}

func TestMutexMutualExclusion(t *testing.T) {
	e := newExec()
	first, ok := e.Lock(0, 1)
	assert.True(t, ok)
	assert.NotNil(t, first)

	second, ok := e.Lock(1, 1)
	assert.False(t, ok, "a second lock attempt while held must block")
	assert.Nil(t, second)

	e.Unlock(0, 1)
	third, ok := e.Lock(1, 1)
	assert.True(t, ok, "unlock must wake the queued waiter")
	assert.NotNil(t, third)
}

func TestDeadlockDetected(t *testing.T) {
	e := newExec()
	e.Lock(0, 1) // thread 0 holds mutex 1
	e.Lock(1, 2) // thread 1 holds mutex 2
	_, ok := e.Lock(0, 2)
	assert.False(t, ok) // thread 0 blocks on mutex 2
	_, ok = e.Lock(1, 1)
	assert.False(t, ok) // thread 1 blocks on mutex 1: classic lock-order deadlock

	e.Finish()
	assert.True(t, e.Scheduler().Deadlocked())
	found := false
	for _, b := range e.Bugs() {
		if b.Kind == execution.BugDeadlock {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRMWChainAccumulates(t *testing.T) {
	e := newExec()
	e.Init(0, 1, 0)
	v1, r1 := e.ProcessRead(0, 1, action.AcqRel, true)
	assert.EqualValues(t, 0, v1)
	w1 := e.ProcessWrite(0, 1, action.AcqRel, v1+1, r1.ReadsFrom)

	v2, r2 := e.ProcessRead(0, 1, action.AcqRel, true)
	assert.EqualValues(t, 1, v2)
	w2 := e.ProcessWrite(0, 1, action.AcqRel, v2+1, r2.ReadsFrom)

	assert.EqualValues(t, 2, w2.Value)
	assert.True(t, w1.Seq < w2.Seq)
}

func TestThreadCreateJoinLifecycle(t *testing.T) {
	e := newExec()
	e.CreateThread(0, 1)
	e.StartThread(1)
	finish := e.FinishThread(1)

	joinAct, ok := e.Join(0, 1)
	assert.True(t, ok)
	assert.True(t, joinAct.Clock.SynchronizedSince(finish.Tid, finish.Seq))
}

func TestAssertBugMarksComplete(t *testing.T) {
	e := newExec()
	e.AssertBug(execution.BugAssertionFailure, "x != y")
	assert.True(t, e.Complete())
	assert.Len(t, e.Bugs(), 1)
}

func TestFairnessPromotesStarvedThreadToPriority(t *testing.T) {
	cfg := execution.DefaultConfig()
	cfg.EnabledThreshold = 3
	e := execution.New(cfg, zerolog.Nop())

	e.CreateThread(0, 1)
	e.StartThread(1)
	e.Init(0, 1, 0)
	assert.False(t, e.Scheduler().IsPriority(1), "thread 1 has not starved yet")

	for i := 0; i < 3; i++ {
		e.ProcessWrite(0, 1, action.Relaxed, uint64(i+1), nil)
	}

	assert.True(t, e.Scheduler().IsPriority(1), "thread 1 stayed enabled but never ran, and must accrue fairness priority")
}

func TestFairnessProhibitYieldSkipsAccounting(t *testing.T) {
	cfg := execution.DefaultConfig()
	cfg.ProhibitYield = true
	e := execution.New(cfg, zerolog.Nop())
	e.Scheduler().SetPriority(0, true)

	e.Yield(0)

	assert.True(t, e.Scheduler().IsPriority(0), "-Y treats thread_yield as a no-op hint: it must not even clear the yielding thread's own priority flag")
}

func TestFlagTestAndSetThenClear(t *testing.T) {
	e := newExec()
	prev, _ := e.FlagTestAndSet(0, 1)
	assert.False(t, prev)
	prev2, _ := e.FlagTestAndSet(0, 1)
	assert.True(t, prev2)
	e.FlagClear(0, 1)
	prev3, _ := e.FlagTestAndSet(0, 1)
	assert.False(t, prev3)
}
