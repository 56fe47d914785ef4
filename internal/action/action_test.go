package action_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/action"
	"github.com/ntaylor-go/rmc/internal/clock"
)

func clockWith(tid int, seq uint64) *clock.Vector {
	v := clock.New()
	v.Set(tid, seq)
	return v
}

func TestClassificationPredicates(t *testing.T) {
	w := &action.Action{Type: action.Write, Order: action.Release}
	assert.True(t, w.IsWrite())
	assert.False(t, w.IsRead())
	assert.True(t, w.IsRelease())
	assert.False(t, w.IsAcquire())

	r := &action.Action{Type: action.Read, Order: action.Acquire}
	assert.True(t, r.IsRead())
	assert.True(t, r.IsAcquire())

	rmw := &action.Action{Type: action.RMWRead}
	assert.True(t, rmw.IsRMW())
	assert.True(t, rmw.IsRead())

	lock := &action.Action{Type: action.Lock}
	assert.True(t, lock.IsMutexOp())
	assert.False(t, lock.IsThreadOp())

	join := &action.Action{Type: action.ThreadJoin}
	assert.True(t, join.IsThreadOp())
	assert.False(t, join.IsMutexOp())
}

func TestCouldSynchronizeWithSeqCst(t *testing.T) {
	a := &action.Action{Tid: 0, Loc: 1, Type: action.Write, Order: action.SeqCst}
	b := &action.Action{Tid: 1, Loc: 1, Type: action.Read, Order: action.SeqCst}
	assert.True(t, a.CouldSynchronizeWith(b))
	assert.True(t, b.CouldSynchronizeWith(a))
}

func TestCouldSynchronizeWithReleaseAcquire(t *testing.T) {
	rel := &action.Action{Tid: 0, Loc: 1, Type: action.Write, Order: action.Release}
	acq := &action.Action{Tid: 1, Loc: 1, Type: action.Read, Order: action.Acquire}
	assert.True(t, rel.CouldSynchronizeWith(acq))
	assert.True(t, acq.CouldSynchronizeWith(rel))

	relaxedRead := &action.Action{Tid: 1, Loc: 1, Type: action.Read, Order: action.Relaxed}
	assert.False(t, rel.CouldSynchronizeWith(relaxedRead))
}

func TestCouldSynchronizeWithRejectsSameThreadOrDifferentLoc(t *testing.T) {
	a := &action.Action{Tid: 0, Loc: 1, Type: action.Write, Order: action.SeqCst}
	sameThread := &action.Action{Tid: 0, Loc: 1, Type: action.Read, Order: action.SeqCst}
	assert.False(t, a.CouldSynchronizeWith(sameThread))

	diffLoc := &action.Action{Tid: 1, Loc: 2, Type: action.Read, Order: action.SeqCst}
	assert.False(t, a.CouldSynchronizeWith(diffLoc))
}

func TestHappensBeforeUsesClockVector(t *testing.T) {
	a := &action.Action{Tid: 0, Seq: 3}
	b := &action.Action{Tid: 1, Clock: clockWith(0, 3)}
	assert.True(t, a.HappensBefore(b))

	c := &action.Action{Tid: 1, Clock: clockWith(0, 2)}
	assert.False(t, a.HappensBefore(c))
}
