package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntaylor-go/rmc/internal/scheduler"
)

// workloads mirrors the teacher's table-driven style: a set of
// thread-count/expected-selection scenarios exercised uniformly.
var workloads = []struct {
	name    string
	threads int
}{
	{"two threads", 2},
	{"four threads", 4},
	{"eight threads", 8},
}

func TestRoundRobinWrapsAcrossWorkloads(t *testing.T) {
	for _, w := range workloads {
		t.Run(w.name, func(t *testing.T) {
			s := scheduler.New()
			for i := 0; i < w.threads; i++ {
				s.AddThread(i)
			}
			seen := map[int]int{}
			for i := 0; i < w.threads*2; i++ {
				tid, ok := s.SelectNext()
				assert.True(t, ok)
				seen[tid]++
			}
			for i := 0; i < w.threads; i++ {
				assert.Equal(t, 2, seen[i], "each thread selected twice over two full rounds")
			}
		})
	}
}

func TestSleepExcludesFromSelection(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.AddThread(1)
	s.Sleep(0)

	for i := 0; i < 4; i++ {
		tid, ok := s.SelectNext()
		assert.True(t, ok)
		assert.Equal(t, 1, tid)
	}
}

func TestWakeRestoresEligibility(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.Sleep(0)
	_, ok := s.SelectNext()
	assert.False(t, ok)

	s.Wake(0)
	tid, ok := s.SelectNext()
	assert.True(t, ok)
	assert.Equal(t, 0, tid)
}

func TestPriorityThreadSelectedFirst(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.AddThread(1)
	s.SetPriority(1, true)

	tid, ok := s.SelectNext()
	assert.True(t, ok)
	assert.Equal(t, 1, tid)
}

func TestIsPriorityReflectsSetPriority(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	assert.False(t, s.IsPriority(0))
	s.SetPriority(0, true)
	assert.True(t, s.IsPriority(0))
	s.SetPriority(0, false)
	assert.False(t, s.IsPriority(0))
}

func TestAnySleepingReflectsSleepAndWake(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.AddThread(1)
	assert.False(t, s.AnySleeping())
	s.Sleep(0)
	assert.True(t, s.AnySleeping())
	s.Wake(0)
	assert.False(t, s.AnySleeping())
}

func TestDeadlockedWhenNoneEnabledButSomeBlocked(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.AddThread(1)
	s.Block(0)
	s.Block(1)
	assert.True(t, s.Deadlocked())

	_, ok := s.SelectNext()
	assert.False(t, ok)
}

func TestAllCompleted(t *testing.T) {
	s := scheduler.New()
	s.AddThread(0)
	s.AddThread(1)
	assert.False(t, s.AllCompleted())
	s.Finish(0)
	s.Finish(1)
	assert.True(t, s.AllCompleted())
}
