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

// Package scheduler implements round-robin selection among a fixed set
// of cooperative threads, with sleep-set exclusion for partial-order
// reduction and an optional fairness priority override.
package scheduler

// Status is a thread's current schedulability.
type Status uint8

const (
	Enabled Status = iota
	Disabled
	Blocked
	SleepSet
	Completed
)

func (s Status) runnable() bool {
	return s == Enabled
}

// Scheduler tracks per-thread status and a round-robin cursor over thread
// ids 0..n-1.
type Scheduler struct {
	status   map[int]Status
	order    []int // thread ids in round-robin order
	cursor   int
	priority map[int]bool

	// forced is a thread-id prefix SelectNext must honor, in order, before
	// falling back to normal priority/round-robin selection: the checker's
	// mechanism for replaying a previously explored schedule up to its
	// divergence point.
	forced    []int
	forcedIdx int
}

// New returns a scheduler with no threads registered.
func New() *Scheduler {
	return &Scheduler{
		status:   make(map[int]Status),
		priority: make(map[int]bool),
	}
}

// AddThread registers tid as enabled and appends it to the round-robin
// order.
func (s *Scheduler) AddThread(tid int) {
	if _, ok := s.status[tid]; ok {
		return
	}
	s.status[tid] = Enabled
	s.order = append(s.order, tid)
}

// SetStatus updates tid's status directly.
func (s *Scheduler) SetStatus(tid int, status Status) {
	s.status[tid] = status
}

// Status returns tid's current status.
func (s *Scheduler) Status(tid int) Status {
	return s.status[tid]
}

// Sleep marks tid excluded from selection without ending its thread (used
// for partial-order-reduction sleep sets).
func (s *Scheduler) Sleep(tid int) {
	s.status[tid] = SleepSet
}

// Wake reverses Sleep, returning tid to Enabled.
func (s *Scheduler) Wake(tid int) {
	if s.status[tid] == SleepSet {
		s.status[tid] = Enabled
	}
}

// Block marks tid blocked (e.g. on a held lock or a join target).
func (s *Scheduler) Block(tid int) {
	s.status[tid] = Blocked
}

// Unblock returns a blocked thread to Enabled.
func (s *Scheduler) Unblock(tid int) {
	if s.status[tid] == Blocked {
		s.status[tid] = Enabled
	}
}

// Finish marks tid Completed; it is never selected again.
func (s *Scheduler) Finish(tid int) {
	s.status[tid] = Completed
}

// SetPriority flags tid for fairness-priority selection (spec §4.D): the
// scheduler must pick a priority thread next if any is enabled.
func (s *Scheduler) SetPriority(tid int, priority bool) {
	if priority {
		s.priority[tid] = true
	} else {
		delete(s.priority, tid)
	}
}

// IsPriority reports whether tid currently carries the fairness-priority
// flag.
func (s *Scheduler) IsPriority(tid int) bool {
	return s.priority[tid]
}

// AnySleeping reports whether any registered thread is currently in the
// sleep set. Used at end-of-execution to detect the fairness/sleep-set
// tension spec.md §9 describes: a thread put to sleep for partial-order
// reduction that never got woken before the execution otherwise completed.
func (s *Scheduler) AnySleeping() bool {
	for _, status := range s.status {
		if status == SleepSet {
			return true
		}
	}
	return false
}

// EnabledThreads returns every thread id currently Enabled, in
// round-robin order.
func (s *Scheduler) EnabledThreads() []int {
	var out []int
	for _, tid := range s.order {
		if s.status[tid] == Enabled {
			out = append(out, tid)
		}
	}
	return out
}

// SetForcedSchedule installs a thread-id sequence SelectNext consumes one
// entry at a time before reverting to normal selection, replaying a prior
// execution's schedule up to its divergence point.
func (s *Scheduler) SetForcedSchedule(order []int) {
	s.forced = order
	s.forcedIdx = 0
}

// SelectNext returns the next thread to run: if a forced schedule entry
// remains and its thread is runnable, that thread is returned; otherwise
// a priority-flagged enabled thread if one exists, otherwise the first
// enabled thread at or after the round-robin cursor (wrapping). Returns
// (0, false) if no thread is enabled (deadlock, or all threads completed).
func (s *Scheduler) SelectNext() (int, bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	if s.forcedIdx < len(s.forced) {
		tid := s.forced[s.forcedIdx]
		if s.status[tid].runnable() {
			s.forcedIdx++
			s.advanceCursorPast(tid)
			return tid, true
		}
		// The forced thread isn't runnable: the replay diverged from what
		// produced the recorded schedule. Fall back to normal selection
		// rather than deadlock the replay.
		s.forcedIdx = len(s.forced)
	}
	for _, tid := range s.order {
		if s.priority[tid] && s.status[tid] == Enabled {
			s.advanceCursorPast(tid)
			return tid, true
		}
	}
	n := len(s.order)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		tid := s.order[idx]
		if s.status[tid].runnable() {
			s.cursor = (idx + 1) % n
			return tid, true
		}
	}
	return 0, false
}

func (s *Scheduler) advanceCursorPast(tid int) {
	for i, t := range s.order {
		if t == tid {
			s.cursor = (i + 1) % len(s.order)
			return
		}
	}
}

// Deadlocked reports whether no thread is enabled but at least one thread
// is blocked (spec §7 "Deadlock").
func (s *Scheduler) Deadlocked() bool {
	anyBlocked := false
	for _, status := range s.status {
		if status == Enabled {
			return false
		}
		if status == Blocked {
			anyBlocked = true
		}
	}
	return anyBlocked
}

// AllCompleted reports whether every registered thread has finished.
func (s *Scheduler) AllCompleted() bool {
	for _, status := range s.status {
		if status != Completed {
			return false
		}
	}
	return true
}
