package fetch

import "sync"

// resultSlot is the one-shot cell shared by a Request and the worker that
// serves it. It is written at most once and read at most once.
type resultSlot struct {
	mu      sync.Mutex
	result  *Result
	written bool
	wake    func()
}

func newResultSlot(wake func()) *resultSlot {
	return &resultSlot{wake: wake}
}

// put stores res and hands back the wake callback registered at that moment.
// Only the first call succeeds.
func (s *resultSlot) put(res Result) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		return nil, false
	}
	s.written = true
	s.result = &res
	wake := s.wake
	s.wake = nil
	return wake, true
}

// poll takes the stored result if present. Otherwise it replaces the wake
// callback with the caller's latest one, under the same lock as the check, so
// a concurrent put cannot be missed.
func (s *resultSlot) poll(wake func()) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		res := *s.result
		s.result = nil
		return res, true
	}
	if !s.written {
		s.wake = wake
	}
	return Result{}, false
}

// pendingJob is one unit of work carried by the request queue.
type pendingJob struct {
	url  string
	slot *resultSlot
}

// resolve publishes res and wakes the waiting request. The wake callback runs
// outside the slot lock and at most once.
func (j pendingJob) resolve(res Result) bool {
	wake, ok := j.slot.put(res)
	if !ok {
		return false
	}
	if wake != nil {
		wake()
	}
	return true
}
