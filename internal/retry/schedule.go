package retry

import (
	"sync"
	"time"
)

// RestartSchedule produces the delay before each restart of a process
// that is expected to run indefinitely: the delay doubles on every
// consecutive failure and is capped, and any success resets it to the
// initial value. Unlike Backoff there is no attempt limit and no jitter;
// the caller retries forever and tests depend on the exact sequence.
type RestartSchedule struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewRestartSchedule creates a schedule starting at initial and capped at max
func NewRestartSchedule(initial, max time.Duration) *RestartSchedule {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &RestartSchedule{initial: initial, max: max, current: initial}
}

// Next returns the delay to wait before the next restart and advances
// the schedule for the following failure.
func (s *RestartSchedule) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.current
	s.current *= 2
	if s.current > s.max {
		s.current = s.max
	}
	return delay
}

// Reset returns the schedule to its initial delay. Called on any sign of
// a healthy stream, typically the first successfully parsed message.
func (s *RestartSchedule) Reset() {
	s.mu.Lock()
	s.current = s.initial
	s.mu.Unlock()
}

// Current reports the delay the next failure would incur, without advancing
func (s *RestartSchedule) Current() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
