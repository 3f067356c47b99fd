package actor

import (
	"sync"
	"time"
)

// TimerSet tracks named one-shot timers for a runtime.
//
// Starting a timer under a name that is already pending replaces it, so at
// most one timer per name is ever live. A callback that loses the race with
// Cancel or a replacing Start is suppressed.
type TimerSet struct {
	clock Clock

	mu     sync.Mutex
	timers map[string]Timer
	seq    map[string]uint64
}

// NewTimerSet returns a TimerSet backed by clock. A nil clock uses RealClock.
func NewTimerSet(clock Clock) *TimerSet {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimerSet{
		clock:  clock,
		timers: make(map[string]Timer),
		seq:    make(map[string]uint64),
	}
}

// Start (re)arms the named timer. fire runs once after d unless the timer is
// canceled or replaced first.
func (s *TimerSet) Start(name string, d time.Duration, fire func()) {
	if name == "" || d <= 0 || fire == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.timers[name]; prev != nil {
		prev.Stop()
	}
	s.seq[name]++
	token := s.seq[name]
	s.timers[name] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current := s.seq[name] == token
		if current {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		if current {
			fire()
		}
	})
}

// Cancel stops the named timer if it is pending.
func (s *TimerSet) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.timers[name]; t != nil {
		t.Stop()
	}
	delete(s.timers, name)
	s.seq[name]++
}

// Pending reports whether the named timer is armed.
func (s *TimerSet) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// StopAll cancels every pending timer.
func (s *TimerSet) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.timers {
		t.Stop()
		s.seq[name]++
	}
	s.timers = make(map[string]Timer)
}
