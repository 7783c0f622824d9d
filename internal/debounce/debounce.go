// Package debounce coalesces bursts of trigger events into single,
// non-overlapping runs per key.
package debounce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

// DefaultWindow is the delay between the first trigger of a burst and the run.
const DefaultWindow = 500 * time.Millisecond

var log = commonlog.GetLogger("treedeco.debounce")

// State is the scheduling state of one key.
type State int

const (
	// Idle: nothing scheduled or running.
	Idle State = iota
	// Pending: a run is scheduled or in progress.
	Pending
	// PendingStale: a trigger arrived while a run was pending; another run
	// follows the current one.
	PendingStale
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case PendingStale:
		return "pendingStale"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Timer is a stoppable scheduled call.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// RunFunc performs one run for key.
type RunFunc func(ctx context.Context, key string) error

// Options configure a Scheduler.
type Options struct {
	// Window is the debounce delay. Zero means DefaultWindow.
	Window time.Duration
	// Run is invoked once per coalesced burst. Required.
	Run RunFunc
	// Eligible is consulted when the timer fires; false drops the run and
	// returns the key to Idle. Nil means always eligible.
	Eligible func(key string) bool
	// AfterFunc replaces time.AfterFunc, mainly for tests.
	AfterFunc AfterFunc
}

type entry struct {
	state   State
	timer   Timer
	running bool
	evicted bool
}

// Scheduler keeps independent debounce state per key and guarantees that at
// most one run per key is in flight.
type Scheduler struct {
	window    time.Duration
	run       RunFunc
	eligible  func(string) bool
	afterFunc AfterFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		window:    opts.Window,
		run:       opts.Run,
		eligible:  opts.Eligible,
		afterFunc: opts.AfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
	}
}

// Trigger records an event for key.
func (s *Scheduler) Trigger(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	// A forgotten key whose last run is still in flight comes back to life.
	e.evicted = false

	switch e.state {
	case Idle:
		e.state = Pending
		s.wg.Add(1)
		e.timer = s.afterFunc(s.window, func() { s.fire(key, e) })
	case Pending:
		e.state = PendingStale
	case PendingStale:
	}
}

// State reports the current state of key.
func (s *Scheduler) State(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.state
	}
	return Idle
}

// Forget drops all state for key. A scheduled run is cancelled; a run in
// progress completes but does not reschedule.
func (s *Scheduler) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.evicted = true
	s.stopTimer(e)
	if e.running {
		// Keep the entry until the run ends so a new trigger cannot start
		// an overlapping run.
		e.state = Pending
		return
	}
	delete(s.entries, key)
}

// Close cancels scheduled runs and waits for runs in progress to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, e := range s.entries {
		e.evicted = true
		s.stopTimer(e)
		delete(s.entries, key)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// stopTimer must be called with s.mu held.
func (s *Scheduler) stopTimer(e *entry) {
	if e.timer != nil && e.timer.Stop() {
		s.wg.Done()
	}
	e.timer = nil
}

func (s *Scheduler) fire(key string, e *entry) {
	defer s.wg.Done()

	s.mu.Lock()
	if e.evicted || s.closed {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	// The run about to start reads the newest state, so triggers that
	// arrived during the wait are already covered.
	e.state = Pending
	e.running = true
	s.mu.Unlock()

	if s.eligible != nil && !s.eligible(key) {
		log.Debugf("skipping %s: not eligible", key)
		s.finish(key, e, false)
		return
	}

	err := s.safeRun(key)
	if err != nil {
		log.Warningf("run for %s failed: %s", key, err.Error())
	}
	s.finish(key, e, true)
}

func (s *Scheduler) finish(key string, e *entry, reschedule bool) {
	s.mu.Lock()
	stale := e.state == PendingStale
	e.state = Idle
	e.running = false
	evicted := e.evicted
	// An ineligible key keeps no state, so keys that never become eligible
	// do not accumulate.
	if (evicted || !reschedule) && s.entries[key] == e {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if stale && reschedule && !evicted {
		s.Trigger(key)
	}
}

func (s *Scheduler) safeRun(key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.run(s.ctx, key)
}
