package bus

import "sync"

// Scheduler marshals work onto the host application's execution
// context. Every handler dispatch goes through it, which is what lets
// the rest of the library promise handlers are never run concurrently
// with the application's own logic.
type Scheduler interface {
	Run(fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func())

func (s SchedulerFunc) Run(fn func()) { s(fn) }

// SerialScheduler is a single-goroutine Scheduler for hosts that have
// no event loop of their own (and for tests). Work runs in submission
// order, one item at a time.
type SerialScheduler struct {
	work chan func()
	stop sync.Once
	done chan struct{}
}

func NewSerialScheduler() *SerialScheduler {
	s := &SerialScheduler{
		work: make(chan func(), 256),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *SerialScheduler) loop() {
	defer close(s.done)
	for fn := range s.work {
		fn()
	}
}

// Run queues fn. Calls after Stop are dropped.
func (s *SerialScheduler) Run(fn func()) {
	defer func() {
		// send on closed channel after Stop
		_ = recover()
	}()
	s.work <- fn
}

// Stop drains queued work and shuts the loop down.
func (s *SerialScheduler) Stop() {
	s.stop.Do(func() { close(s.work) })
	<-s.done
}
