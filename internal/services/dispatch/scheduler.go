package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a scheduled unit of work. It receives a fresh background
// context because it outlives the request that scheduled it, plus its
// own handle so it can clear the pending-job field it is named by.
type Job func(ctx context.Context, handle string)

// Scheduler runs jobs after a delay. Cancel is best-effort: a job that
// started before the cancellation landed simply runs, and the returned
// false is not an error condition.
type Scheduler interface {
	// Schedule runs job after delay and returns its handle.
	Schedule(delay time.Duration, job Job) string

	// Cancel stops a not-yet-started job. Returns false when the job
	// already ran, is running, or was never known.
	Cancel(handle string) bool

	// Stop cancels all pending jobs. Running jobs finish.
	Stop()
}

// timerScheduler is an in-process scheduler backed by time.AfterFunc.
type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewScheduler creates an in-process delayed job scheduler.
func NewScheduler() Scheduler {
	return &timerScheduler{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs job after delay and returns its handle.
func (s *timerScheduler) Schedule(delay time.Duration, job Job) string {
	handle := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, handle)
		s.mu.Unlock()

		job(context.Background(), handle)
	})

	return handle
}

// Cancel stops a not-yet-started job.
func (s *timerScheduler) Cancel(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[handle]
	if !ok {
		return false
	}
	delete(s.timers, handle)
	return timer.Stop()
}

// Stop cancels all pending jobs.
func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for handle, timer := range s.timers {
		timer.Stop()
		delete(s.timers, handle)
	}
}
