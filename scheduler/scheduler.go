package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one run of the pipeline
type Job func(ctx context.Context) error

// Scheduler re-runs a job on a fixed interval until stopped
type Scheduler struct {
	job      Job
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu   sync.Mutex
	runs int
	last error
}

// NewScheduler creates a scheduler. The job sees a context cancelled by
// Stop or by parent.
func NewScheduler(parent context.Context, interval time.Duration, job Job) *Scheduler {
	ctx, cancel := context.WithCancel(parent)

	return &Scheduler{
		job:      job,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start starts the scheduler in a goroutine. The first run starts at once.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler and waits for a run in progress to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
	log.Println("Scheduler stopped")
}

// Runs returns how many runs finished and the error of the last one
func (s *Scheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.last
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	started := time.Now()
	err := s.job(s.ctx)
	if err != nil {
		log.Printf("Error in scheduled run: %v\n", err)
	}

	s.mu.Lock()
	s.runs++
	s.last = err
	runs := s.runs
	s.mu.Unlock()

	log.Printf("Scheduled run %d finished in %s, next in %s\n", runs, time.Since(started).Round(time.Millisecond), s.interval)
}
