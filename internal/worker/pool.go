package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotRunning is returned by Cancel for jobs the supervisor does not hold.
var ErrNotRunning = errors.New("job is not running")

const cancelWait = 5 * time.Second

// JobProcessor is the part of Processor the supervisor drives.
type JobProcessor interface {
	Process(ctx context.Context, task Task) error
	ForceFail(ctx context.Context, jobID string, cause any)
}

// RunningGauge tracks the number of live job goroutines.
type RunningGauge interface {
	Inc()
	Dec()
}

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor runs each submitted job in its own goroutine. A panic inside a
// job is recovered and the job is forced to failed; it never reaches the
// caller of Submit.
type Supervisor struct {
	ctx       context.Context
	processor JobProcessor
	gauge     RunningGauge
	log       *zap.Logger

	mu      sync.Mutex
	running map[string]*running
	wg      sync.WaitGroup
}

func NewSupervisor(ctx context.Context, processor JobProcessor, log *zap.Logger, gauge RunningGauge) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		ctx:       ctx,
		processor: processor,
		gauge:     gauge,
		log:       log,
		running:   make(map[string]*running),
	}
}

// Submit starts task in the background and returns immediately.
func (s *Supervisor) Submit(task Task) {
	ctx, cancel := context.WithCancel(s.ctx)
	r := &running{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[task.JobID] = r
	s.mu.Unlock()

	s.wg.Add(1)
	if s.gauge != nil {
		s.gauge.Inc()
	}
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.running, task.JobID)
			s.mu.Unlock()
			if s.gauge != nil {
				s.gauge.Dec()
			}
			close(r.done)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("job panicked", zap.String("job_id", task.JobID), zap.Any("panic", rec), zap.Stack("stack"))
				s.processor.ForceFail(ctx, task.JobID, rec)
			}
		}()

		if err := s.processor.Process(ctx, task); err != nil && !IsCancelled(err) {
			s.log.Debug("process job", zap.String("job_id", task.JobID), zap.Error(err))
		}
	}()
}

// Cancel stops a running job and waits briefly for it to settle.
func (s *Supervisor) Cancel(jobID string) error {
	s.mu.Lock()
	r, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	r.cancel()
	select {
	case <-r.done:
	case <-time.After(cancelWait):
		s.log.Warn("job did not stop in time", zap.String("job_id", jobID))
	}
	return nil
}

// Running returns the number of jobs currently held.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown waits for every job to finish. Jobs are cancelled when the
// supervisor's root context is cancelled; if ctx expires first the remaining
// jobs are cancelled explicitly.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()
	<-done
	return ctx.Err()
}
