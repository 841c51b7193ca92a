package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/repo"
)

var (
	ErrAlreadyStarted = errors.New("monitor already running")
	ErrStopped        = errors.New("monitor stopped")
)

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is a point-in-time snapshot of a Scheduler.
type Status struct {
	State     State
	Interval  time.Duration
	Timeout   time.Duration
	Sweeps    int
	LastStart time.Time // zero until the first sweep
	LastEnd   time.Time
	LastError string
}

// Scheduler runs a Sweeper repeatedly on one goroutine. It moves
// Idle -> Running -> Stopped and never leaves Stopped.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	sweeps    int
	lastStart time.Time
	lastEnd   time.Time
	lastErr   error
}

func New(sweeper *Sweeper, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The first sweep begins immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Running:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state = Running
	go s.loop(ctx)
	return nil
}

// Stop requests the loop to end and waits for it. The sweep in progress,
// if any, finishes its current site and skips the rest. Safe to call more
// than once and from an Idle scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Stopped
		close(s.done)
		s.mu.Unlock()
		return
	case Running:
		s.cancel()
	}
	s.mu.Unlock()
	<-s.done
}

// Done is closed once the scheduler has stopped.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Err reports the fatal error that ended the loop, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.state,
		Interval:  s.interval,
		Timeout:   s.sweeper.Timeout,
		Sweeps:    s.sweeps,
		LastStart: s.lastStart,
		LastEnd:   s.lastEnd,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.state = Stopped
		s.cancel()
		s.mu.Unlock()
	}()

	s.log.Info("monitor_started", zap.Duration("interval", s.interval))
	for {
		if ctx.Err() != nil {
			s.log.Info("monitor_stopped", zap.Int("sweeps", s.sweepCount()))
			return
		}
		if err := s.sweep(ctx); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.log.Error("monitor_aborted", zap.Error(err))
			return
		}

		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// sweep runs one pass and contains its failures. Only a corrupt store is
// returned; it ends the loop.
func (s *Scheduler) sweep(ctx context.Context) (fatal error) {
	s.mu.Lock()
	s.lastStart = time.Now()
	s.mu.Unlock()

	defer func() {
		if v := recover(); v != nil {
			s.log.Error("sweep_panic", zap.Any("panic", v), zap.Stack("stack"))
			s.setLastErr(fmt.Errorf("sweep panic: %v", v))
		}
		s.mu.Lock()
		s.sweeps++
		s.lastEnd = time.Now()
		s.mu.Unlock()
	}()

	_, err := s.sweeper.RunOnce(ctx)
	switch {
	case err == nil:
		s.setLastErr(nil)
	case errors.Is(err, context.Canceled):
		s.log.Info("sweep_interrupted")
	case errors.Is(err, repo.ErrCorrupt):
		s.setLastErr(err)
		return err
	default:
		s.log.Warn("sweep_failed", zap.Error(err))
		s.setLastErr(err)
	}
	return nil
}

func (s *Scheduler) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Scheduler) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}
