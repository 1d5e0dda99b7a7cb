package startup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CycleFunc runs one cycle for the given trigger.
type CycleFunc func(ctx context.Context, trigger string) error

// Scheduler runs a cycle every interval until stopped. A tick that fires
// while a cycle is still running is dropped.
type Scheduler struct {
	interval time.Duration
	run      CycleFunc
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(interval time.Duration, run CycleFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		logger:   logger.With("component", "scheduler"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "interval", s.interval)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			err := s.run(context.Background(), TriggerSchedule)
			if err != nil && !errors.Is(err, ErrCycleSkipped) {
				s.logger.Error("scheduled cycle failed", "error", err)
			}
		}
	}
}

// Stop ends the loop. A cycle already running is left to finish; Done is
// closed once it has.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.logger.Info("scheduler stopped")
	})
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
