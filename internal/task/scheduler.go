// Package task runs background work: periodic jobs and the best-effort event dispatcher.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunnerFunc is one execution of a scheduled job.
type RunnerFunc func(context.Context) error

// Scheduler runs a job every interval and whenever it is triggered. Runs never overlap.
type Scheduler struct {
	name         string
	interval     time.Duration
	runner       RunnerFunc
	logger       *zap.Logger
	trigger      chan struct{}
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler builds a stopped scheduler. A non-positive interval defaults to one minute.
func NewScheduler(name string, interval time.Duration, runner RunnerFunc, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		runner:   runner,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop. Calling Start on a running scheduler does nothing.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.runner == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Trigger requests an immediate run. Requests made while one is pending are merged.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the current run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	timer := time.NewTimer(scheduler.interval)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.run(ctx)
		case <-timer.C:
			scheduler.run(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(scheduler.interval)
	}
}

func (scheduler *Scheduler) run(ctx context.Context) {
	if scheduler.runner == nil {
		return
	}
	startedAt := time.Now()
	if runErr := scheduler.runner(ctx); runErr != nil {
		scheduler.logger.Warn("scheduled_job_failed", zap.String("job", scheduler.name), zap.Error(runErr))
		return
	}
	scheduler.logger.Debug("scheduled_job_completed", zap.String("job", scheduler.name), zap.Duration("duration", time.Since(startedAt)))
}
