// Package worker runs completion calls on a bounded pool so one slow
// provider round trip never stalls request dispatch.
package worker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDispatcherBusy is returned when the job queue is full.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

// Job is a unit of work executed by the pool.
type Job func()

const (
	defaultMinWorkers = 2
	defaultMaxWorkers = 8
	defaultQueueSize  = 64
	defaultWorkerIdle = 30 * time.Second
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Dispatcher keeps MinWorkers goroutines alive and scales up to MaxWorkers
// under backlog; surplus workers retire after WorkerIdleTimeout idle.
type Dispatcher struct {
	jobQueue chan Job
	stopCh   chan struct{}
	logger   *zap.Logger

	mu      sync.Mutex
	running int
	min     int
	max     int
	idle    time.Duration
	stopped bool
}

// NewDispatcher creates the pool and warms up MinWorkers workers.
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = defaultMinWorkers
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WorkerIdleTimeout <= 0 {
		cfg.WorkerIdleTimeout = defaultWorkerIdle
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		jobQueue: make(chan Job, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		logger:   logger,
		min:      cfg.MinWorkers,
		max:      cfg.MaxWorkers,
		idle:     cfg.WorkerIdleTimeout,
	}
	for i := 0; i < d.min; i++ {
		d.spawn(true)
	}
	return d
}

// Submit enqueues a job, growing the pool under backlog. Returns
// ErrDispatcherBusy when the queue is full.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case d.jobQueue <- job:
	default:
		return ErrDispatcherBusy
	}
	if len(d.jobQueue) > 0 {
		d.spawn(false)
	}
	return nil
}

// QueueDepth reports jobs waiting for a worker. Exposed for health checks.
func (d *Dispatcher) QueueDepth() int {
	return len(d.jobQueue)
}

// Running reports the current worker count.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stop shuts the pool down. Queued jobs are abandoned.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	close(d.stopCh)
}

// spawn starts one worker if capacity allows. Core workers live for the
// dispatcher's lifetime; surplus workers retire when idle.
func (d *Dispatcher) spawn(core bool) {
	d.mu.Lock()
	if d.stopped || d.running >= d.max {
		d.mu.Unlock()
		return
	}
	d.running++
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			d.running--
			d.mu.Unlock()
		}()
		idleTimer := time.NewTimer(d.idle)
		defer idleTimer.Stop()
		for {
			if !core {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(d.idle)
			}
			if core {
				select {
				case job := <-d.jobQueue:
					job()
				case <-d.stopCh:
					return
				}
			} else {
				select {
				case job := <-d.jobQueue:
					job()
				case <-idleTimer.C:
					return
				case <-d.stopCh:
					return
				}
			}
		}
	}()
}
