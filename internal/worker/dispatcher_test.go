package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 4, QueueSize: 16}, nil)
	defer d.Stop()

	var done int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := d.Submit(func() {
			atomic.AddInt32(&done, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	waitDone(t, &wg)
	if atomic.LoadInt32(&done) != 10 {
		t.Fatalf("expected 10 jobs run, got %d", done)
	}
}

func TestSubmitBusyWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil)
	defer d.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	// occupy the only worker
	if err := d.Submit(func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started
	// fill the queue
	if err := d.Submit(func() {}); err != nil {
		t.Fatalf("submit queued job: %v", err)
	}

	err := d.Submit(func() {})
	if !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	close(release)
}

func TestPoolScalesUpUnderBacklog(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 4, QueueSize: 32, WorkerIdleTimeout: 50 * time.Millisecond}, nil)
	defer d.Stop()

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		if err := d.Submit(func() {
			defer wg.Done()
			<-release
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	deadline := time.After(2 * time.Second)
	for d.Running() < 2 {
		select {
		case <-deadline:
			t.Fatalf("pool never scaled up, running=%d", d.Running())
		case <-time.After(10 * time.Millisecond):
		}
	}
	close(release)
	waitDone(t, &wg)

	// surplus workers retire back toward the minimum
	deadline = time.After(2 * time.Second)
	for d.Running() > 1 {
		select {
		case <-deadline:
			t.Fatalf("surplus workers never retired, running=%d", d.Running())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("jobs did not finish in time")
	}
}
