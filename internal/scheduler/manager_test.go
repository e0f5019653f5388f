package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blues/ilr/internal/watcher"
)

type slowRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
}

func (r *slowRunner) RunCycle(ctx context.Context) (watcher.CycleReport, error) {
	if r.running.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.running.Add(-1)
	r.calls.Add(1)
	time.Sleep(30 * time.Millisecond)
	return watcher.CycleReport{Height: 1}, nil
}

type failingDispatcher struct {
	calls atomic.Int32
}

func (d *failingDispatcher) DispatchPending(ctx context.Context) (int, error) {
	d.calls.Add(1)
	return 0, errors.New("webhook down")
}

func TestManagerRunsJobsAsSingletons(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx := context.Background()
	runner := &slowRunner{}
	dispatcher := &failingDispatcher{}
	if err := m.Register(NewReconcileJob(ctx, runner, 5*time.Millisecond)); err != nil {
		t.Fatalf("Register reconcile: %v", err)
	}
	if err := m.Register(NewDispatchJob(ctx, dispatcher, 5*time.Millisecond)); err != nil {
		t.Fatalf("Register dispatch: %v", err)
	}

	m.Start()
	time.Sleep(200 * time.Millisecond)
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if runner.calls.Load() == 0 {
		t.Fatalf("reconcile job never ran")
	}
	if runner.overlap.Load() {
		t.Fatalf("reconcile cycles overlapped")
	}
	if dispatcher.calls.Load() == 0 {
		t.Fatalf("dispatch job never ran")
	}
}

func TestJobsSkipAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &slowRunner{}
	NewReconcileJob(ctx, runner, time.Second).Execute()
	if runner.calls.Load() != 0 {
		t.Fatalf("cycle ran after cancel")
	}

	dispatcher := &failingDispatcher{}
	NewDispatchJob(ctx, dispatcher, time.Second).Execute()
	if dispatcher.calls.Load() != 0 {
		t.Fatalf("dispatch ran after cancel")
	}
}
