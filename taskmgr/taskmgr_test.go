package taskmgr_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wasmproc/core/sched"
	"github.com/wasmproc/core/taskmgr"
)

func TestManager_TaskWasmRuns(t *testing.T) {
	m := taskmgr.New(2, 16)
	defer m.Close()

	done := make(chan struct{})
	_, err := m.TaskWasm(taskmgr.TaskWasm{Run: func(ctx context.Context, worker taskmgr.WorkerID) { close(done) }})
	if err != nil {
		t.Fatalf("TaskWasm: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

type fakeTrigger struct {
	value uint64
	err   error
	delay time.Duration
}

func (f *fakeTrigger) Wait(ctx context.Context) (uint64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.value, f.err
}

func TestManager_ResumeWasmAfterPoller(t *testing.T) {
	m := taskmgr.New(1, 16)
	defer m.Close()

	worker, err := m.TaskWasm(taskmgr.TaskWasm{Run: func(ctx context.Context, worker taskmgr.WorkerID) {}})
	if err != nil {
		t.Fatalf("TaskWasm: %v", err)
	}

	results := make(chan sched.RewindResult, 1)
	trigger := &fakeTrigger{value: 42}
	m.ResumeWasmAfterPoller(context.Background(), worker, trigger, func(ctx context.Context, result sched.RewindResult, triggerErr error) {
		if triggerErr != nil {
			t.Errorf("unexpected trigger error: %v", triggerErr)
		}
		results <- result
	})

	select {
	case r := <-results:
		if !r.Valid || r.Value != 42 {
			t.Errorf("got %+v, want {Value:42 Valid:true}", r)
		}
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestManager_ResumeWasmAfterPoller_TriggerError(t *testing.T) {
	m := taskmgr.New(1, 16)
	defer m.Close()

	worker, _ := m.TaskWasm(taskmgr.TaskWasm{Run: func(ctx context.Context, worker taskmgr.WorkerID) {}})

	ran := make(chan struct{}, 1)
	trigger := &fakeTrigger{err: errors.New("trigger failed")}
	m.ResumeWasmAfterPoller(context.Background(), worker, trigger, func(ctx context.Context, result sched.RewindResult, triggerErr error) {
		ran <- struct{}{}
	})

	select {
	case <-ran:
		// the continuation still runs; it observes the trigger error and
		// decides how to classify the outcome (§4.4 leaves this to the
		// caller rather than the scheduler silently retrying).
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}
