// Package taskmgr implements the TaskManager collaborator of §6: a pool of
// host worker threads, each owning a pinned dispatch queue, used to run a
// guest process's pinned store (task_wasm) and to schedule deep-sleep
// continuations behind an asynchronous trigger
// (resume_wasm_after_poller).
package taskmgr

import (
	"context"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/zap"

	"github.com/wasmproc/core/sched"
)

// WorkerID identifies one of the manager's pinned host workers.
type WorkerID uint32

// TaskWasm is a new pinned guest task (§6): Run executes on the worker
// chosen for it and must not be invoked concurrently with any other
// operation against the same store. Run receives its own WorkerID so a
// deep-sleep continuation can be scheduled back onto the same worker
// without a race against TaskWasm's return value.
type TaskWasm struct {
	Run func(ctx context.Context, worker WorkerID)
}

// ContinuationFunc is the respawn continuation of §4.4 step 1: re-entered
// once the trigger resolves, on the same worker the original task ran on.
type ContinuationFunc func(ctx context.Context, result sched.RewindResult, triggerErr error)

// Manager is a TaskManager: a fixed pool of workers, each draining a
// bounded work queue (github.com/Workiva/go-datastructures/queue.RingBuffer)
// in its own goroutine standing in for a host worker thread.
type Manager struct {
	workers []*worker
	next    uint64
}

type worker struct {
	id    WorkerID
	queue *queue.RingBuffer
}

// New creates a Manager with workerCount workers, each with a queue of the
// given capacity.
func New(workerCount int, queueCapacity uint64) *Manager {
	m := &Manager{workers: make([]*worker, workerCount)}
	for i := 0; i < workerCount; i++ {
		w := &worker{id: WorkerID(i), queue: queue.NewRingBuffer(queueCapacity)}
		m.workers[i] = w
		go w.loop()
	}
	return m
}

func (w *worker) loop() {
	for {
		item, err := w.queue.Get()
		if err != nil {
			return // disposed
		}
		fn, ok := item.(func(context.Context))
		if !ok {
			continue
		}
		fn(context.Background())
	}
}

// TaskWasm submits t to the next worker in round-robin order, pinning it
// there for the lifetime of the store it runs (§4.3 step 1). Submission
// itself is synchronous only up to enqueue; Run executes asynchronously.
// The returned WorkerID is also the one passed to Run, so a continuation
// scheduled from inside Run always targets the correct worker even though
// Run may start before TaskWasm returns.
func (m *Manager) TaskWasm(t TaskWasm) (WorkerID, error) {
	idx := atomic.AddUint64(&m.next, 1) % uint64(len(m.workers))
	w := m.workers[idx]
	if err := w.queue.Put(func(ctx context.Context) { t.Run(ctx, w.id) }); err != nil {
		return 0, err
	}
	return w.id, nil
}

// ResumeWasmAfterPoller schedules cont to run, exactly once, after trigger
// resolves, on the worker that owns the store (§4.4 step 2). Waiting on
// the trigger happens off the pinned worker so it never blocks other
// guests; only the continuation itself runs pinned.
//
// If trigger.Wait fails, cont still runs, pinned, with the error passed
// through as its triggerErr argument — callers (execproc) fold that into
// the same finishing path a deep-sleep trigger success would take. Only
// the re-enqueue itself failing (the pinned worker's queue is disposed; a
// full queue makes Put block instead) drops cont entirely; that case is logged and, per §9's open
// question, this implementation does not synthesize a Finished
// transition for the guest thread when it happens.
func (m *Manager) ResumeWasmAfterPoller(ctx context.Context, worker WorkerID, trigger sched.Trigger, cont ContinuationFunc) {
	go func() {
		value, err := trigger.Wait(ctx)

		w := m.workerByID(worker)
		if w == nil {
			Logger().Error("resume_wasm_after_poller: unknown worker", zap.Uint32("worker", uint32(worker)))
			return
		}

		result := sched.RewindResult{Value: value, Valid: err == nil}
		putErr := w.queue.Put(func(runCtx context.Context) { cont(runCtx, result, err) })
		if putErr != nil {
			Logger().Error("resume_wasm_after_poller: failed to reschedule continuation",
				zap.Uint32("worker", uint32(worker)), zap.Error(putErr))
		}
	}()
}

func (m *Manager) workerByID(id WorkerID) *worker {
	for _, w := range m.workers {
		if w.id == id {
			return w
		}
	}
	return nil
}

// Close disposes every worker queue, unblocking their loops.
func (m *Manager) Close() {
	for _, w := range m.workers {
		w.queue.Dispose()
	}
}
