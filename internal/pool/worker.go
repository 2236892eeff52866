package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rankd/internal/embeddings"
)

// task is an immutable batch of texts to embed. The result channel is
// buffered so a worker never blocks on a caller that gave up.
type task struct {
	ctx    context.Context
	texts  []string
	result chan taskResult
}

type taskResult struct {
	vectors [][]float32
	err     error
}

// worker owns one provider instance and processes tasks sequentially.
//
// The task channel is never closed: senders race shutdown, so closing it
// from the pool side would panic a concurrent Submit. Shutdown is signaled
// through quit instead, and mu pairs enqueue with drain so a task can never
// land in a queue nobody will read again.
type worker struct {
	id       int
	provider embeddings.Provider
	tasks    chan *task
	quit     chan struct{}

	mu      sync.Mutex
	retired atomic.Bool
	stopped atomic.Bool

	memCeilingBytes uint64
	workerCount     int
}

// workerQueueLen is the per-worker task backlog. Small: the reranker's
// bounded batch concurrency is the real throttle.
const workerQueueLen = 2

func (p *Pool) newWorker(id int) (*worker, error) {
	provider, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("pool: constructing provider for worker %d: %w", id, err)
	}
	w := &worker{
		id:              id,
		provider:        provider,
		tasks:           make(chan *task, workerQueueLen),
		quit:            make(chan struct{}),
		memCeilingBytes: uint64(p.cfg.MemoryCeilingMB) * 1024 * 1024,
		workerCount:     p.cfg.Workers,
	}
	p.wg.Add(1)
	go w.run(p)
	return w, nil
}

// run processes tasks until stopped. A worker that trips its memory ceiling
// or panics marks itself retired, finishes cleanly, and asks the pool for a
// replacement; its failed task is resubmitted elsewhere by Submit's retry,
// never silently dropped.
func (w *worker) run(p *Pool) {
	defer p.wg.Done()
	defer w.drain()
	for {
		select {
		case <-w.quit:
			return
		case t := <-w.tasks:
			t.result <- w.execute(t)

			if w.retired.Load() || w.overCeiling() {
				w.retired.Store(true)
				select {
				case p.retireCh <- w.id:
					p.logger.Warn(t.ctx, "worker retiring",
						zap.Int("worker", w.id),
						zap.Uint64("heap_share_bytes", heapShare(w.workerCount)))
				case <-p.done:
				}
				return
			}
		}
	}
}

// enqueue hands a task to the worker unless it is retiring, stopped, or its
// queue is full. Holding mu across the send means drain, which takes the
// same lock after the retired or stopped flag is set, observes every task
// that made it into the queue.
func (w *worker) enqueue(t *task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired.Load() || w.stopped.Load() {
		return false
	}
	select {
	case w.tasks <- t:
		return true
	default:
		return false
	}
}

// drain fails every queued task immediately so its caller retries on
// another worker or falls back, instead of waiting out the task timeout.
func (w *worker) drain() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		select {
		case t := <-w.tasks:
			t.result <- taskResult{err: errWorkerUnavailable}
		default:
			return
		}
	}
}

// execute runs one task, converting a provider panic into an error so a
// crashed worker cannot take the pool down with it.
func (w *worker) execute(t *task) (res taskResult) {
	defer func() {
		if r := recover(); r != nil {
			w.retired.Store(true)
			res = taskResult{err: fmt.Errorf("pool: worker %d panicked: %v", w.id, r)}
		}
	}()

	if err := t.ctx.Err(); err != nil {
		return taskResult{err: err}
	}

	vectors, err := w.provider.EmbedDocuments(t.ctx, t.texts)
	if err != nil {
		return taskResult{err: err}
	}
	return taskResult{vectors: vectors}
}

// stop signals run to exit; queued tasks are failed by drain on the way
// out, never abandoned.
func (w *worker) stop() {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.quit)
	}
}

// overCeiling reports whether this worker's share of the process heap
// exceeds its ceiling. Workers share one address space, so the per-worker
// share is an estimate: total heap divided by the worker count.
func (w *worker) overCeiling() bool {
	if w.memCeilingBytes == 0 {
		return false
	}
	return heapShare(w.workerCount) > w.memCeilingBytes
}

func heapShare(workers int) uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if workers <= 0 {
		workers = 1
	}
	return ms.HeapAlloc / uint64(workers)
}
