// Package pool runs embedding inference on a fixed set of isolated workers.
//
// Each worker owns its own embeddings.Provider instance, so a crashed or
// memory-bloated worker can be retired and replaced without touching its
// siblings. Tasks are immutable messages dispatched round-robin; a failed or
// timed-out task is retried once on a different worker before the error is
// surfaced to the caller, which then degrades that batch to lexical-only
// scoring.
//
// When no worker is available (cold start, pool closed, or every worker
// retired with no replacement) Submit falls back to a rate-limited
// synchronous provider call: correctness is preserved at a latency cost.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/rankd/internal/embeddings"
	"github.com/fyrsmithlabs/rankd/internal/logging"
)

var (
	// ErrPoolClosed is returned when Submit is called after Close.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrNoWorkers indicates no worker could take the task and the
	// synchronous fallback also failed.
	ErrNoWorkers = errors.New("pool: no workers available")

	// errWorkerUnavailable marks a task that never ran because its worker
	// was stopping or its queue was full. Submit treats it as retriable.
	errWorkerUnavailable = errors.New("pool: worker unavailable")
)

// Config holds worker pool configuration.
type Config struct {
	// Workers is the fixed worker count.
	Workers int

	// TaskTimeout bounds a single task on one worker.
	TaskTimeout time.Duration

	// MemoryCeilingMB retires a worker whose share of process heap exceeds it.
	MemoryCeilingMB int

	// MinBatchSize and MaxBatchSize bound DynamicBatchSize.
	MinBatchSize int
	MaxBatchSize int

	// FallbackRPS limits the synchronous non-pooled embedding path.
	FallbackRPS float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.MemoryCeilingMB <= 0 {
		c.MemoryCeilingMB = 1024
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 8
	}
	if c.MaxBatchSize < c.MinBatchSize {
		c.MaxBatchSize = c.MinBatchSize * 8
	}
	if c.FallbackRPS <= 0 {
		c.FallbackRPS = 2
	}
}

// Pool dispatches embedding tasks across isolated workers.
type Pool struct {
	cfg     Config
	factory embeddings.Factory
	logger  *logging.Logger

	mu      sync.RWMutex
	workers []*worker

	next   atomic.Uint64
	closed atomic.Bool
	wg     sync.WaitGroup

	retireCh chan int
	done     chan struct{}

	// Synchronous fallback path.
	fallbackMu sync.Mutex
	fallback   embeddings.Provider
	limiter    *rate.Limiter
}

// New creates a pool. Call Start before Submit; a pool that was never
// started serves every Submit through the synchronous fallback.
func New(cfg Config, factory embeddings.Factory, logger *logging.Logger) *Pool {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pool{
		cfg:      cfg,
		factory:  factory,
		logger:   logger.Named("pool"),
		workers:  make([]*worker, cfg.Workers),
		retireCh: make(chan int, cfg.Workers),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(cfg.FallbackRPS), 1),
	}
}

// Start spins up the workers. Worker construction failures are logged and
// leave the slot empty; Start fails only when zero workers could start.
func (p *Pool) Start(ctx context.Context) error {
	started := 0
	for i := 0; i < p.cfg.Workers; i++ {
		w, err := p.newWorker(i)
		if err != nil {
			p.logger.Warn(ctx, "worker failed to start", zap.Int("worker", i), zap.Error(err))
			continue
		}
		p.workers[i] = w
		started++
	}
	if started == 0 {
		return fmt.Errorf("%w: all %d workers failed to start", ErrNoWorkers, p.cfg.Workers)
	}

	// Replace retired workers as they report in.
	p.wg.Add(1)
	go p.maintain()

	p.logger.Info(ctx, "pool started",
		zap.Int("workers", started),
		zap.Int("requested", p.cfg.Workers))
	workersAlive.Set(float64(started))
	return nil
}

// Submit embeds a batch of texts, honoring the deadline. The task runs on
// one worker with a single retry on a different worker; if no worker is
// available the synchronous fallback path is used.
func (p *Pool) Submit(ctx context.Context, texts []string, deadline time.Time) ([][]float32, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("pool: %w", embeddings.ErrEmptyInput)
	}

	first := p.pickWorker(nil)
	if first == nil {
		return p.syncEmbed(ctx, texts, deadline)
	}

	tasksTotal.Inc()
	vectors, err := p.dispatch(ctx, first, texts, deadline)
	if err == nil {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	// One retry on a different worker.
	retriesTotal.Inc()
	p.logger.Debug(ctx, "task failed, retrying on another worker",
		zap.Int("worker", first.id), zap.Error(err))

	second := p.pickWorker(first)
	if second == nil {
		return p.syncEmbed(ctx, texts, deadline)
	}
	vectors, retryErr := p.dispatch(ctx, second, texts, deadline)
	if retryErr == nil {
		return vectors, nil
	}
	if errors.Is(retryErr, errWorkerUnavailable) {
		return p.syncEmbed(ctx, texts, deadline)
	}
	return nil, fmt.Errorf("pool: task failed on workers %d and %d: %w", first.id, second.id, retryErr)
}

// dispatch sends the task to one worker and waits for its result.
func (p *Pool) dispatch(ctx context.Context, w *worker, texts []string, deadline time.Time) ([][]float32, error) {
	timeout := p.cfg.TaskTimeout
	if !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := &task{ctx: tctx, texts: texts, result: make(chan taskResult, 1)}
	if !w.enqueue(t) {
		return nil, errWorkerUnavailable
	}
	queueDepth.Inc()

	select {
	case res := <-t.result:
		queueDepth.Dec()
		return res.vectors, res.err
	case <-tctx.Done():
		queueDepth.Dec()
		return nil, tctx.Err()
	}
}

// pickWorker returns the next live worker round-robin, skipping exclude.
// Returns nil when no live worker exists.
func (p *Pool) pickWorker(exclude *worker) *worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.workers)
	start := int(p.next.Add(1))
	for i := 0; i < n; i++ {
		w := p.workers[(start+i)%n]
		if w == nil || w == exclude || w.retired.Load() || w.stopped.Load() {
			continue
		}
		return w
	}
	return nil
}

// maintain replaces retired workers until the pool closes.
func (p *Pool) maintain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case id := <-p.retireCh:
			retirementsTotal.Inc()
			p.replaceWorker(id)
		}
	}
}

func (p *Pool) replaceWorker(id int) {
	ctx := context.Background()

	p.mu.Lock()
	old := p.workers[id]
	p.workers[id] = nil
	p.mu.Unlock()

	if old != nil {
		old.stop()
		if err := old.provider.Close(); err != nil {
			p.logger.Warn(ctx, "closing retired worker provider", zap.Int("worker", id), zap.Error(err))
		}
	}

	w, err := p.newWorker(id)
	if err != nil {
		p.logger.Error(ctx, "failed to replace retired worker", zap.Int("worker", id), zap.Error(err))
		workersAlive.Dec()
		return
	}

	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()

	p.logger.Info(ctx, "worker replaced", zap.Int("worker", id))
}

// Close drains in-flight tasks and shuts down all workers.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)

	p.mu.Lock()
	workers := make([]*worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	for _, w := range workers {
		if w != nil {
			w.stop()
		}
	}
	p.wg.Wait()

	var firstErr error
	for _, w := range workers {
		if w == nil {
			continue
		}
		if err := w.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.fallbackMu.Lock()
	if p.fallback != nil {
		if err := p.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.fallback = nil
	}
	p.fallbackMu.Unlock()

	workersAlive.Set(0)
	return firstErr
}

// syncEmbed is the non-pooled fallback: a direct provider call behind a
// rate limiter so cold-start bursts cannot stampede the model host.
func (p *Pool) syncEmbed(ctx context.Context, texts []string, deadline time.Time) ([][]float32, error) {
	fallbackTotal.Inc()

	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pool: fallback rate limit: %w", err)
	}

	provider, err := p.fallbackProvider()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWorkers, err)
	}
	return provider.EmbedDocuments(ctx, texts)
}

func (p *Pool) fallbackProvider() (embeddings.Provider, error) {
	p.fallbackMu.Lock()
	defer p.fallbackMu.Unlock()
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	provider, err := p.factory()
	if err != nil {
		return nil, err
	}
	p.fallback = provider
	return provider, nil
}
