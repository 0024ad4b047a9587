package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
	ErrTaskPanic  = errors.New("task panicked")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// Config configures the pool.
type Config struct {
	Workers   int `json:"workers" yaml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns sensible defaults for background maintenance.
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 32,
	}
}

type taskWrapper struct {
	name   string
	task   Task
	ctx    context.Context
	result chan error
}

// WorkerPool runs tasks on a fixed set of goroutines.
type WorkerPool struct {
	queue  chan taskWrapper
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	jobs   map[string]*jobState

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewWorkerPool starts cfg.Workers goroutines.
func NewWorkerPool(cfg Config, logger *zap.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &WorkerPool{
		queue:  make(chan taskWrapper, cfg.QueueSize),
		logger: logger.With(zap.String("component", "worker_pool")),
		stopCh: make(chan struct{}),
		jobs:   make(map[string]*jobState),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task without waiting. Returns ErrPoolFull when the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, name string, task Task) error {
	return p.enqueue(taskWrapper{name: name, task: task, ctx: ctx}, false)
}

// SubmitWait queues a task and waits for its result.
func (p *WorkerPool) SubmitWait(ctx context.Context, name string, task Task) error {
	w := taskWrapper{name: name, task: task, ctx: ctx, result: make(chan error, 1)}
	if err := p.enqueue(w, true); err != nil {
		return err
	}
	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) enqueue(w taskWrapper, block bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	if !block {
		select {
		case p.queue <- w:
			return nil
		default:
			p.rejected.Add(1)
			return ErrPoolFull
		}
	}

	// 持锁阻塞入队：Close 需要等待该调用返回后才能关闭队列
	select {
	case p.queue <- w:
		return nil
	case <-w.ctx.Done():
		p.rejected.Add(1)
		return w.ctx.Err()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for w := range p.queue {
		p.active.Add(1)
		err := p.execute(w)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("task failed", zap.String("task", w.name), zap.Error(err))
		} else {
			p.completed.Add(1)
		}
		if w.result != nil {
			w.result <- err
		}
	}
}

func (p *WorkerPool) execute(w taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.String("task", w.name), zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	if err := w.ctx.Err(); err != nil {
		return err
	}
	return w.task(w.ctx)
}

// =============================================================================
// ⏰ 周期任务
// =============================================================================

// Job is a task that runs every Interval.
type Job struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration // 单次运行超时，0 表示不限
	RunOnStart bool
	Run        Task
}

type jobState struct {
	running  atomic.Bool
	runs     atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
	lastErr  atomic.Value // string
}

// Schedule runs job periodically until the pool is closed.
// A tick is skipped while the previous run of the same job is still in flight.
func (p *WorkerPool) Schedule(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if _, exists := p.jobs[job.Name]; exists {
		p.mu.Unlock()
		return fmt.Errorf("job %s already scheduled", job.Name)
	}
	st := &jobState{}
	p.jobs[job.Name] = st
	p.mu.Unlock()

	p.wg.Add(1)
	go p.tick(job, st)

	p.logger.Info("job scheduled", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	return nil
}

func (p *WorkerPool) tick(job Job, st *jobState) {
	defer p.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		p.fire(job, st)
	}
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.fire(job, st)
		}
	}
}

func (p *WorkerPool) fire(job Job, st *jobState) {
	if !st.running.CompareAndSwap(false, true) {
		st.skipped.Add(1)
		return
	}
	run := func(ctx context.Context) error {
		defer st.running.Store(false)
		if job.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}
		st.runs.Add(1)
		err := job.Run(ctx)
		if err != nil {
			st.failures.Add(1)
			st.lastErr.Store(err.Error())
		}
		return err
	}
	if err := p.Submit(context.Background(), job.Name, run); err != nil {
		st.running.Store(false)
		st.skipped.Add(1)
	}
}

// Close stops all jobs, drains queued tasks and waits for workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	// ticker goroutine 退出后不会再有 Submit；但 worker 也在同一个 wg 中，
	// 所以先关闭队列再统一等待
	close(p.queue)
	p.wg.Wait()
	p.logger.Info("worker pool closed")
}

// =============================================================================
// 📈 统计
// =============================================================================

// Stats contains pool statistics.
type Stats struct {
	Active    int                 `json:"active"`
	Queued    int                 `json:"queued"`
	Submitted int64               `json:"submitted"`
	Completed int64               `json:"completed"`
	Failed    int64               `json:"failed"`
	Rejected  int64               `json:"rejected"`
	Jobs      map[string]JobStats `json:"jobs,omitempty"`
}

// JobStats describes one scheduled job.
type JobStats struct {
	Runs      int64  `json:"runs"`
	Skipped   int64  `json:"skipped"`
	Failures  int64  `json:"failures"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() Stats {
	s := Stats{
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.jobs) > 0 {
		s.Jobs = make(map[string]JobStats, len(p.jobs))
		for name, st := range p.jobs {
			js := JobStats{
				Runs:     st.runs.Load(),
				Skipped:  st.skipped.Load(),
				Failures: st.failures.Load(),
			}
			if v, ok := st.lastErr.Load().(string); ok {
				js.LastError = v
			}
			s.Jobs[name] = js
		}
	}
	return s
}
