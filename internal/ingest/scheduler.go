// 包 ingest：增量批次的接入调度，每个提供方一个串行队列，运行在服务进程内的后台协程
// 背景：同一提供方的批次必须按到达顺序逐个应用；不同提供方互不等待
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gbfs-sync/internal/logger"
)

var (
	ErrClosed    = errors.New("ingest: dispatcher closed")
	ErrQueueFull = errors.New("ingest: provider queue full")
)

// Job：一次批次应用；ctx 为调度器的生命周期上下文
type Job func(ctx context.Context) error

type task struct {
	run  Job
	done chan error
}

// Dispatcher：按提供方分队列的串行执行器
// 约束：队列满时立即拒绝，不阻塞调用方；Close 后已入队的任务仍会执行完毕
type Dispatcher struct {
	ctx    context.Context
	size   int
	log    *slog.Logger
	g      errgroup.Group
	mu     sync.Mutex
	closed bool
	queues map[string]chan task
}

func NewDispatcher(ctx context.Context, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Dispatcher{
		ctx:    ctx,
		size:   queueSize,
		log:    logger.Named("ingest"),
		queues: make(map[string]chan task),
	}
}

// Submit：把任务放入提供方队列，首次出现的提供方会启动自己的工作协程
func (d *Dispatcher) Submit(providerID string, job Job) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	q, ok := d.queues[providerID]
	if !ok {
		q = make(chan task, d.size)
		d.queues[providerID] = q
		d.g.Go(func() error {
			d.worker(providerID, q)
			return nil
		})
	}
	t := task{run: job, done: make(chan error, 1)}
	select {
	case q <- t:
		return t.done, nil
	default:
		return nil, ErrQueueFull
	}
}

// Do：提交并等待结果；调用方 ctx 取消时不再等待，任务本身仍按顺序执行
func (d *Dispatcher) Do(ctx context.Context, providerID string, job Job) error {
	done, err := d.Submit(providerID, job)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drop：关闭提供方队列（提供方被移除时）；已入队任务执行完后工作协程退出
func (d *Dispatcher) Drop(providerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[providerID]; ok {
		close(q)
		delete(d.queues, providerID)
	}
}

// Queues：当前活跃的提供方队列数
func (d *Dispatcher) Queues() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close：停止接收新任务并等待全部工作协程退出
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for id, q := range d.queues {
			close(q)
			delete(d.queues, id)
		}
	}
	d.mu.Unlock()
	return d.g.Wait()
}

func (d *Dispatcher) worker(providerID string, q <-chan task) {
	d.log.Debug("ingest_worker_start", "system_id", providerID)
	for t := range q {
		start := time.Now()
		err := t.run(d.ctx)
		if err != nil {
			d.log.Warn("ingest_job_error", "system_id", providerID, "err", err)
		} else {
			d.log.Debug("ingest_job_done", "system_id", providerID, "duration_ms", time.Since(start).Milliseconds())
		}
		t.done <- err
	}
	d.log.Debug("ingest_worker_stop", "system_id", providerID)
}
