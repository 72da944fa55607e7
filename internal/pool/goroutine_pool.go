// Package pool 提供有界的 goroutine 池，承载异步生成任务的执行。
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
)

// Task 池中执行的一个工作单元
type Task func(ctx context.Context) error

type queuedTask struct {
	ctx context.Context
	run Task
}

// GoroutinePoolConfig 池配置
type GoroutinePoolConfig struct {
	// 最大 worker 数，worker 按需创建
	MaxWorkers int `json:"max_workers"`
	// 等待队列长度，0 表示不排队；队列满且 worker 已达上限时 Submit 返回 ErrPoolFull
	QueueSize int `json:"queue_size"`
	// worker 空闲超过该时长后退出
	IdleTimeout time.Duration `json:"idle_timeout"`
	// 记录任务 panic，可为 nil
	Logger *zap.Logger `json:"-"`
}

// DefaultGoroutinePoolConfig 返回默认配置
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  10,
		QueueSize:   1000,
		IdleTimeout: time.Minute,
	}
}

// GoroutinePool 由有界队列供给的弹性 worker 池
type GoroutinePool struct {
	maxWorkers  int32
	idleTimeout time.Duration
	logger      *zap.Logger
	queue       chan queuedTask

	// mu 保护 closed 以及向 queue 的发送
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	workers atomic.Int32
	active  atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64
}

// NewGoroutinePool 创建池，非法配置项使用默认值
func NewGoroutinePool(cfg GoroutinePoolConfig) *GoroutinePool {
	def := DefaultGoroutinePoolConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &GoroutinePool{
		maxWorkers:  int32(cfg.MaxWorkers),
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger.With(zap.String("component", "goroutine_pool")),
		queue:       make(chan queuedTask, cfg.QueueSize),
	}
}

// Submit 非阻塞地提交任务。任务在 ctx 下运行，调用方应传入
// 生命周期长于当前请求的上下文。
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	item := queuedTask{ctx: ctx, run: task}
	if p.offer(item) {
		p.spawn(nil)
		return nil
	}

	// 队列已满或不排队：交给新 worker 直接执行
	if p.spawn(&item) {
		p.submitted.Add(1)
		return nil
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

func (p *GoroutinePool) offer(item queuedTask) bool {
	select {
	case p.queue <- item:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// spawn 在未达上限时启动一个 worker，first 非 nil 时 worker 先执行它
func (p *GoroutinePool) spawn(first *queuedTask) bool {
	for {
		n := p.workers.Load()
		if n >= p.maxWorkers {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.work(first)
			return true
		}
	}
}

func (p *GoroutinePool) work(first *queuedTask) {
	defer p.wg.Done()

	if first != nil {
		p.execute(*first)
	}

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				p.workers.Add(-1)
				return
			}
			p.execute(item)
			idle.Reset(p.idleTimeout)

		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

// retire 判断空闲 worker 能否退出。队列中仍有任务时至少保留一个 worker。
func (p *GoroutinePool) retire() bool {
	if len(p.queue) > 0 && p.workers.Load() <= 1 {
		return false
	}
	p.workers.Add(-1)
	// 与并发提交竞争，补一个 worker
	if len(p.queue) > 0 {
		p.spawn(nil)
	}
	return true
}

func (p *GoroutinePool) execute(item queuedTask) {
	p.active.Add(1)
	defer p.active.Add(-1)

	if err := p.call(item); err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

func (p *GoroutinePool) call(item queuedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return item.run(item.ctx)
}

// Close 停止接收任务并等待已排队任务执行完，可重复调用
func (p *GoroutinePool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	if len(p.queue) > 0 {
		p.spawn(nil)
	}
	p.wg.Wait()
}

// Shutdown 与 Close 相同，但最多等待到 ctx 结束；
// 超时后剩余任务继续在后台执行。
func (p *GoroutinePool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GoroutinePoolStats 池统计
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Panicked  int64 `json:"panicked"`
}

// Stats 返回当前统计
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}
