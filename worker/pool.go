// Package worker 提供固定大小、带屏障等待的一次性工作池.
//
// 池在创建时启动 Size 个 worker，调用方用 Submit 投递任务，再用 Wait 等待全部
// 任务结束。任一任务返回错误或 panic 后，尚未开始的任务被跳过，Wait 返回第一个错误.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"github.com/wyfcoding/forest/metrics"
	"github.com/wyfcoding/forest/xerrors"
)

// Task 是 worker 执行的任务函数.
type Task func(ctx context.Context) error

// 任务结果标签.
const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusSkipped = "skipped"
	statusPanic   = "panic"
)

// Metrics 是工作池指标，同一个注册表上只能创建一次，多个池共享.
type Metrics struct {
	activeWorkers *prometheus.GaugeVec
	tasksTotal    *prometheus.CounterVec
}

// NewMetrics 在 m 上注册工作池指标.
func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{
		activeWorkers: m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_pool_active_workers",
			Help: "Number of active workers in the pool",
		}, []string{"pool"}),
		tasksTotal: m.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_pool_tasks_total",
			Help: "Tasks processed by the pool, by outcome",
		}, []string{"pool", "status"}),
	}
}

type poolOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Name    string
	Size    int
}

// Option 定义配置选项.
type Option func(*poolOptions)

// WithName 设置池名称，用作指标标签.
func WithName(name string) Option {
	return func(o *poolOptions) {
		o.Name = name
	}
}

// WithSize 设置 worker 数量，小于 1 时按 1 处理.
func WithSize(size int) Option {
	return func(o *poolOptions) {
		o.Size = size
	}
}

// WithLogger 设置日志记录器.
func WithLogger(logger *slog.Logger) Option {
	return func(o *poolOptions) {
		o.Logger = logger
	}
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *Metrics) Option {
	return func(o *poolOptions) {
		o.Metrics = m
	}
}

// Pool 是固定大小的工作池，只能使用一轮：Wait 之后不能再提交.
type Pool struct {
	ctx      context.Context
	err      error
	tasks    chan Task
	options  *poolOptions
	wg       conc.WaitGroup
	errOnce  sync.Once
	closed   atomic.Bool
	aborted  atomic.Bool
	finished atomic.Int64
}

// NewPool 创建并启动工作池，ctx 会传给每个任务.
func NewPool(ctx context.Context, opts ...Option) *Pool {
	options := &poolOptions{
		Name:   "default-pool",
		Size:   1,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	options.Size = max(options.Size, 1)

	p := &Pool{
		ctx:     ctx,
		tasks:   make(chan Task),
		options: options,
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.options.Logger.Debug("worker pool starting", "name", p.options.Name, "size", p.options.Size)
	for range p.options.Size {
		p.wg.Go(func() {
			if m := p.options.Metrics; m != nil {
				m.activeWorkers.WithLabelValues(p.options.Name).Inc()
				defer m.activeWorkers.WithLabelValues(p.options.Name).Dec()
			}
			for task := range p.tasks {
				p.execute(task)
			}
		})
	}
}

func (p *Pool) execute(task Task) {
	defer p.finished.Add(1)
	if p.aborted.Load() {
		p.count(statusSkipped)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.options.Logger.Error("worker task panic recovered", "name", p.options.Name, "panic", r)
			p.count(statusPanic)
			p.fail(xerrors.Wrap(xerrors.ErrTaskPanic, xerrors.ErrInternal, "worker task panic").
				WithDetail("%v", r))
		}
	}()
	if err := task(p.ctx); err != nil {
		p.count(statusFailed)
		p.fail(err)
		return
	}
	p.count(statusOK)
}

func (p *Pool) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		p.aborted.Store(true)
	})
}

func (p *Pool) count(status string) {
	if m := p.options.Metrics; m != nil {
		m.tasksTotal.WithLabelValues(p.options.Name, status).Inc()
	}
}

// Submit 投递任务，没有空闲 worker 时阻塞.
// 已有任务失败时新任务直接被跳过，Wait 之后提交返回 ErrPoolClosed.
func (p *Pool) Submit(task Task) error {
	if p.closed.Load() {
		return xerrors.ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// Wait 关闭任务队列并等待所有 worker 退出，返回第一个任务错误.
func (p *Pool) Wait() error {
	if !p.closed.CompareAndSwap(false, true) {
		return p.err
	}
	close(p.tasks)
	if rec := p.wg.WaitAndRecover(); rec != nil {
		p.fail(xerrors.Wrap(xerrors.ErrTaskPanic, xerrors.ErrInternal, "worker goroutine panic").
			WithDetail("%s", rec.String()))
	}
	p.options.Logger.Debug("worker pool stopped", "name", p.options.Name,
		"tasks", p.finished.Load(), "failed", p.err != nil)
	return p.err
}

// Size 返回 worker 数量.
func (p *Pool) Size() int { return p.options.Size }

func (p *Pool) String() string {
	return fmt.Sprintf("worker.Pool(%s, size=%d)", p.options.Name, p.options.Size)
}
